/*
Copyright © 2023 the exposuremap authors.
This file is part of exposuremap.

exposuremap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

exposuremap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with exposuremap.  If not, see <http://www.gnu.org/licenses/>.*/

package exposuremap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// mapFetcher serves grid documents from memory and counts fetches per
// document name.
type mapFetcher struct {
	mu     sync.Mutex
	docs   map[string][]byte
	counts map[string]int
	fail   map[string]int // remaining forced failures per name
}

func newMapFetcher() *mapFetcher {
	return &mapFetcher{
		docs:   make(map[string][]byte),
		counts: make(map[string]int),
		fail:   make(map[string]int),
	}
}

func (f *mapFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name]++
	if f.fail[name] > 0 {
		f.fail[name]--
		return nil, fmt.Errorf("forced failure for %s", name)
	}
	b, ok := f.docs[name]
	if !ok {
		return nil, fmt.Errorf("no document named %s", name)
	}
	return b, nil
}

func (f *mapFetcher) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

// gridDocJSON builds a primary-shape grid document.
func gridDocJSON(t *testing.T, key Key, box BoundingBox, conc, pop [][]float64) []byte {
	t.Helper()
	doc := map[string]interface{}{
		"asset_id": key.AssetID,
		"country":  key.Country,
		"dimensions": map[string]int{
			"width":  len(conc[0]),
			"height": len(conc),
		},
		"bounds": map[string]float64{
			"north": box.North, "south": box.South,
			"east": box.East, "west": box.West,
		},
		"data_arrays": map[string]interface{}{
			"concentration": conc,
			"population":    pop,
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func storeFixture(t *testing.T) (*Store, *mapFetcher, Key) {
	t.Helper()
	key := Key{Country: "BRA", AssetID: "a1"}
	box := BoundingBox{North: 1, South: 0, East: 1, West: 0}
	idx, err := NewIndex(&Asset{Key: key, Box: box, Center: box.Center()})
	if err != nil {
		t.Fatal(err)
	}
	f := newMapFetcher()
	f.docs["BRA_a1_data.json"] = gridDocJSON(t, key, box,
		uniformLayer(4, 4, 2), uniformLayer(4, 4, 3))
	return NewStore(idx, f), f, key
}

func TestStoreCachesGrids(t *testing.T) {
	s, f, key := storeFixture(t)
	ctx := context.Background()
	g1, err := s.Grid(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if g1.Rows != 4 || g1.Cols != 4 {
		t.Errorf("grid shape %d×%d; want 4×4", g1.Rows, g1.Cols)
	}
	g2, err := s.Grid(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if g1 != g2 {
		t.Error("second Grid call returned a different grid instance")
	}
	if n := f.count("BRA_a1_data.json"); n != 1 {
		t.Errorf("document fetched %d times; want 1", n)
	}
}

func TestStoreFailureNotCached(t *testing.T) {
	s, f, key := storeFixture(t)
	// Fail the first primary fetch; the legacy fallback has no document
	// either, so the whole first call fails.
	f.mu.Lock()
	f.fail["BRA_a1_data.json"] = 1
	f.mu.Unlock()

	ctx := context.Background()
	_, err := s.Grid(ctx, key)
	var unavailable DataUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("first call gave %v; want DataUnavailable", err)
	}
	if unavailable.Key != key {
		t.Errorf("error names asset %s; want %s", unavailable.Key, key)
	}

	// The failure must not poison the cache: the next call refetches
	// and succeeds.
	if _, err := s.Grid(ctx, key); err != nil {
		t.Fatalf("second call gave %v; want success", err)
	}
	if n := f.count("BRA_a1_data.json"); n != 2 {
		t.Errorf("document fetched %d times; want 2", n)
	}
}

func TestStoreLegacyFallback(t *testing.T) {
	key := Key{Country: "BRA", AssetID: "a2"}
	box := BoundingBox{North: 1, South: 0, East: 1, West: 0}
	idx, err := NewIndex(&Asset{Key: key, Box: box, Center: box.Center()})
	if err != nil {
		t.Fatal(err)
	}
	f := newMapFetcher()
	// Only the legacy raw shape exists, with layers under "data".
	legacy := map[string]interface{}{
		"asset_id": key.AssetID,
		"country":  key.Country,
		"bounds": map[string]float64{
			"north": box.North, "south": box.South,
			"east": box.East, "west": box.West,
		},
		"data": map[string]interface{}{
			"concentration": uniformLayer(2, 2, 5),
			"population":    uniformLayer(2, 2, 7),
		},
	}
	b, err := json.Marshal(legacy)
	if err != nil {
		t.Fatal(err)
	}
	f.docs["BRA_a2_raw.json"] = b

	s := NewStore(idx, f)
	g, err := s.Grid(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if got := g.At(0, 0); got.Concentration != 5 || got.Population != 7 {
		t.Errorf("legacy grid sample = %+v; want {5 7 35}", got)
	}
	if n := f.count("BRA_a2_data.json"); n != 1 {
		t.Errorf("primary shape tried %d times; want 1", n)
	}
}

func TestStoreIndexFileNames(t *testing.T) {
	key := Key{Country: "BRA", AssetID: "a3"}
	box := BoundingBox{North: 1, South: 0, East: 1, West: 0}
	idx, err := NewIndex(&Asset{
		Key: key, Box: box, Center: box.Center(),
		OverlayDataFile: "custom/a3.json",
	})
	if err != nil {
		t.Fatal(err)
	}
	f := newMapFetcher()
	f.docs["custom/a3.json"] = gridDocJSON(t, key, box,
		uniformLayer(2, 2, 1), uniformLayer(2, 2, 1))
	s := NewStore(idx, f)
	if _, err := s.Grid(context.Background(), key); err != nil {
		t.Fatal(err)
	}
	if n := f.count("custom/a3.json"); n != 1 {
		t.Errorf("index-named document fetched %d times; want 1", n)
	}
}

func TestDecodeGridDimensionMismatch(t *testing.T) {
	key := Key{Country: "BRA", AssetID: "a1"}
	doc := []byte(`{
		"bounds": {"north": 1, "south": 0, "east": 1, "west": 0},
		"dimensions": {"width": 10, "height": 10},
		"data_arrays": {"concentration": [[1, 2]], "population": [[1, 2]]}
	}`)
	if _, err := decodeGrid(key, doc); err == nil {
		t.Error("dimension mismatch accepted")
	}
}

func TestDecodeGridNoLayers(t *testing.T) {
	key := Key{Country: "BRA", AssetID: "a1"}
	doc := []byte(`{"bounds": {"north": 1, "south": 0, "east": 1, "west": 0}}`)
	if _, err := decodeGrid(key, doc); err == nil {
		t.Error("document without layers accepted")
	}
}

func TestStoreCanceledContext(t *testing.T) {
	s, _, key := storeFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Grid(ctx, key); err == nil {
		t.Error("canceled context returned a grid")
	}
}

func TestStoreSharedFetchOutlivesCaller(t *testing.T) {
	s, f, key := storeFixture(t)
	gate := &gateFetcher{
		Fetcher: f,
		prefix:  "BRA_a1",
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	s = NewStore(s.index, gate)

	ctx1, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Grid(ctx1, key)
		firstErr <- err
	}()
	<-gate.started

	secondErr := make(chan error, 1)
	go func() {
		_, err := s.Grid(context.Background(), key)
		secondErr <- err
	}()

	// Cancel the caller that started the fetch, then let the fetch
	// finish. The live caller deduplicated onto the same key must still
	// get the grid.
	cancel()
	close(gate.gate)
	if err := <-secondErr; err != nil {
		t.Errorf("deduplicated caller gave %v; want success", err)
	}
	<-firstErr
}

func TestHTTPFetcherRetriesTransientFailure(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		if n < 3 {
			http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("document body"))
	}))
	defer srv.Close()

	f := &HTTPFetcher{BaseURL: srv.URL}
	b, err := f.Fetch(context.Background(), "BRA_a1_data.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "document body" {
		t.Errorf("fetched %q; want %q", b, "document body")
	}
	mu.Lock()
	defer mu.Unlock()
	if requests != 3 {
		t.Errorf("server saw %d requests; want 3", requests)
	}
}

func TestHTTPFetcherMissingDocumentFallsBack(t *testing.T) {
	key := Key{Country: "BRA", AssetID: "h1"}
	box := BoundingBox{North: 1, South: 0, East: 1, West: 0}
	idx, err := NewIndex(&Asset{Key: key, Box: box, Center: box.Center()})
	if err != nil {
		t.Fatal(err)
	}
	legacy := map[string]interface{}{
		"asset_id": key.AssetID,
		"country":  key.Country,
		"bounds": map[string]float64{
			"north": box.North, "south": box.South,
			"east": box.East, "west": box.West,
		},
		"data": map[string]interface{}{
			"concentration": uniformLayer(2, 2, 5),
			"population":    uniformLayer(2, 2, 7),
		},
	}
	legacyBody, err := json.Marshal(legacy)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	counts := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		counts[r.URL.Path]++
		mu.Unlock()
		if r.URL.Path == "/BRA_h1_raw.json" {
			w.Write(legacyBody)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := NewStore(idx, &HTTPFetcher{BaseURL: srv.URL})
	g, err := s.Grid(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if got := g.At(0, 0); got.Concentration != 5 || got.Population != 7 {
		t.Errorf("legacy grid sample = %+v; want {5 7 35}", got)
	}
	mu.Lock()
	defer mu.Unlock()
	// A missing document means the shape does not exist; retrying it
	// would only delay the legacy fallback.
	if n := counts["/BRA_h1_data.json"]; n != 1 {
		t.Errorf("missing primary document requested %d times; want 1", n)
	}
}

func TestHTTPFetcherCanceledDuringBackoff(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f := &HTTPFetcher{BaseURL: srv.URL}
	if _, err := f.Fetch(ctx, "BRA_a1_data.json"); err == nil {
		t.Fatal("fetch with expiring context succeeded")
	}
	mu.Lock()
	defer mu.Unlock()
	// The context expires during the first backoff wait, so no retry
	// happens.
	if requests != 1 {
		t.Errorf("server saw %d requests after cancellation; want 1", requests)
	}
}
