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
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/requestcache"
)

// A Fetcher retrieves one named grid document. Implementations must be safe
// for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// DirFetcher reads grid documents from a local directory.
type DirFetcher struct {
	Dir string
}

// Fetch reads the named document from the fetcher's directory.
func (f DirFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(f.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("exposuremap: reading grid document: %w", err)
	}
	return b, nil
}

// HTTPFetcher retrieves grid documents over HTTP, retrying transient
// failures with exponential backoff. A missing document (HTTP 404) is not
// retried: it means the asset has no document of that shape and the caller
// should fall back to the legacy shape if one exists.
type HTTPFetcher struct {
	// BaseURL is the URL prefix that document names are joined to.
	BaseURL string

	// Client is the HTTP client to use. If nil, http.DefaultClient is
	// used.
	Client *http.Client

	// MaxRetries is the number of retries after the first attempt.
	// The default is 4.
	MaxRetries uint64
}

// Fetch retrieves the named document from the fetcher's base URL.
func (f *HTTPFetcher) Fetch(ctx context.Context, name string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	retries := f.MaxRetries
	if retries == 0 {
		retries = 4
	}
	u, err := url.JoinPath(f.BaseURL, name)
	if err != nil {
		return nil, fmt.Errorf("exposuremap: joining grid document URL: %v", err)
	}
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("exposuremap: grid document %s: %s", name, resp.Status))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("exposuremap: grid document %s: %s", name, resp.Status)
		}
		body, err = io.ReadAll(resp.Body)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return body, nil
}

// Store provides cached, deduplicated asynchronous retrieval of per-asset
// grids. Concurrent callers for the same asset share one in-flight fetch,
// and completed fetches are cached for the process lifetime. A failed fetch
// is reported to its callers but not cached, so a later call may retry.
//
// The backing dataset is bounded (one grid per asset) but the store never
// fetches more than one asset's grid per request.
type Store struct {
	// CacheEntries is the maximum number of grids held in memory. It can
	// only be changed before the first Grid call. The default is 512.
	CacheEntries int

	index   *Index
	fetcher Fetcher

	cache     *requestcache.Cache
	cacheOnce sync.Once
}

// NewStore creates a grid store for the assets in idx, retrieving grid
// documents through f.
func NewStore(idx *Index, f Fetcher) *Store {
	return &Store{
		CacheEntries: 512,
		index:        idx,
		fetcher:      f,
	}
}

// Grid returns the grid for the given asset, fetching it on first use.
func (s *Store) Grid(ctx context.Context, key Key) (*Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.cacheOnce.Do(func() {
		s.cache = requestcache.NewCache(func(ctx context.Context, request interface{}) (interface{}, error) {
			return s.fetch(ctx, request.(Key))
		}, runtime.GOMAXPROCS(-1),
			requestcache.Deduplicate(), requestcache.Memory(s.CacheEntries))
	})
	// Deduplicated requests share the first requester's context, so the
	// shared fetch runs detached from it. Otherwise canceling one caller
	// could fail the fetch for live callers waiting on the same key.
	req := s.cache.NewRequest(context.WithoutCancel(ctx), key, key.String())
	result, err := req.Result()
	if err != nil {
		switch err.(type) {
		case GeometryError, DataUnavailable:
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, DataUnavailable{Key: key, Err: err}
	}
	return result.(*Grid), nil
}

// gridDocument matches the per-asset overlay JSON written by the offline
// pipeline. The primary shape stores layers under "data_arrays"; the legacy
// raw shape stores them under "data".
type gridDocument struct {
	AssetID    string `json:"asset_id"`
	Country    string `json:"country"`
	Dimensions struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"dimensions"`
	Bounds struct {
		North float64 `json:"north"`
		South float64 `json:"south"`
		East  float64 `json:"east"`
		West  float64 `json:"west"`
	} `json:"bounds"`
	DataArrays *gridLayers `json:"data_arrays"`
	Data       *gridLayers `json:"data"`
}

type gridLayers struct {
	Concentration [][]float64 `json:"concentration"`
	Population    [][]float64 `json:"population"`
}

// fetch retrieves and decodes one asset's grid, trying the primary
// document shape first and falling back to the legacy raw shape.
func (s *Store) fetch(ctx context.Context, key Key) (*Grid, error) {
	primary := key.String() + "_data.json"
	legacy := key.String() + "_raw.json"
	if a := s.index.Asset(key); a != nil {
		if a.OverlayDataFile != "" {
			primary = a.OverlayDataFile
		}
		if a.RawDataFile != "" {
			legacy = a.RawDataFile
		}
	}
	body, primaryErr := s.fetcher.Fetch(ctx, primary)
	if primaryErr != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var legacyErr error
		body, legacyErr = s.fetcher.Fetch(ctx, legacy)
		if legacyErr != nil {
			return nil, fmt.Errorf("exposuremap: fetching grid for asset %s: %v (legacy fallback: %v)",
				key, primaryErr, legacyErr)
		}
	}
	return decodeGrid(key, body)
}

// decodeGrid parses a grid document of either shape.
func decodeGrid(key Key, body []byte) (*Grid, error) {
	var doc gridDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("exposuremap: decoding grid for asset %s: %v", key, err)
	}
	layers := doc.DataArrays
	if layers == nil {
		layers = doc.Data
	}
	if layers == nil || layers.Concentration == nil || layers.Population == nil {
		return nil, fmt.Errorf("exposuremap: grid document for asset %s has no layer data", key)
	}
	box := BoundingBox{
		North: doc.Bounds.North,
		South: doc.Bounds.South,
		East:  doc.Bounds.East,
		West:  doc.Bounds.West,
	}
	g, err := NewGrid(key, box, layers.Concentration, layers.Population)
	if err != nil {
		return nil, err
	}
	if doc.Dimensions.Width != 0 && (g.Cols != doc.Dimensions.Width || g.Rows != doc.Dimensions.Height) {
		return nil, fmt.Errorf("exposuremap: grid for asset %s is %d×%d but document declares %d×%d",
			key, g.Rows, g.Cols, doc.Dimensions.Height, doc.Dimensions.Width)
	}
	return g, nil
}
