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
	"sort"
	"sync"

	"github.com/ctessum/geom"
)

// SessionState is the lifecycle state of a point-analysis session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionSearching
	SessionResolving
	SessionReady
	SessionEmpty
	SessionError
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionSearching:
		return "searching"
	case SessionResolving:
		return "resolving"
	case SessionReady:
		return "ready"
	case SessionEmpty:
		return "empty"
	case SessionError:
		return "error"
	}
	return "unknown"
}

// EmptyReason distinguishes the two user-visible ways a session can end
// with no contributions: no asset was within search range at all, or
// assets were in range but none had coverage at the exact point.
type EmptyReason int

const (
	EmptyNone EmptyReason = iota
	NoNearbyAssets
	NoCoverageAtPoint
)

// Contribution is one asset's contribution at the clicked point.
type Contribution struct {
	Asset             *Asset
	DistanceKm        float64
	Bearing           string
	Concentration     float64
	PopulationAtPoint float64
	PersonExposure    float64
}

// AnalysisResult is the outcome of analyzing one clicked point. Results
// are immutable: a new click produces a new result; an old result is never
// updated in place.
//
// TotalConcentration is the sum over the contributing assets only. The
// contributing assets are a subset of real-world sources, so the total
// must never be presented as a percentage-of-total attribution.
type AnalysisResult struct {
	Point         geom.Point
	State         SessionState
	Reason        EmptyReason
	Contributions []Contribution

	// Connectors are visual connector lines from the clicked point to
	// each contributing asset's center, in contribution order.
	Connectors []geom.LineString

	TotalConcentration float64

	// AssetErrors records per-asset fetch failures that occurred during
	// resolution. Affected assets are absent from Contributions; the
	// errors are surfaced so the presentation layer can offer a retry.
	AssetErrors []error
}

// SearchRadiusKm is the fixed radius used by point analysis.
const SearchRadiusKm = 100.

// Analyzer orchestrates the radius search and per-asset grid lookups for
// clicked points. Each Analyze call is one session; a new call atomically
// supersedes the previous one, so partial results from an old point are
// never merged into a new point's results.
type Analyzer struct {
	// RadiusKm is the search radius. The default is SearchRadiusKm.
	RadiusKm float64

	search *SearchIndex
	store  *Store

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	state      SessionState
	result     *AnalysisResult
}

// NewAnalyzer creates an analyzer over the given search index and grid
// store.
func NewAnalyzer(search *SearchIndex, store *Store) *Analyzer {
	return &Analyzer{RadiusKm: SearchRadiusKm, search: search, store: store}
}

// State returns the current session state.
func (a *Analyzer) State() SessionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Result returns the most recent completed analysis, or nil.
func (a *Analyzer) Result() *AnalysisResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// Exit resets the session to idle, discarding any in-flight work and the
// current result.
func (a *Analyzer) Exit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.state = SessionIdle
	a.result = nil
}

// begin supersedes any in-flight session and returns the new session's
// generation and context.
func (a *Analyzer) begin(ctx context.Context) (uint64, context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation++
	gen := a.generation
	if a.cancel != nil {
		a.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state = SessionSearching
	return gen, runCtx
}

// commit installs a finished result if the session has not been
// superseded. It reports whether the result was installed.
func (a *Analyzer) commit(gen uint64, r *AnalysisResult) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		return false
	}
	a.state = r.State
	a.result = r
	return true
}

// setState updates the session state if the session is still current.
func (a *Analyzer) setState(gen uint64, s SessionState) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		return false
	}
	a.state = s
	return true
}

// Analyze runs a full point-analysis session for the clicked point:
// radius search, concurrent per-candidate grid fetches, cell resolution,
// and ranking by concentration descending. It returns ErrStaleRequest if
// a newer click superseded this one while it was running.
func (a *Analyzer) Analyze(ctx context.Context, p geom.Point) (*AnalysisResult, error) {
	gen, runCtx := a.begin(ctx)

	neighbors := a.search.FindWithin(p, a.RadiusKm)
	if len(neighbors) == 0 {
		r := &AnalysisResult{Point: p, State: SessionEmpty, Reason: NoNearbyAssets}
		if !a.commit(gen, r) {
			return nil, ErrStaleRequest
		}
		return r, nil
	}

	if !a.setState(gen, SessionResolving) {
		return nil, ErrStaleRequest
	}

	// Only candidates whose bounding box contains the point can have
	// coverage there; the rest never trigger a grid fetch.
	var candidates []Neighbor
	for _, n := range neighbors {
		if n.Asset.Box.Contains(p) {
			candidates = append(candidates, n)
		}
	}

	type resolved struct {
		n   Neighbor
		s   Sample
		err error
	}
	results := make([]resolved, len(candidates))
	var wg sync.WaitGroup
	for i, n := range candidates {
		// Grid fetches for different assets run concurrently; the
		// store deduplicates concurrent fetches per asset.
		wg.Add(1)
		go func(i int, n Neighbor) {
			defer wg.Done()
			grid, err := a.store.Grid(runCtx, n.Asset.Key)
			if err != nil {
				results[i] = resolved{n: n, err: err}
				return
			}
			s, err := Resolve(grid, p)
			results[i] = resolved{n: n, s: s, err: err}
		}(i, n)
	}
	wg.Wait()

	if runCtx.Err() != nil {
		return nil, ErrStaleRequest
	}

	r := &AnalysisResult{Point: p}
	for _, res := range results {
		switch {
		case res.err == ErrNoCoverage:
			// A cell can be inside the box with no assigned data.
		case res.err != nil:
			r.AssetErrors = append(r.AssetErrors, res.err)
		default:
			r.Contributions = append(r.Contributions, Contribution{
				Asset:             res.n.Asset,
				DistanceKm:        res.n.DistanceKm,
				Bearing:           res.n.Bearing,
				Concentration:     res.s.Concentration,
				PopulationAtPoint: res.s.Population,
				PersonExposure:    res.s.PersonExposure,
			})
		}
	}

	sort.SliceStable(r.Contributions, func(i, j int) bool {
		return r.Contributions[i].Concentration > r.Contributions[j].Concentration
	})
	for _, c := range r.Contributions {
		r.TotalConcentration += c.Concentration
		r.Connectors = append(r.Connectors, geom.LineString{p, c.Asset.Center})
	}

	switch {
	case len(r.Contributions) > 0:
		r.State = SessionReady
	case len(r.AssetErrors) > 0:
		r.State = SessionError
	default:
		r.State = SessionEmpty
		r.Reason = NoCoverageAtPoint
	}

	if !a.commit(gen, r) {
		return nil, ErrStaleRequest
	}
	return r, nil
}
