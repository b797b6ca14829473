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
	"sync"
)

// Coordinator serializes overlay selection so that at most one overlay is
// ever active per session. Selecting a new asset (or re-selecting the
// current one) synchronously supersedes any pending selection before the
// new fetch is issued: the superseded request's context is canceled and
// its continuations, which re-check the coordinator's token when they
// resume, silently discard their results. Stale data is therefore never
// rendered and supersession never surfaces as an error to the user.
type Coordinator struct {
	store *Store
	style OverlayStyle

	mu     sync.Mutex
	token  uint64
	cancel context.CancelFunc
	active Overlay
}

// NewCoordinator creates a coordinator that builds overlays of the given
// style from grids fetched through store.
func NewCoordinator(store *Store, style OverlayStyle) *Coordinator {
	return &Coordinator{store: store, style: style}
}

// Select makes the given asset the session's active overlay, superseding
// any in-flight selection. It returns ErrStaleRequest if the selection was
// itself superseded while its grid was being fetched; callers treat that
// as a no-op, not a failure. The fetch, including the legacy-shape
// fallback inside the grid store, runs under a context that Select cancels
// when a newer selection arrives.
func (c *Coordinator) Select(ctx context.Context, key Key) (Overlay, error) {
	c.mu.Lock()
	c.token++
	token := c.token
	if c.cancel != nil {
		c.cancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if c.active != nil {
		c.active.Dispose()
		c.active = nil
	}
	c.mu.Unlock()

	grid, err := c.store.Grid(fetchCtx, key)

	// Compare on resume: if a newer selection was issued while the
	// fetch was in flight, this result must have no observable effect.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != token {
		return nil, ErrStaleRequest
	}
	if err != nil {
		return nil, err
	}
	overlay, err := NewOverlay(grid, c.style)
	if err != nil {
		return nil, err
	}
	c.active = overlay
	return overlay, nil
}

// Active returns the currently active overlay, or nil if none is selected.
func (c *Coordinator) Active() Overlay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Clear disposes the active overlay, if any, and cancels any in-flight
// selection.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.active != nil {
		c.active.Dispose()
		c.active = nil
	}
}
