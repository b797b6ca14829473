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

import "sync"

// ViewNotifier fans the host map's pan/zoom/resize events out to mounted
// overlays. The host calls Update on every view change; subscribers
// receive the most recent view state and may miss intermediate states if
// they render slower than the host pans, which is the desired behavior:
// rendering is re-triggered by the latest view, not queued per event.
type ViewNotifier struct {
	mu   sync.Mutex
	subs map[int]chan ViewState
	next int
}

// NewViewNotifier creates an empty notifier.
func NewViewNotifier() *ViewNotifier {
	return &ViewNotifier{subs: make(map[int]chan ViewState)}
}

// Update delivers a new view state to all subscribers. A subscriber that
// has not consumed the previous state has it replaced by this one.
func (n *ViewNotifier) Update(v ViewState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// Subscribe registers a new listener. The returned cancel function
// detaches it; cancel is idempotent.
func (n *ViewNotifier) Subscribe() (<-chan ViewState, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	ch := make(chan ViewState, 1)
	n.subs[id] = ch
	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if _, ok := n.subs[id]; ok {
			delete(n.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Listeners returns the number of attached subscribers.
func (n *ViewNotifier) Listeners() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
