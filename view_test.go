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
	"testing"

	"github.com/ctessum/geom"
)

func TestViewNotifierLatestWins(t *testing.T) {
	n := NewViewNotifier()
	ch, cancel := n.Subscribe()
	defer cancel()

	v1 := ViewState{Center: geom.Point{X: 1}, Zoom: 5, Width: 100, Height: 100}
	v2 := ViewState{Center: geom.Point{X: 2}, Zoom: 6, Width: 100, Height: 100}
	// A slow subscriber sees only the latest state.
	n.Update(v1)
	n.Update(v2)
	if have := <-ch; have != v2 {
		t.Errorf("received %+v; want the later state %+v", have, v2)
	}
	select {
	case v := <-ch:
		t.Errorf("unexpected second state %+v", v)
	default:
	}
}

func TestViewNotifierCancel(t *testing.T) {
	n := NewViewNotifier()
	ch, cancel := n.Subscribe()
	if n.Listeners() != 1 {
		t.Fatalf("listeners = %d; want 1", n.Listeners())
	}
	cancel()
	cancel() // idempotent
	if n.Listeners() != 0 {
		t.Errorf("listeners after cancel = %d; want 0", n.Listeners())
	}
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
	// Updates after cancel must not panic.
	n.Update(ViewState{Zoom: 1, Width: 10, Height: 10})
}

func TestViewNotifierMultipleSubscribers(t *testing.T) {
	n := NewViewNotifier()
	ch1, cancel1 := n.Subscribe()
	ch2, cancel2 := n.Subscribe()
	defer cancel1()
	defer cancel2()

	v := ViewState{Zoom: 3, Width: 640, Height: 480}
	n.Update(v)
	if have := <-ch1; have != v {
		t.Errorf("subscriber 1 received %+v", have)
	}
	if have := <-ch2; have != v {
		t.Errorf("subscriber 2 received %+v", have)
	}
}
