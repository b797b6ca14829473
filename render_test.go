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
	"bytes"
	"testing"

	"github.com/ctessum/geom"
)

func renderTestGrid(t *testing.T) *Grid {
	t.Helper()
	key := Key{Country: "BRA", AssetID: "a1"}
	box := BoundingBox{North: -20, South: -21, East: -40, West: -41}
	conc := uniformLayer(4, 4, 0)
	pop := uniformLayer(4, 4, 0)
	conc[1][1] = 12
	pop[1][1] = 500
	conc[2][3] = 40
	pop[2][3] = 20000
	g, err := NewGrid(key, box, conc, pop)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func renderTestView(g *Grid) ViewState {
	return ViewState{Center: g.Box.Center(), Zoom: 10, Width: 1024, Height: 768}
}

func TestCircleOverlayRender(t *testing.T) {
	g := renderTestGrid(t)
	o, err := NewCircleOverlay(g, DefaultRiskBins, DefaultPopulationBins)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Dispose()
	s, err := o.Render(renderTestView(g))
	if err != nil {
		t.Fatal(err)
	}
	if s.Hidden() {
		t.Fatal("surface hidden at zoom 10")
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	// PNG signature.
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("surface did not encode as PNG")
	}
}

func TestOverlayHiddenAtLowZoom(t *testing.T) {
	g := renderTestGrid(t)
	o, err := NewOverlay(g, StyleCircles)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Dispose()
	v := ViewState{Center: g.Box.Center(), Zoom: 0, Width: 256, Height: 256}
	s, err := o.Render(v)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Hidden() || !s.Placement.Hidden {
		t.Error("sub-threshold layer not hidden")
	}
	if _, err := s.WriteTo(&bytes.Buffer{}); err == nil {
		t.Error("hidden surface encoded without error")
	}
}

func TestOverlayRepositionReusesBuffer(t *testing.T) {
	g := renderTestGrid(t)
	o, err := NewCircleOverlay(g, DefaultRiskBins, DefaultPopulationBins)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Dispose()
	v1 := renderTestView(g)
	s1, err := o.Render(v1)
	if err != nil {
		t.Fatal(err)
	}
	// Pan the view: the layer size is unchanged, so the paint pass is
	// reused and only the placement moves.
	v2 := v1
	v2.Center = geom.Point{X: v1.Center.X + 0.1, Y: v1.Center.Y}
	s2, err := o.Render(v2)
	if err != nil {
		t.Fatal(err)
	}
	if s2.canvas != s1.canvas {
		t.Error("pan repainted the canvas instead of repositioning it")
	}
	if s2.Placement.Left == s1.Placement.Left {
		t.Error("pan did not move the layer")
	}
	// A zoom change resizes the layer beyond the threshold and forces a
	// repaint.
	v3 := v1
	v3.Zoom = 11
	s3, err := o.Render(v3)
	if err != nil {
		t.Fatal(err)
	}
	if s3.canvas == s1.canvas {
		t.Error("zoom change did not repaint the canvas")
	}
	if s3.Placement.Width <= s1.Placement.Width {
		t.Errorf("zoomed layer width %d not larger than %d", s3.Placement.Width, s1.Placement.Width)
	}
}

func TestOverlayDispose(t *testing.T) {
	g := renderTestGrid(t)
	o, err := NewOverlay(g, StyleCircles)
	if err != nil {
		t.Fatal(err)
	}
	o.Dispose()
	if _, err := o.Render(renderTestView(g)); err != ErrStaleRequest {
		t.Errorf("render after Dispose gave %v; want ErrStaleRequest", err)
	}
	// Dispose is idempotent.
	o.Dispose()
}

func TestOverlayWatch(t *testing.T) {
	g := renderTestGrid(t)
	o, err := NewCircleOverlay(g, DefaultRiskBins, DefaultPopulationBins)
	if err != nil {
		t.Fatal(err)
	}
	n := NewViewNotifier()
	got := make(chan *Surface, 1)
	o.Watch(n, func(s *Surface, err error) {
		if err != nil {
			t.Error(err)
			return
		}
		select {
		case got <- s:
		default:
		}
	})
	if n.Listeners() != 1 {
		t.Fatalf("notifier has %d listeners; want 1", n.Listeners())
	}
	n.Update(renderTestView(g))
	s := <-got
	if s.Hidden() {
		t.Error("watched render produced a hidden surface")
	}
	o.Dispose()
	if n.Listeners() != 0 {
		t.Errorf("notifier has %d listeners after Dispose; want 0", n.Listeners())
	}
}

func TestNewHeatmapOverlay(t *testing.T) {
	g := renderTestGrid(t)
	o, err := NewHeatmapOverlay(g)
	if err != nil {
		t.Fatal(err)
	}
	defer o.Dispose()
	if want := 40. * 20000; o.maxExposure != want {
		t.Errorf("maxExposure = %g; want %g", o.maxExposure, want)
	}
	s, err := o.Render(renderTestView(g))
	if err != nil {
		t.Fatal(err)
	}
	if s.Hidden() {
		t.Error("heatmap surface hidden at zoom 10")
	}
}

func TestExposureColor(t *testing.T) {
	if c := exposureColor(0, 100); c.A != 0 {
		t.Errorf("zero exposure has alpha %d; want 0", c.A)
	}
	// The ramp starts yellow and ends purple-ish with blue present.
	low := exposureColor(1, 1e6)
	if low.R != 255 || low.G != 255 || low.B != 0 {
		t.Errorf("low exposure color = %+v; want yellow", low)
	}
	high := exposureColor(1e6, 1e6)
	if high.B == 0 {
		t.Errorf("maximum exposure color = %+v; want a blue component", high)
	}
	// Values above the normalization maximum clamp instead of wrapping.
	if over, max := exposureColor(1e9, 1e6), exposureColor(1e6, 1e6); over != max {
		t.Errorf("over-max color %+v differs from max color %+v", over, max)
	}
}

func TestNewOverlayUnknownStyle(t *testing.T) {
	g := renderTestGrid(t)
	if _, err := NewOverlay(g, OverlayStyle(99)); err == nil {
		t.Error("unknown style accepted")
	}
}
