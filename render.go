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
	"fmt"
	"image/color"
	"io"
	"math"
	"sync"

	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// resizeThreshold is how many pixels an overlay's computed size must
// change by before the backing canvas is reallocated and repainted.
// Repositioning a canvas is cheap; repainting is not, so pans and small
// zoom adjustments reuse the previous paint pass.
const resizeThreshold = 2

// A Surface is one rendered overlay layer: a positioned, sized drawable
// buffer. A hidden surface has a placement but no pixels.
type Surface struct {
	Placement LayerPlacement

	canvas *vgimg.Canvas
}

// Hidden reports whether the surface has nothing to draw.
func (s *Surface) Hidden() bool { return s == nil || s.canvas == nil }

// WriteTo encodes the surface as a PNG image.
func (s *Surface) WriteTo(w io.Writer) (int64, error) {
	if s.Hidden() {
		return 0, fmt.Errorf("exposuremap: surface is hidden; nothing to encode")
	}
	png := vgimg.PngCanvas{Canvas: s.canvas}
	return png.WriteTo(w)
}

// OverlayStyle selects how an asset's grid is drawn.
type OverlayStyle int

const (
	// StyleCircles draws graduated circle symbols: one circle per grid
	// cell with positive concentration and population, colored by risk
	// bin and sized by population bin.
	StyleCircles OverlayStyle = iota

	// StyleHeatmap draws the legacy raster overlay: each cell filled
	// with a log-scaled person-exposure heat color.
	StyleHeatmap
)

// An Overlay renders one asset's grid for arbitrary view states. The
// concrete variant (circles or heatmap) is chosen once at construction,
// not re-decided per render.
//
// The overlay lifecycle is Created → Positioned → Rendered →
// (Positioned on view change) → Destroyed. After Dispose the overlay
// renders nothing and holds no resources; failing to call Dispose on an
// overlay mounted on a ViewNotifier leaks the view-state listener.
type Overlay interface {
	Key() Key
	Render(ViewState) (*Surface, error)
	Dispose()
}

// NewOverlay creates an overlay for the given asset grid. The style
// decision is made here, once, at load time.
func NewOverlay(grid *Grid, style OverlayStyle) (Overlay, error) {
	switch style {
	case StyleCircles:
		return NewCircleOverlay(grid, DefaultRiskBins, DefaultPopulationBins)
	case StyleHeatmap:
		return NewHeatmapOverlay(grid)
	default:
		return nil, fmt.Errorf("exposuremap: unknown overlay style %d", style)
	}
}

// overlayState tracks an overlay's position in its lifecycle.
type overlayState int

const (
	overlayCreated overlayState = iota
	overlayPositioned
	overlayRendered
	overlayDestroyed
)

// overlayBase carries the state shared by both overlay variants: the
// lifecycle state, the cached paint pass, and the optional view-feed
// subscription.
type overlayBase struct {
	grid *Grid

	mu      sync.Mutex
	state   overlayState
	surface *Surface
	detach  func()
}

func (o *overlayBase) Key() Key { return o.grid.Key }

// render positions the overlay under v and, when the pixel size moved by
// more than resizeThreshold, repaints it using paint. It implements the
// reposition-versus-repaint split for both variants.
func (o *overlayBase) render(v ViewState, paint func(c draw.Canvas, pl LayerPlacement)) (*Surface, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == overlayDestroyed {
		return nil, ErrStaleRequest
	}
	pl, err := PlaceLayer(o.grid.Key, o.grid.Box, v)
	if err != nil {
		return nil, err
	}
	if pl.Hidden {
		o.state = overlayPositioned
		o.surface = &Surface{Placement: pl}
		return o.surface, nil
	}
	if o.state == overlayRendered && !o.surface.Hidden() &&
		abs(pl.Width-o.surface.Placement.Width) <= resizeThreshold &&
		abs(pl.Height-o.surface.Placement.Height) <= resizeThreshold {
		// Same backing buffer, new position.
		repositioned := &Surface{Placement: pl, canvas: o.surface.canvas}
		repositioned.Placement.Width = o.surface.Placement.Width
		repositioned.Placement.Height = o.surface.Placement.Height
		o.surface = repositioned
		return o.surface, nil
	}
	// At 72 DPI one vg point is one pixel, so the buffer dimensions
	// below are exact pixel counts.
	img := vgimg.NewWith(
		vgimg.UseWH(vg.Length(pl.Width), vg.Length(pl.Height)),
		vgimg.UseDPI(72),
		vgimg.UseBackgroundColor(color.Transparent),
	)
	c := draw.New(img)
	paint(c, pl)
	o.surface = &Surface{Placement: pl, canvas: img}
	o.state = overlayRendered
	return o.surface, nil
}

// Watch mounts the overlay on a view notifier: every view update
// re-renders and the result is passed to sink. Dispose detaches the
// listener.
func (o *overlayBase) watch(overlay Overlay, n *ViewNotifier, sink func(*Surface, error)) {
	ch, cancel := n.Subscribe()
	o.mu.Lock()
	o.detach = cancel
	o.mu.Unlock()
	go func() {
		for v := range ch {
			sink(overlay.Render(v))
		}
	}()
}

// Dispose releases the canvas and detaches any view-state listener.
// It is safe to call more than once.
func (o *overlayBase) Dispose() {
	o.mu.Lock()
	detach := o.detach
	o.detach = nil
	o.surface = nil
	o.state = overlayDestroyed
	o.mu.Unlock()
	if detach != nil {
		detach()
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// CircleOverlay draws graduated circle symbols from a grid. Symbol area,
// not diameter, is proportional to the population bin magnitude.
type CircleOverlay struct {
	overlayBase
	riskBins []RiskBin
	popBins  []PopulationBin
}

// NewCircleOverlay creates a graduated-symbol overlay with the given bin
// definitions.
func NewCircleOverlay(grid *Grid, riskBins []RiskBin, popBins []PopulationBin) (*CircleOverlay, error) {
	if err := grid.Box.Check(grid.Key); err != nil {
		return nil, err
	}
	if err := checkRiskBins(riskBins); err != nil {
		return nil, err
	}
	if err := checkPopulationBins(popBins); err != nil {
		return nil, err
	}
	return &CircleOverlay{
		overlayBase: overlayBase{grid: grid},
		riskBins:    riskBins,
		popBins:     popBins,
	}, nil
}

// Render positions the overlay under v and repaints it if its pixel size
// changed materially since the last paint pass.
func (o *CircleOverlay) Render(v ViewState) (*Surface, error) {
	return o.render(v, o.paint)
}

// Watch mounts the overlay on a view notifier; see overlayBase.watch.
func (o *CircleOverlay) Watch(n *ViewNotifier, sink func(*Surface, error)) {
	o.watch(o, n, sink)
}

// paint runs one full paint pass onto c.
func (o *CircleOverlay) paint(c draw.Canvas, pl LayerPlacement) {
	g := o.grid
	cellW := float64(pl.Width) / float64(g.Cols)
	cellH := float64(pl.Height) / float64(g.Rows)
	cellPx := math.Min(cellW, cellH)
	for r := 0; r < g.Rows; r++ {
		for col := 0; col < g.Cols; col++ {
			s := g.At(r, col)
			if s.Concentration <= 0 || s.Population <= 0 {
				continue
			}
			ri := riskBinFor(o.riskBins, s.Concentration)
			pi := populationBinFor(o.popBins, s.Population)
			if ri < 0 || pi < 0 {
				continue
			}
			radius := symbolRadius(o.popBins, pi, cellPx)
			if radius <= 0 {
				continue
			}
			x := (float64(col) + 0.5) * cellW
			// The canvas origin is at the bottom left; grid row 0
			// is the north edge.
			y := float64(pl.Height) - (float64(r)+0.5)*cellH
			fillCircle(c, vg.Point{X: vg.Length(x), Y: vg.Length(y)},
				vg.Length(radius), o.riskBins[ri].Color)
		}
	}
}

// fillCircle draws a filled circle onto c.
func fillCircle(c draw.Canvas, center vg.Point, radius vg.Length, col color.Color) {
	c.SetColor(col)
	var p vg.Path
	p.Move(vg.Point{X: center.X + radius, Y: center.Y})
	p.Arc(center, radius, 0, 2*math.Pi)
	p.Close()
	c.Fill(p)
}

// HeatmapOverlay is the legacy raster variant: every cell with positive
// person-exposure is filled with a heat color on a log-normalized ramp
// from yellow through orange and red to purple.
type HeatmapOverlay struct {
	overlayBase
	maxExposure float64
}

// NewHeatmapOverlay creates a legacy heat-raster overlay.
func NewHeatmapOverlay(grid *Grid) (*HeatmapOverlay, error) {
	if err := grid.Box.Check(grid.Key); err != nil {
		return nil, err
	}
	o := &HeatmapOverlay{overlayBase: overlayBase{grid: grid}}
	for r := 0; r < grid.Rows; r++ {
		for c := 0; c < grid.Cols; c++ {
			if e := grid.At(r, c).PersonExposure; e > o.maxExposure {
				o.maxExposure = e
			}
		}
	}
	if o.maxExposure == 0 {
		o.maxExposure = 1
	}
	return o, nil
}

// Render positions the overlay under v and repaints it if its pixel size
// changed materially since the last paint pass.
func (o *HeatmapOverlay) Render(v ViewState) (*Surface, error) {
	return o.render(v, o.paint)
}

// Watch mounts the overlay on a view notifier; see overlayBase.watch.
func (o *HeatmapOverlay) Watch(n *ViewNotifier, sink func(*Surface, error)) {
	o.watch(o, n, sink)
}

func (o *HeatmapOverlay) paint(c draw.Canvas, pl LayerPlacement) {
	g := o.grid
	cellW := float64(pl.Width) / float64(g.Cols)
	cellH := float64(pl.Height) / float64(g.Rows)
	for r := 0; r < g.Rows; r++ {
		for col := 0; col < g.Cols; col++ {
			e := g.At(r, col).PersonExposure
			if e <= 0 {
				continue
			}
			x0 := float64(col) * cellW
			y0 := float64(pl.Height) - float64(r+1)*cellH
			fillRect(c, x0, y0, cellW, cellH, exposureColor(e, o.maxExposure))
		}
	}
}

// fillRect draws a filled axis-aligned rectangle onto c.
func fillRect(c draw.Canvas, x, y, w, h float64, col color.Color) {
	c.SetColor(col)
	var p vg.Path
	p.Move(vg.Point{X: vg.Length(x), Y: vg.Length(y)})
	p.Line(vg.Point{X: vg.Length(x + w), Y: vg.Length(y)})
	p.Line(vg.Point{X: vg.Length(x + w), Y: vg.Length(y + h)})
	p.Line(vg.Point{X: vg.Length(x), Y: vg.Length(y + h)})
	p.Close()
	c.Fill(p)
}

// exposureColor maps a person-exposure value to the legacy heat ramp:
// transparent at zero, then yellow → orange → red → purple, normalized on
// a log scale against the grid's maximum exposure.
func exposureColor(v, max float64) color.NRGBA {
	norm := math.Log10(v+1) / math.Log10(max+1)
	if norm > 1 {
		norm = 1
	}
	switch {
	case norm <= 0:
		return color.NRGBA{}
	case norm < 0.25:
		return color.NRGBA{R: 255, G: 255, B: 0, A: uint8(norm * 4 * 180)}
	case norm < 0.5:
		progress := (norm - 0.25) * 4
		return color.NRGBA{R: 255, G: uint8(255 - progress*100), B: 0, A: 200}
	case norm < 0.75:
		progress := (norm - 0.5) * 4
		return color.NRGBA{R: 255, G: uint8(155 - progress*155), B: 0, A: 220}
	default:
		progress := (norm - 0.75) * 4
		return color.NRGBA{R: uint8(255 - progress*100), B: uint8(progress * 200), A: 240}
	}
}
