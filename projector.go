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
	"math"

	"github.com/ctessum/geom"
)

const (
	// TileSize is the host map's tile edge length in pixels. The map's
	// pixel density doubles with every zoom level, so the world is
	// TileSize × 2^zoom pixels wide at a given zoom.
	TileSize = 256

	// MinLayerPixels is the smallest overlay edge length worth drawing.
	// Below this size rendering artifacts are indistinguishable from
	// nothing, so the layer is hidden instead.
	MinLayerPixels = 4

	// MaxLayerArea bounds the total pixel area of one overlay's backing
	// buffer. Layers that would exceed it at extreme zoom are scaled
	// down preserving aspect ratio rather than allocating unboundedly.
	MaxLayerArea = 4096 * 4096
)

// ViewState is the host map's current view: center, zoom level, and
// viewport pixel size. It is supplied on every projection and render call
// and is never retained by the engine.
type ViewState struct {
	Center geom.Point // X=longitude, Y=latitude
	Zoom   float64
	Width  int // viewport width, pixels
	Height int // viewport height, pixels
}

// ScreenPoint is a position in the viewport's pixel space, origin at the
// top-left corner with y increasing downward.
type ScreenPoint struct {
	X, Y float64
}

// worldPixels returns the edge length of the whole world in pixels at the
// given zoom level.
func worldPixels(zoom float64) float64 {
	return TileSize * math.Exp2(zoom)
}

// PixelsPerDegree returns the horizontal pixel density of the host map at
// the given zoom level: 2^zoom × TileSize / 360.
func PixelsPerDegree(zoom float64) float64 {
	return worldPixels(zoom) / 360
}

// maxLatitude clamps latitudes near the poles where the Mercator
// projection diverges.
const maxLatitude = 89.9999

// worldProject maps a geographic point to spherical-Mercator world pixel
// coordinates at the given zoom.
func worldProject(p geom.Point, zoom float64) (x, y float64) {
	world := worldPixels(zoom)
	lat := math.Max(-maxLatitude, math.Min(maxLatitude, p.Y))
	siny := math.Sin(lat * math.Pi / 180)
	x = (p.X + 180) / 360 * world
	y = (0.5 - math.Log((1+siny)/(1-siny))/(4*math.Pi)) * world
	return x, y
}

// worldUnproject is the inverse of worldProject.
func worldUnproject(x, y, zoom float64) geom.Point {
	world := worldPixels(zoom)
	lon := x/world*360 - 180
	n := math.Pi * (1 - 2*y/world)
	lat := math.Atan(math.Sinh(n)) * 180 / math.Pi
	return geom.Point{X: lon, Y: lat}
}

// Project maps a geographic point (X=longitude, Y=latitude) to viewport
// pixel coordinates under the given view state. It is pure and stateless:
// Project and Unproject called with the same view state are exact inverses
// of each other up to floating-point tolerance.
func Project(p geom.Point, v ViewState) ScreenPoint {
	px, py := worldProject(p, v.Zoom)
	cx, cy := worldProject(v.Center, v.Zoom)
	return ScreenPoint{
		X: px - cx + float64(v.Width)/2,
		Y: py - cy + float64(v.Height)/2,
	}
}

// Unproject maps viewport pixel coordinates back to a geographic point
// under the given view state.
func Unproject(sp ScreenPoint, v ViewState) geom.Point {
	cx, cy := worldProject(v.Center, v.Zoom)
	x := sp.X + cx - float64(v.Width)/2
	y := sp.Y + cy - float64(v.Height)/2
	return worldUnproject(x, y, v.Zoom)
}

// LayerPlacement positions an overlay surface in viewport pixel space.
type LayerPlacement struct {
	// Left and Top locate the surface's top-left corner in the viewport.
	Left, Top float64

	// Width and Height are the surface's backing-buffer dimensions in
	// pixels. When the placement was clamped to MaxLayerArea they are
	// smaller than the on-screen extent; ScaleX and ScaleY convert from
	// buffer pixels back to screen pixels.
	Width, Height int
	ScaleX        float64
	ScaleY        float64

	// Hidden reports that the layer is too small to draw at this view
	// and should not be rendered at all.
	Hidden bool
}

// PlaceLayer computes the overlay surface placement for an asset bounding
// box under the given view state, projecting the box's two opposite
// corners. It must be called again on every view-state change. A
// degenerate box yields a GeometryError; the projector itself never
// panics.
func PlaceLayer(key Key, box BoundingBox, v ViewState) (LayerPlacement, error) {
	if err := box.Check(key); err != nil {
		return LayerPlacement{}, err
	}
	nw := Project(geom.Point{X: box.West, Y: box.North}, v)
	se := Project(geom.Point{X: box.East, Y: box.South}, v)
	w := se.X - nw.X
	h := se.Y - nw.Y
	pl := LayerPlacement{Left: nw.X, Top: nw.Y, ScaleX: 1, ScaleY: 1}
	if w < MinLayerPixels || h < MinLayerPixels {
		pl.Hidden = true
		return pl, nil
	}
	if w*h > MaxLayerArea {
		s := math.Sqrt(MaxLayerArea / (w * h))
		pl.ScaleX = 1 / s
		pl.ScaleY = 1 / s
		w *= s
		h *= s
	}
	pl.Width = int(math.Round(w))
	pl.Height = int(math.Round(h))
	return pl, nil
}
