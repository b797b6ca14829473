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
	"github.com/ctessum/geom"
)

// Key identifies one asset. Assets are keyed by country code and asset ID
// because asset IDs are only unique within a country.
type Key struct {
	Country string
	AssetID string
}

func (k Key) String() string { return k.Country + "_" + k.AssetID }

// BoundingBox is a geographic bounding box in degrees. North and East must
// be strictly greater than South and West respectively; a box that is not
// is a defined error state (GeometryError), never silently tolerated.
type BoundingBox struct {
	North, South, East, West float64
}

// Width returns the longitudinal extent of the box in degrees.
func (b BoundingBox) Width() float64 { return b.East - b.West }

// Height returns the latitudinal extent of the box in degrees.
func (b BoundingBox) Height() float64 { return b.North - b.South }

// Center returns the box center as a point with X=longitude, Y=latitude.
func (b BoundingBox) Center() geom.Point {
	return geom.Point{X: (b.West + b.East) / 2, Y: (b.South + b.North) / 2}
}

// Contains reports whether p (X=longitude, Y=latitude) lies inside the box.
// Points exactly on the edge are considered inside.
func (b BoundingBox) Contains(p geom.Point) bool {
	return p.X >= b.West && p.X <= b.East && p.Y >= b.South && p.Y <= b.North
}

// Bounds returns the box as a geom.Bounds for use with spatial indexes.
func (b BoundingBox) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b.West, Y: b.South},
		Max: geom.Point{X: b.East, Y: b.North},
	}
}

// Check returns a GeometryError if the box has non-positive width or
// height, and nil otherwise. key scopes the error to an asset.
func (b BoundingBox) Check(key Key) error {
	if b.Width() <= 0 || b.Height() <= 0 {
		return GeometryError{Key: key, Bounds: b}
	}
	return nil
}

// ExposureStats holds the summary statistics for an asset's person-exposure
// raster, computed offline as concentration × population per pixel.
type ExposureStats struct {
	Total         float64 `json:"total_person_exposure"`
	Mean          float64 `json:"mean_person_exposure"`
	Max           float64 `json:"max_person_exposure"`
	Min           float64 `json:"min_person_exposure"`
	StdDev        float64 `json:"std_person_exposure"`
	NonZeroPixels int     `json:"non_zero_pixels"`
	NonZeroMean   float64 `json:"non_zero_mean"`
}

// PixelCounts maps order-of-magnitude range labels (e.g. "1-10", "10-100")
// to the number of raster pixels whose value falls within the range.
type PixelCounts map[string]int

// Asset is one modeled industrial facility. Assets are loaded once from the
// static index at startup and are immutable afterwards.
type Asset struct {
	Key

	// Center is the asset location (X=longitude, Y=latitude).
	Center geom.Point

	// Box is the geographic extent of the asset's grid.
	Box BoundingBox

	// TotalPixels is the pixel count of the full-resolution source raster.
	TotalPixels int

	// Stats summarizes the asset's person-exposure raster.
	Stats ExposureStats

	// ConcentrationCounts, PopulationCounts, and ExposureCounts are
	// order-of-magnitude histograms of the three source rasters.
	ConcentrationCounts PixelCounts
	PopulationCounts    PixelCounts
	ExposureCounts      PixelCounts

	// OverlayDataFile and RawDataFile name the per-asset grid documents.
	// OverlayDataFile is the primary shape; RawDataFile is the legacy
	// shape used as a fallback when the primary is unavailable.
	OverlayDataFile string
	RawDataFile     string
}

// indexedAsset adapts an Asset for insertion into an rtree, which indexes
// items by their bounding rectangle.
type indexedAsset struct {
	*Asset
}

func (a indexedAsset) Bounds() *geom.Bounds { return a.Box.Bounds() }
