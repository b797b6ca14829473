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
	"encoding/json"
	"fmt"
	"io"

	"github.com/ctessum/geom"
)

// IndexMetadata describes the asset index document as a whole.
type IndexMetadata struct {
	TotalAssets int      `json:"total_assets"`
	Countries   []string `json:"countries"`
	DataVersion string   `json:"data_version"`
}

// Index is the static asset index. It is loaded once before any overlay or
// point-analysis work starts and is read-only afterwards.
type Index struct {
	Metadata IndexMetadata

	assets map[Key]*Asset
	order  []Key
}

// indexDocument matches the on-disk assets.json layout produced by the
// offline raster pipeline.
type indexDocument struct {
	Metadata IndexMetadata   `json:"metadata"`
	Assets   []assetDocument `json:"assets"`
}

type assetDocument struct {
	AssetID     string  `json:"asset_id"`
	Country     string  `json:"country"`
	CenterLon   float64 `json:"center_lon"`
	CenterLat   float64 `json:"center_lat"`
	TotalPixels int     `json:"total_pixels"`
	Bounds      struct {
		Left   float64 `json:"left"`
		Bottom float64 `json:"bottom"`
		Right  float64 `json:"right"`
		Top    float64 `json:"top"`
	} `json:"bounds"`
	ConcentrationCounts PixelCounts   `json:"concentration_pixel_counts"`
	PopulationCounts    PixelCounts   `json:"population_pixel_counts"`
	ExposureCounts      PixelCounts   `json:"person_exposure_pixel_counts"`
	Stats               ExposureStats `json:"person_exposure_stats"`
	OverlayDataFile     string        `json:"overlay_data_file"`
	RawDataFile         string        `json:"raw_data_file"`
}

// LoadIndex reads an asset index document from r. Assets with degenerate
// bounding boxes are kept in the index so that the search index and the
// asset listing stay consistent with the source document; their overlays
// are reported as GeometryErrors when used.
func LoadIndex(r io.Reader) (*Index, error) {
	var doc indexDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("exposuremap: decoding asset index: %v", err)
	}
	idx := &Index{
		Metadata: doc.Metadata,
		assets:   make(map[Key]*Asset, len(doc.Assets)),
	}
	for _, d := range doc.Assets {
		a := &Asset{
			Key:         Key{Country: d.Country, AssetID: d.AssetID},
			Center:      geom.Point{X: d.CenterLon, Y: d.CenterLat},
			TotalPixels: d.TotalPixels,
			Box: BoundingBox{
				North: d.Bounds.Top,
				South: d.Bounds.Bottom,
				East:  d.Bounds.Right,
				West:  d.Bounds.Left,
			},
			Stats:               d.Stats,
			ConcentrationCounts: d.ConcentrationCounts,
			PopulationCounts:    d.PopulationCounts,
			ExposureCounts:      d.ExposureCounts,
			OverlayDataFile:     d.OverlayDataFile,
			RawDataFile:         d.RawDataFile,
		}
		if _, ok := idx.assets[a.Key]; ok {
			return nil, fmt.Errorf("exposuremap: duplicate asset %s in index", a.Key)
		}
		idx.assets[a.Key] = a
		idx.order = append(idx.order, a.Key)
	}
	return idx, nil
}

// NewIndex creates an index directly from assets. It is mainly useful for
// tests and for callers that assemble asset metadata themselves.
func NewIndex(assets ...*Asset) (*Index, error) {
	idx := &Index{assets: make(map[Key]*Asset, len(assets))}
	for _, a := range assets {
		if _, ok := idx.assets[a.Key]; ok {
			return nil, fmt.Errorf("exposuremap: duplicate asset %s in index", a.Key)
		}
		idx.assets[a.Key] = a
		idx.order = append(idx.order, a.Key)
	}
	idx.Metadata.TotalAssets = len(assets)
	return idx, nil
}

// Asset returns the asset with the given key, or nil if it is not in the
// index.
func (idx *Index) Asset(key Key) *Asset { return idx.assets[key] }

// Assets returns all assets in index order.
func (idx *Index) Assets() []*Asset {
	out := make([]*Asset, len(idx.order))
	for i, k := range idx.order {
		out[i] = idx.assets[k]
	}
	return out
}

// Len returns the number of assets in the index.
func (idx *Index) Len() int { return len(idx.order) }
