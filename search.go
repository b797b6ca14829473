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
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// kmPerDegree converts angular separation in degrees to kilometers.
//
// Distances here use an equirectangular approximation:
// sqrt(dLat² + dLon²) × 111. At the engine's target search radius
// (≤100 km) the error relative to geodesic distance is negligible, and the
// approximation keeps the search cheap. This is a deliberate
// simplification, not a geodesic distance.
const kmPerDegree = 111.

// compassPoints are the 16 compass directions in clockwise order from north.
var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Neighbor is one asset found by a radius search, annotated with its
// distance and compass bearing from the query point.
type Neighbor struct {
	Asset      *Asset
	DistanceKm float64
	Bearing    string
}

// SearchIndex answers radius queries over asset locations. It is built
// once from the asset index and is safe for concurrent use afterwards.
type SearchIndex struct {
	tree *rtree.Rtree
}

// centerEntry indexes an asset by its center point. The embedded point is
// the asset's center; it satisfies the geom.Geom interface required by
// rtree.Insert.
type centerEntry struct {
	geom.Point
	*Asset
}

func (e centerEntry) Bounds() *geom.Bounds {
	return e.Asset.Center.Bounds()
}

// NewSearchIndex builds a spatial index over the centers of all assets in
// idx.
func NewSearchIndex(idx *Index) *SearchIndex {
	s := &SearchIndex{tree: rtree.NewTree(25, 50)}
	for _, a := range idx.Assets() {
		s.tree.Insert(centerEntry{a.Center, a})
	}
	return s
}

// FindWithin returns all assets whose center lies within radiusKm of p
// (inclusive: an asset exactly at the radius is returned), ordered by
// ascending distance. Ties are broken by asset key so results are
// deterministic.
func (s *SearchIndex) FindWithin(p geom.Point, radiusKm float64) []Neighbor {
	if radiusKm < 0 {
		return nil
	}
	dDeg := radiusKm / kmPerDegree
	searchBox := &geom.Bounds{
		Min: geom.Point{X: p.X - dDeg, Y: p.Y - dDeg},
		Max: geom.Point{X: p.X + dDeg, Y: p.Y + dDeg},
	}
	var out []Neighbor
	for _, item := range s.tree.SearchIntersect(searchBox) {
		a := item.(centerEntry).Asset
		d := DistanceKm(p, a.Center)
		if d > radiusKm {
			continue
		}
		out = append(out, Neighbor{
			Asset:      a,
			DistanceKm: d,
			Bearing:    BearingTo(p, a.Center),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Asset.Key.String() < out[j].Asset.Key.String()
	})
	return out
}

// DistanceKm returns the equirectangular distance in kilometers between
// two geographic points (X=longitude, Y=latitude).
func DistanceKm(from, to geom.Point) float64 {
	dLon := to.X - from.X
	dLat := to.Y - from.Y
	return math.Sqrt(dLat*dLat+dLon*dLon) * kmPerDegree
}

// BearingTo returns the compass direction from one geographic point toward
// another, quantized to 16 points.
func BearingTo(from, to geom.Point) string {
	dLon := to.X - from.X
	dLat := to.Y - from.Y
	deg := math.Atan2(dLon, dLat) * 180 / math.Pi
	for deg < 0 {
		deg += 360
	}
	i := int(math.Floor(deg/22.5+0.5)) % 16
	return compassPoints[i]
}
