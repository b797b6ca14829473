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

// Resolve maps a geographic point into grid-cell coordinates and returns
// the containing cell's stored sample.
//
// The point is first tested against the grid's bounding box so that points
// clearly outside never touch the layer data. Points inside are mapped
// through the grid's affine transform, floored to integer indices, and
// bounds-checked against the actual array extents, which protects against
// off-by-one indexing for points exactly on the east or south box edges.
//
// Resolve returns ErrNoCoverage when the point is outside the box, when
// the computed cell is outside the array, or when both the concentration
// and population samples at the cell are non-positive: a cell can be
// geometrically inside the box yet carry no assigned source data.
//
// The lookup is nearest-cell only. Interpolating across cell boundaries
// would silently change the values reported for points near cell edges, so
// it is deliberately not done here.
func Resolve(grid *Grid, p geom.Point) (Sample, error) {
	if err := grid.Box.Check(grid.Key); err != nil {
		return Sample{}, err
	}
	if !grid.Box.Contains(p) {
		return Sample{}, ErrNoCoverage
	}
	r, c := grid.CellIndex(p)
	// A point exactly on the east or south edge floors to an index one
	// past the end; treat it as the edge cell.
	if r == grid.Rows {
		r = grid.Rows - 1
	}
	if c == grid.Cols {
		c = grid.Cols - 1
	}
	if r < 0 || r >= grid.Rows || c < 0 || c >= grid.Cols {
		return Sample{}, ErrNoCoverage
	}
	s := grid.At(r, c)
	if s.Concentration <= 0 && s.Population <= 0 {
		return Sample{}, ErrNoCoverage
	}
	return s, nil
}
