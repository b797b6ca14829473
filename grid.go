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
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/floats"
)

// Grid is one asset's rectangular array of paired concentration and
// population samples. Row 0 is the north edge and column 0 is the west
// edge; the asset bounding box defines the affine map between geographic
// coordinates and cell indices. Grids are fetched lazily and cached for the
// session lifetime, so they are never mutated after creation.
type Grid struct {
	Key  Key
	Box  BoundingBox
	Rows int
	Cols int

	// Concentration is PM2.5 concentration in μg m-3 and Population is
	// population density. Both have shape [Rows, Cols].
	Concentration *sparse.DenseArray
	Population    *sparse.DenseArray
}

// NewGrid creates a grid from row-major layer data. Both layers must have
// rows×cols shape.
func NewGrid(key Key, box BoundingBox, concentration, population [][]float64) (*Grid, error) {
	if err := box.Check(key); err != nil {
		return nil, err
	}
	rows := len(concentration)
	if rows == 0 || len(concentration[0]) == 0 {
		return nil, fmt.Errorf("exposuremap: asset %s: empty concentration layer", key)
	}
	cols := len(concentration[0])
	if len(population) != rows {
		return nil, fmt.Errorf("exposuremap: asset %s: layer shape mismatch: concentration has %d rows, population has %d",
			key, rows, len(population))
	}
	g := &Grid{
		Key:           key,
		Box:           box,
		Rows:          rows,
		Cols:          cols,
		Concentration: sparse.ZerosDense(rows, cols),
		Population:    sparse.ZerosDense(rows, cols),
	}
	for r := 0; r < rows; r++ {
		if len(concentration[r]) != cols || len(population[r]) != cols {
			return nil, fmt.Errorf("exposuremap: asset %s: ragged layer data in row %d", key, r)
		}
		for c := 0; c < cols; c++ {
			g.Concentration.Set(sanitize(concentration[r][c]), r, c)
			g.Population.Set(sanitize(population[r][c]), r, c)
		}
	}
	return g, nil
}

// sanitize replaces NaN, infinite, and negative samples with zero, matching
// the treatment the offline pipeline applies before computing exposure.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// CellSize returns the geographic size of one grid cell in degrees.
func (g *Grid) CellSize() (width, height float64) {
	return g.Box.Width() / float64(g.Cols), g.Box.Height() / float64(g.Rows)
}

// CellIndex maps a geographic point to integer cell indices using the same
// affine transform that defines the grid. The returned indices may be out
// of range; callers must bounds-check them (or use Resolve, which does).
func (g *Grid) CellIndex(p geom.Point) (row, col int) {
	row = int(math.Floor((g.Box.North - p.Y) / g.Box.Height() * float64(g.Rows)))
	col = int(math.Floor((p.X - g.Box.West) / g.Box.Width() * float64(g.Cols)))
	return row, col
}

// CellCenter returns the geographic center of the cell at row r, column c.
func (g *Grid) CellCenter(r, c int) geom.Point {
	cw, ch := g.CellSize()
	return geom.Point{
		X: g.Box.West + (float64(c)+0.5)*cw,
		Y: g.Box.North - (float64(r)+0.5)*ch,
	}
}

// Sample is the pair of values stored in one grid cell, along with the
// derived person-exposure product.
type Sample struct {
	Concentration  float64
	Population     float64
	PersonExposure float64
}

// At returns the sample stored at row r, column c.
func (g *Grid) At(r, c int) Sample {
	conc := g.Concentration.Get(r, c)
	pop := g.Population.Get(r, c)
	return Sample{Concentration: conc, Population: pop, PersonExposure: conc * pop}
}

// MaxConcentration returns the largest concentration sample in the grid.
func (g *Grid) MaxConcentration() float64 {
	return floats.Max(g.Concentration.Elements)
}

// MaxPopulation returns the largest population sample in the grid.
func (g *Grid) MaxPopulation() float64 {
	return floats.Max(g.Population.Elements)
}

// TotalExposure returns the sum of concentration × population over all
// cells, matching the offline pipeline's total person-exposure statistic.
func (g *Grid) TotalExposure() float64 {
	return floats.Dot(g.Concentration.Elements, g.Population.Elements)
}
