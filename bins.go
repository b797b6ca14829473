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
	"math"
)

// A RiskBin assigns a fixed display color to a concentration range. Bins
// are ordered by strictly increasing threshold; a sample belongs to the
// last bin whose threshold it reaches.
type RiskBin struct {
	// Threshold is the lower bound of the bin in μg m-3, inclusive.
	Threshold float64

	// Color is the fixed symbol fill color for the bin.
	Color color.NRGBA

	// Label names the bin in legends.
	Label string
}

// DefaultRiskBins classifies PM2.5 concentration increments. The
// thresholds follow the WHO interim-target breakpoints.
var DefaultRiskBins = []RiskBin{
	{Threshold: 0, Color: color.NRGBA{R: 0x4d, G: 0xac, B: 0x26, A: 0xc8}, Label: "<5 μg/m³"},
	{Threshold: 5, Color: color.NRGBA{R: 0xb8, G: 0xe1, B: 0x86, A: 0xc8}, Label: "5–10 μg/m³"},
	{Threshold: 10, Color: color.NRGBA{R: 0xff, G: 0xe1, B: 0x45, A: 0xc8}, Label: "10–15 μg/m³"},
	{Threshold: 15, Color: color.NRGBA{R: 0xff, G: 0xa4, B: 0x3b, A: 0xc8}, Label: "15–25 μg/m³"},
	{Threshold: 25, Color: color.NRGBA{R: 0xe6, G: 0x43, B: 0x2e, A: 0xc8}, Label: "25–35 μg/m³"},
	{Threshold: 35, Color: color.NRGBA{R: 0xa8, G: 0x17, B: 0x5c, A: 0xc8}, Label: "35–50 μg/m³"},
	{Threshold: 50, Color: color.NRGBA{R: 0x5c, G: 0x0a, B: 0x6b, A: 0xc8}, Label: "≥50 μg/m³"},
}

// A PopulationBin assigns a symbol magnitude to a population-density
// range. Bins are ordered by strictly increasing threshold. Magnitude
// expresses how much rendered *area* the bin's symbol gets relative to
// other bins; the drawn radius is derived from its square root so that
// area, not diameter, is proportional to magnitude.
type PopulationBin struct {
	// Threshold is the lower bound of the bin, exclusive of zero:
	// cells with no population are not drawn at all.
	Threshold float64

	// Magnitude is the bin's relative symbol area.
	Magnitude float64
}

// DefaultPopulationBins classifies population density in decades, with
// symbol area doubling per decade.
var DefaultPopulationBins = []PopulationBin{
	{Threshold: 0, Magnitude: 1},
	{Threshold: 10, Magnitude: 2},
	{Threshold: 100, Magnitude: 4},
	{Threshold: 1000, Magnitude: 8},
	{Threshold: 10000, Magnitude: 16},
}

// checkBins verifies that thresholds increase strictly, so bins are
// non-overlapping and ordered.
func checkRiskBins(bins []RiskBin) error {
	if len(bins) == 0 {
		return fmt.Errorf("exposuremap: no risk bins defined")
	}
	for i := 1; i < len(bins); i++ {
		if bins[i].Threshold <= bins[i-1].Threshold {
			return fmt.Errorf("exposuremap: risk bin %d threshold %g does not increase over %g",
				i, bins[i].Threshold, bins[i-1].Threshold)
		}
	}
	return nil
}

func checkPopulationBins(bins []PopulationBin) error {
	if len(bins) == 0 {
		return fmt.Errorf("exposuremap: no population bins defined")
	}
	for i := 1; i < len(bins); i++ {
		if bins[i].Threshold <= bins[i-1].Threshold {
			return fmt.Errorf("exposuremap: population bin %d threshold %g does not increase over %g",
				i, bins[i].Threshold, bins[i-1].Threshold)
		}
		if bins[i].Magnitude < bins[i-1].Magnitude {
			return fmt.Errorf("exposuremap: population bin %d magnitude %g decreases from %g",
				i, bins[i].Magnitude, bins[i-1].Magnitude)
		}
	}
	return nil
}

// riskBinFor returns the index of the bin v falls in, or -1 if v is below
// the first threshold.
func riskBinFor(bins []RiskBin, v float64) int {
	i := -1
	for j, b := range bins {
		if v >= b.Threshold {
			i = j
		}
	}
	return i
}

// populationBinFor returns the index of the bin v falls in, or -1 if v
// does not exceed the first threshold.
func populationBinFor(bins []PopulationBin, v float64) int {
	i := -1
	for j, b := range bins {
		if v > b.Threshold {
			i = j
		}
	}
	return i
}

// symbolRadius returns the drawn radius in pixels for bin i of bins, given
// the pixel size of one grid cell. The radius scales with the square root
// of the bin magnitude normalized by the largest magnitude, so rendered
// area tracks magnitude and the largest bin's symbol just fills its cell.
// Symbols therefore self-adjust at every zoom level instead of using fixed
// pixel sizes.
func symbolRadius(bins []PopulationBin, i int, cellPx float64) float64 {
	maxMag := bins[len(bins)-1].Magnitude
	if maxMag <= 0 {
		return 0
	}
	return cellPx / 2 * math.Sqrt(bins[i].Magnitude/maxMag)
}
