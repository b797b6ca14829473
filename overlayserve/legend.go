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

package overlayserve

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/spatialmodel/exposuremap"
)

// binColorMap adapts the stepped concentration bins to the continuous
// palette.ColorMap interface so they can drive a plotter.ColorBar.
type binColorMap struct {
	bins     []exposuremap.RiskBin
	min, max float64
	alpha    float64
}

func newBinColorMap(bins []exposuremap.RiskBin) *binColorMap {
	top := bins[len(bins)-1].Threshold
	// Extend past the last threshold so the top bin gets a visible band.
	return &binColorMap{bins: bins, min: bins[0].Threshold, max: top * 1.4, alpha: 1}
}

func (m *binColorMap) At(v float64) (color.Color, error) {
	if v < m.min || v > m.max {
		return nil, fmt.Errorf("overlayserve: legend value %g out of range [%g, %g]", v, m.min, m.max)
	}
	c := m.bins[0].Color
	for _, b := range m.bins {
		if v >= b.Threshold {
			c = b.Color
		}
	}
	c.A = uint8(float64(c.A) * m.alpha)
	return c, nil
}

func (m *binColorMap) Max() float64       { return m.max }
func (m *binColorMap) SetMax(v float64)   { m.max = v }
func (m *binColorMap) Min() float64       { return m.min }
func (m *binColorMap) SetMin(v float64)   { m.min = v }
func (m *binColorMap) Alpha() float64     { return m.alpha }
func (m *binColorMap) SetAlpha(a float64) { m.alpha = a }

func (m *binColorMap) Palette(colors int) palette.Palette {
	cs := make([]color.Color, colors)
	for i := range cs {
		v := m.min + float64(i)/float64(colors-1)*(m.max-m.min)
		c, err := m.At(v)
		if err != nil {
			c = color.Transparent
		}
		cs[i] = c
	}
	return binPalette(cs)
}

type binPalette []color.Color

func (p binPalette) Colors() []color.Color { return p }

// binTicks marks every bin threshold on the legend axis.
type binTicks struct {
	bins []exposuremap.RiskBin
}

func (t binTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for _, b := range t.bins {
		if b.Threshold < min || b.Threshold > max {
			continue
		}
		ticks = append(ticks, plot.Tick{
			Value: b.Threshold,
			Label: fmt.Sprintf("%g", b.Threshold),
		})
	}
	return ticks
}

func (s *Server) legendHandler(w http.ResponseWriter, r *http.Request) {
	cm := newBinColorMap(exposuremap.DefaultRiskBins)
	p := plot.New()
	l := &plotter.ColorBar{
		ColorMap: cm,
	}
	p.Add(l)
	p.HideY()
	p.X.Padding = 0
	p.X.Tick.Marker = binTicks{bins: exposuremap.DefaultRiskBins}
	p.X.Label.Text = "PM2.5 concentration (μg/m³)"

	img := vgimg.New(300, 40)
	dc := draw.New(img)
	p.Draw(dc)
	w.Header().Set("Content-Type", "image/png")
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		s.Log.WithError(err).Error("overlayserve: writing legend")
	}
}
