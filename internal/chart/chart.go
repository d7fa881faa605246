// Package chart lays out a grouped bar chart of a projection for SVG
// rendering: one group per month, one bar per series.
package chart

import (
	"math"

	"investimento/internal/core"
)

// Series names in bar order within a group.
var Series = []string{"cumulative_value", "cumulative_interest", "real_interest"}

type (
	// Bar is a rectangle in viewBox coordinates (origin top-left).
	Bar struct {
		Series string
		Value  float64
		X, Y   float64
		W, H   float64
	}

	// Group holds the bars of a single month.
	Group struct {
		Month int
		X     float64
		Bars  []Bar
	}

	// Chart is the full layout.
	Chart struct {
		Width, Height float64
		Max           float64
		Groups        []Group
	}
)

// groupGap is the fraction of each group's slot left empty.
const groupGap = 0.2

// Bars scales the three series of p into a width x height viewBox. Negative
// values are drawn with zero height. An all-zero projection yields flat bars.
func Bars(p core.Projection, width, height float64) Chart {
	c := Chart{Width: width, Height: height}
	n := len(p.Records)
	if n == 0 || width <= 0 || height <= 0 {
		return c
	}

	// Indexed like Series.
	series := [][]float64{p.Values(), p.Interests(), p.RealInterests()}
	for _, values := range series {
		for _, v := range values {
			c.Max = math.Max(c.Max, v)
		}
	}

	slot := width / float64(n)
	barW := slot * (1 - groupGap) / float64(len(Series))
	c.Groups = make([]Group, n)
	for i, r := range p.Records {
		g := Group{Month: r.Month, X: float64(i) * slot, Bars: make([]Bar, len(Series))}
		for j, values := range series {
			v := values[i]
			h := scale(v, c.Max, height)
			g.Bars[j] = Bar{
				Series: Series[j],
				Value:  v,
				X:      g.X + slot*groupGap/2 + float64(j)*barW,
				Y:      height - h,
				W:      barW,
				H:      h,
			}
		}
		c.Groups[i] = g
	}
	return c
}

func scale(v, peak, height float64) float64 {
	if peak <= 0 || v <= 0 {
		return 0
	}
	return v / peak * height
}

// Ticks returns up to n evenly spaced month labels for the x axis, always
// including the first and last month.
func (c Chart) Ticks(n int) []Group {
	if len(c.Groups) == 0 || n <= 0 {
		return nil
	}
	if n >= len(c.Groups) {
		return c.Groups
	}
	if n == 1 {
		return c.Groups[:1]
	}
	step := float64(len(c.Groups)-1) / float64(n-1)
	out := make([]Group, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, c.Groups[int(math.Round(float64(i)*step))])
	}
	return out
}
