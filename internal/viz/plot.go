package viz

import (
	"math"

	"github.com/guptarohit/asciigraph"
)

type PlotOptions struct {
	Height  int
	Width   int
	Caption string
}

func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Height: 10, Width: 80}
}

var seriesColors = []asciigraph.AnsiColor{
	asciigraph.Default,
	asciigraph.Red,
	asciigraph.Green,
	asciigraph.Yellow,
	asciigraph.Blue,
	asciigraph.Magenta,
}

// Plot draws one or more series on shared axes. Infinite samples are
// plotted as gaps and series with no finite value are dropped; the result is
// empty when nothing is left.
func Plot(series [][]float64, opts PlotOptions) string {
	data := make([][]float64, 0, len(series))
	for _, s := range series {
		if hasFinite(s) {
			data = append(data, gaps(s))
		}
	}
	if len(data) == 0 {
		return ""
	}

	colors := make([]asciigraph.AnsiColor, len(data))
	for i := range colors {
		colors[i] = seriesColors[i%len(seriesColors)]
	}
	options := []asciigraph.Option{
		asciigraph.Height(opts.Height),
		asciigraph.Width(opts.Width),
		asciigraph.SeriesColors(colors...),
	}
	if opts.Caption != "" {
		options = append(options, asciigraph.Caption(opts.Caption))
	}
	return asciigraph.PlotMany(data, options...)
}

func hasFinite(s []float64) bool {
	for _, v := range s {
		if finite(v) {
			return true
		}
	}
	return false
}

func gaps(s []float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}
