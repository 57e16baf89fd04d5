package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/episim/internal/fit"
)

// Plot draws one or more equally long series on a shared axis.
func Plot(caption string, series ...[]float64) string {
	var data [][]float64
	for _, s := range series {
		if len(s) > 0 {
			data = append(data, s)
		}
	}
	if len(data) == 0 {
		return ""
	}
	colors := []asciigraph.AnsiColor{asciigraph.Cyan, asciigraph.Yellow, asciigraph.Green, asciigraph.Magenta, asciigraph.Red}
	return asciigraph.PlotMany(data,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(colors[:min(len(data), len(colors))]...),
	)
}

// FitReport summarizes a Solution, naming each fitted parameter.
func FitReport(params []string, guess []float64, sol fit.Solution) string {
	var b strings.Builder

	status := green.Render("converged")
	if !sol.Converged {
		status = yellow.Render("not converged")
	}
	b.WriteString(header.Render("fit result") + "\n\n")
	b.WriteString(fmt.Sprintf("%s  %s\n", status, dim.Render(sol.Message)))
	b.WriteString(fmt.Sprintf("%s %s   %s %d   %s %d   %s %s\n\n",
		dim.Render("cost"), white.Render(fmt.Sprintf("%.6g", sol.Cost)),
		dim.Render("iterations"), sol.Iterations,
		dim.Render("evaluations"), sol.Evaluations,
		dim.Render("runtime"), sol.Runtime.Round(time.Millisecond),
	))

	for i, name := range params {
		var x, g float64
		if i < len(sol.X) {
			x = sol.X[i]
		}
		if i < len(guess) {
			g = guess[i]
		}
		b.WriteString(fmt.Sprintf("%s %s  %s\n",
			cyan.Render(fmt.Sprintf("%-28s", name)),
			magenta.Render(fmt.Sprintf("%12.6g", x)),
			dimmer.Render(fmt.Sprintf("(from %.6g)", g)),
		))
	}

	return panel.Render(strings.TrimRight(b.String(), "\n"))
}

// MetricsReport lists run metrics in name order.
func MetricsReport(names []string, values map[string]float64) string {
	var b strings.Builder
	for _, name := range names {
		b.WriteString(fmt.Sprintf("  %s %s\n", dim.Render(fmt.Sprintf("%-18s", name)), white.Render(fmt.Sprintf("%.6g", values[name]))))
	}
	return b.String()
}
