// Package report renders browser-viewable HTML plots of recordings and
// component decompositions. The plots are diagnostic aids for eyeballing
// what the pipeline did to a file, not a UI.
package report

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
	"github.com/Metanome/eeg-preprocppl/internal/pipeline"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// maxPlotPoints caps the samples per series so a long recording does not
// produce a multi-megabyte HTML file.
const maxPlotPoints = 2000

// SaveSignalPlot writes an HTML line plot of the recording, one vertically
// offset series per channel in the familiar EEG-browser layout.
func SaveSignalPlot(ds *eeg.Dataset, title, path string) error {
	line := signalChart(ds, title)
	return renderTo(path, line)
}

// SaveBeforeAfterPlot writes a page stacking the raw and cleaned versions of
// a recording for side-by-side inspection.
func SaveBeforeAfterPlot(raw, cleaned *eeg.Dataset, path string) error {
	page := components.NewPage()
	page.PageTitle = "Before / after cleaning"
	page.AddCharts(
		signalChart(raw, "Raw"),
		signalChart(cleaned, "Cleaned"),
	)
	return renderTo(path, page)
}

// SaveComponentPlot writes an HTML plot of the decomposition's component
// activations, offset per component, annotated with removal decisions when a
// plan is supplied.
func SaveComponentPlot(dec pipeline.Decomposition, sampleRate float64, plan *pipeline.RemovalPlan, path string) error {
	n := dec.Components()
	if n == 0 {
		return fmt.Errorf("decomposition has no components")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Components", Width: "1200px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: "Component activations", Subtitle: fmt.Sprintf("%d components", n)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
	)

	// Common vertical offset keeps the traces readable.
	var spread float64
	sources := make([][]float64, n)
	for i := 0; i < n; i++ {
		sources[i] = dec.Source(i)
		for _, v := range sources[i] {
			spread = math.Max(spread, math.Abs(v))
		}
	}
	if spread == 0 {
		spread = 1
	}

	var xAxis []string
	for i := 0; i < n; i++ {
		src := sources[i]
		stride := strideFor(len(src))
		data := make([]opts.LineData, 0, len(src)/stride+1)
		var xs []string
		for s := 0; s < len(src); s += stride {
			data = append(data, opts.LineData{Value: src[s] + float64(n-1-i)*2*spread})
			xs = append(xs, fmt.Sprintf("%.2f", float64(s)/sampleRate))
		}
		if xAxis == nil {
			xAxis = xs
		}
		line.AddSeries(componentSeriesName(i, plan), data)
	}
	line.SetXAxis(xAxis)
	return renderTo(path, line)
}

func componentSeriesName(i int, plan *pipeline.RemovalPlan) string {
	name := fmt.Sprintf("IC%d", i)
	if plan == nil || i >= len(plan.Decisions) {
		return name
	}
	d := plan.Decisions[i]
	if d.Remove {
		return fmt.Sprintf("%s %s (removed)", name, d.Dominant)
	}
	return fmt.Sprintf("%s %s", name, d.Dominant)
}

func signalChart(ds *eeg.Dataset, title string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d channels, %.1f s @ %g Hz", ds.Channels(), ds.Duration(), ds.SampleRate),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)"}),
	)

	var spread float64
	for _, ch := range ds.Data {
		for _, v := range ch {
			spread = math.Max(spread, math.Abs(v))
		}
	}
	if spread == 0 {
		spread = 1
	}

	stride := strideFor(ds.Samples())
	var xAxis []string
	for s := 0; s < ds.Samples(); s += stride {
		xAxis = append(xAxis, fmt.Sprintf("%.2f", float64(s)/ds.SampleRate))
	}
	line.SetXAxis(xAxis)

	nChan := ds.Channels()
	for c := 0; c < nChan; c++ {
		offset := float64(nChan-1-c) * 2 * spread
		data := make([]opts.LineData, 0, len(xAxis))
		for s := 0; s < ds.Samples(); s += stride {
			data = append(data, opts.LineData{Value: ds.Data[c][s] + offset})
		}
		line.AddSeries(ds.Labels[c], data)
	}
	return line
}

func strideFor(samples int) int {
	stride := 1
	if samples > maxPlotPoints {
		stride = int(math.Ceil(float64(samples) / float64(maxPlotPoints)))
	}
	return stride
}

type renderer interface {
	Render(w io.Writer) error
}

func renderTo(path string, r renderer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	if err := r.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("render plot: %w", err)
	}
	return f.Close()
}
