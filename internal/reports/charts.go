package reports

import (
	"bytes"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/wcharczuk/go-chart/v2"
)

// usageDashboard renders the interactive satellite-usage bar chart embedded
// in the HTML report.
func usageDashboard(usage map[string]int) (string, error) {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  "800px",
			Height: "400px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Satellite Usage",
			Subtitle: "Dominant source per successful tile",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Satellite"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Tiles"}),
	)

	sources := orderedSources(usage)
	data := make([]opts.BarData, len(sources))
	for i, s := range sources {
		data[i] = opts.BarData{Value: usage[s]}
	}
	bar.SetXAxis(sources).AddSeries("Tiles", data)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// usageChartPNG renders the static usage chart stored next to the report.
func usageChartPNG(usage map[string]int) ([]byte, error) {
	sources := orderedSources(usage)
	bars := make([]chart.Value, len(sources))
	for i, s := range sources {
		bars[i] = chart.Value{Label: s, Value: float64(usage[s])}
	}

	graph := chart.BarChart{
		Title:  "Satellite Usage",
		Height: 400,
		Width:  640,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 20, Right: 20, Bottom: 20},
		},
		BarWidth: 60,
		Bars:     bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
