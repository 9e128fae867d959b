// Package chart renders attribute breakdowns as standalone HTML charts.
package chart

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crashmap/internal/aggregate"
	"github.com/sells-group/crashmap/internal/incident"
	"github.com/sells-group/crashmap/internal/palette"
)

// EmptySubtitle is shown when no record matches the filters.
const EmptySubtitle = "no matching records"

// RenderReport writes an HTML pie chart of shares. Slice values are the
// report's rounded percentages and slice colors follow the map palette for
// attribute.
func RenderReport(w io.Writer, title string, attribute incident.Field, shares []aggregate.Share) error {
	subtitle := EmptySubtitle
	if total := aggregate.Total(shares); total > 0 {
		subtitle = fmt.Sprintf("%s, %d records", attribute, total)
	}

	data := make([]opts.PieData, 0, len(shares))
	for _, s := range shares {
		data = append(data, opts.PieData{
			Name:      s.Label,
			Value:     s.Percentage,
			ItemStyle: &opts.ItemStyle{Color: string(palette.LabelColor(attribute, s.Label))},
		})
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Formatter: "{b}: {c}%"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Orient: "vertical", Left: "left", Top: "middle"}),
	)
	pie.AddSeries(string(attribute), data,
		charts.WithPieChartOpts(opts.PieChart{Radius: "60%"}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Formatter: "{b}: {c}%"}),
	)

	if err := pie.Render(w); err != nil {
		return eris.Wrap(err, "chart: render report")
	}
	return nil
}
