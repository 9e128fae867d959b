package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crashmap/internal/chart"
	"github.com/sells-group/crashmap/internal/explorer"
	"github.com/sells-group/crashmap/internal/export"
	"github.com/sells-group/crashmap/internal/incident"
)

var (
	reportAttribute string
	reportFilters   []string
	reportXLSX      string
	reportChart     string
	reportJSON      bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print category shares of the filtered incidents",
	Long: `Loads both datasets, applies the filters, and prints the share of each
label of the selected attribute among the visible incidents.

Examples:
  # Severity shares of incidents in rain
  crashmap report --filter weather=Rain

  # Weather shares on bike lanes, with a workbook and a pie chart
  crashmap report --attribute weather --filter bike_lane="On Bike Lane" \
    --xlsx report.xlsx --chart report.html`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		attribute, err := incident.ParseField(reportAttribute)
		if err != nil {
			return err
		}
		filters, err := parseFilters(reportFilters)
		if err != nil {
			return err
		}

		session, err := loadSession(ctx, cfg)
		if err != nil {
			return err
		}
		if _, err := session.SetSelectedAttribute(attribute); err != nil {
			return err
		}
		view, err := applyFilters(session, filters)
		if err != nil {
			return err
		}

		if reportXLSX != "" {
			if err := export.WriteWorkbook(reportXLSX, view.Attribute, view.Report, view.Records()); err != nil {
				return err
			}
			zap.L().Info("report workbook written", zap.String("path", reportXLSX))
		}
		if reportChart != "" {
			if err := writeChart(reportChart, view); err != nil {
				return err
			}
			zap.L().Info("report chart written", zap.String("path", reportChart))
		}

		if reportJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"attribute": view.Attribute,
				"visible":   len(view.Features),
				"total":     view.Total,
				"shares":    view.Report,
			})
		}
		formatReport(os.Stdout, view)
		return nil
	},
	Annotations: map[string]string{configMode: "report"},
}

// parseFilters reads repeated field=value flags. Values for the same field
// accumulate into one allowed set.
func parseFilters(args []string) (map[incident.Field][]string, error) {
	out := make(map[incident.Field][]string)
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, eris.Errorf("filter %q: expected field=value", arg)
		}
		f, err := incident.ParseField(name)
		if err != nil {
			return nil, eris.Wrapf(err, "filter %q", arg)
		}
		out[f] = append(out[f], strings.TrimSpace(value))
	}
	return out, nil
}

// applyFilters restricts each named field and returns the resulting view.
func applyFilters(session *explorer.Session, filters map[incident.Field][]string) (explorer.View, error) {
	for _, f := range incident.Fields {
		values, ok := filters[f]
		if !ok {
			continue
		}
		if _, err := session.Restrict(f, values...); err != nil {
			return explorer.View{}, err
		}
	}
	return session.View()
}

func writeChart(path string, view explorer.View) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create chart file")
	}
	defer file.Close() //nolint:errcheck
	return chart.RenderReport(file, "Bike incidents", view.Attribute, view.Report)
}

func formatReport(w io.Writer, view explorer.View) {
	fmt.Fprintf(w, "Attribute: %s (%d of %d incidents visible)\n\n", view.Attribute, len(view.Features), view.Total)
	if view.Empty {
		fmt.Fprintln(w, "No incidents match the filters.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LABEL\tCOUNT\tSHARE")
	fmt.Fprintln(tw, "-----\t-----\t-----")
	for _, s := range view.Report {
		fmt.Fprintf(tw, "%s\t%d\t%.1f%%\n", s.Label, s.Count, s.Percentage)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	reportCmd.Flags().StringVar(&reportAttribute, "attribute", string(incident.FieldSeverity), "attribute to report on (severity, weather, lighting, bike_lane)")
	reportCmd.Flags().StringArrayVar(&reportFilters, "filter", nil, "restrict a field to a value, as field=value (repeatable)")
	reportCmd.Flags().StringVar(&reportXLSX, "xlsx", "", "write the report and visible incidents to an XLSX workbook")
	reportCmd.Flags().StringVar(&reportChart, "chart", "", "write the report as an HTML pie chart")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(reportCmd)
}
