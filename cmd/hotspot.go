package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/crashmap/internal/explorer"
)

var (
	hotspotRadius  float64
	hotspotFilters []string
)

var hotspotCmd = &cobra.Command{
	Use:   "hotspot",
	Short: "Find the incident with the most neighbors within a radius",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cmd.Flags().Changed("radius") {
			if math.IsNaN(hotspotRadius) || hotspotRadius <= 0 {
				return eris.Errorf("hotspot: --radius must be > 0, got %v", hotspotRadius)
			}
			cfg.Density.RadiusKM = hotspotRadius
		}
		filters, err := parseFilters(hotspotFilters)
		if err != nil {
			return err
		}

		session, err := loadSession(ctx, cfg)
		if err != nil {
			return err
		}
		view, err := applyFilters(session, filters)
		if err != nil {
			return err
		}

		formatHotspot(os.Stdout, view, cfg.Density.RadiusKM)
		return nil
	},
	Annotations: map[string]string{configMode: "report"},
}

func formatHotspot(w io.Writer, view explorer.View, radiusKM float64) {
	if !view.HasPeak {
		fmt.Fprintln(w, "No incidents match the filters.")
		return
	}
	rec := view.Features[view.Peak.Index].Record
	fmt.Fprintf(w, "Hotspot: %.6f, %.6f\n", view.Peak.Position.Lat(), view.Peak.Position.Lon())
	fmt.Fprintf(w, "Incidents within %.3f km: %d\n", radiusKM, view.Peak.Count)
	if rec.ID != "" {
		fmt.Fprintf(w, "Record: %s (%s)\n", rec.ID, rec.Severity)
	}
}

func init() {
	hotspotCmd.Flags().Float64Var(&hotspotRadius, "radius", 0, "neighbor radius in km (default from config)")
	hotspotCmd.Flags().StringArrayVar(&hotspotFilters, "filter", nil, "restrict a field to a value, as field=value (repeatable)")
	rootCmd.AddCommand(hotspotCmd)
}
