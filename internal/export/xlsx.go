// Package export writes reports and visible incidents to spreadsheet files.
package export

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crashmap/internal/aggregate"
	"github.com/sells-group/crashmap/internal/incident"
	"github.com/sells-group/crashmap/internal/palette"
)

// Sheet names.
const (
	ReportSheet    = "Report"
	IncidentsSheet = "Incidents"
)

var reportHeader = []string{"count", "percentage", "color"}

var incidentHeader = []string{"id", "lon", "lat", "severity", "weather", "lighting", "bike_lane", "color"}

// WriteReportXLSX saves shares as a single-sheet workbook. An empty report
// still writes the header row.
func WriteReportXLSX(path string, attribute incident.Field, shares []aggregate.Share) error {
	f := xlsx.NewFile()
	if err := addReportSheet(f, attribute, shares); err != nil {
		return err
	}
	return save(f, path)
}

// WriteWorkbook saves the report and the visible incidents as two sheets.
func WriteWorkbook(path string, attribute incident.Field, shares []aggregate.Share, records []incident.Record) error {
	f := xlsx.NewFile()
	if err := addReportSheet(f, attribute, shares); err != nil {
		return err
	}

	sheet, err := f.AddSheet(IncidentsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add incidents sheet")
	}
	addRow(sheet, incidentHeader)
	for _, r := range records {
		addRow(sheet, []string{
			r.ID,
			formatCoord(r.Position.Lon()),
			formatCoord(r.Position.Lat()),
			string(r.Severity),
			r.Weather,
			r.Lighting,
			incident.BikeLaneLabel(r.OnBikeLane),
			string(palette.ColorFor(r, attribute)),
		})
	}
	return save(f, path)
}

func addReportSheet(f *xlsx.File, attribute incident.Field, shares []aggregate.Share) error {
	sheet, err := f.AddSheet(ReportSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add report sheet")
	}
	addRow(sheet, append([]string{string(attribute)}, reportHeader...))
	for _, s := range shares {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Label)
		row.AddCell().SetInt(s.Count)
		row.AddCell().SetFloatWithFormat(s.Percentage, "0.0")
		row.AddCell().SetString(string(palette.LabelColor(attribute, s.Label)))
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func save(f *xlsx.File, path string) error {
	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save workbook")
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
