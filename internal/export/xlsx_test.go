package export

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crashmap/internal/aggregate"
	"github.com/sells-group/crashmap/internal/incident"
)

func TestWriteReportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	shares := []aggregate.Share{
		{Label: "On Bike Lane", Count: 2, Percentage: 66.7},
		{Label: "Off Bike Lane", Count: 1, Percentage: 33.3},
	}
	require.NoError(t, WriteReportXLSX(path, incident.FieldBikeLane, shares))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet[ReportSheet]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0].Cells
	assert.Equal(t, "bike_lane", header[0].String())
	assert.Equal(t, "percentage", header[2].String())

	first := sheet.Rows[1].Cells
	assert.Equal(t, "On Bike Lane", first[0].String())
	count, err := first[1].Int()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	pct, err := first[2].Float()
	require.NoError(t, err)
	assert.InDelta(t, 66.7, pct, 1e-9)
	assert.Equal(t, "green", first[3].String())
}

func TestWriteReportXLSX_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteReportXLSX(path, incident.FieldWeather, []aggregate.Share{}))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 1)
}

func TestWriteReportXLSX_BadPath(t *testing.T) {
	err := WriteReportXLSX(filepath.Join(t.TempDir(), "missing", "dir", "r.xlsx"), incident.FieldSeverity, nil)
	assert.Error(t, err)
}

func TestWriteWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workbook.xlsx")
	records := []incident.Record{
		{ID: "7", Position: orb.Point{-73.5, 45.5}, Severity: incident.SeverityInjury, Weather: "Clear", Lighting: "Daylight"},
	}
	shares := aggregate.Report(records, incident.FieldSeverity)
	require.NoError(t, WriteWorkbook(path, incident.FieldSeverity, shares, records))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)

	sheet := f.Sheet[IncidentsSheet]
	require.NotNil(t, sheet)
	require.Len(t, sheet.Rows, 2)
	row := sheet.Rows[1].Cells
	assert.Equal(t, "7", row[0].String())
	assert.Equal(t, "-73.5", row[1].String())
	assert.Equal(t, "Injury", row[3].String())
	assert.Equal(t, incident.LabelOffBikeLane, row[6].String())
	assert.Equal(t, "yellow", row[7].String())
}
