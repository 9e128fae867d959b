package store

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/crashmap/internal/incident"
)

// ReadAccidentsCSVFile reads accidents from a CSV export with a header row.
func ReadAccidentsCSVFile(ctx context.Context, path string, props PropertyNames) ([]incident.Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open accidents file")
	}
	defer f.Close() //nolint:errcheck
	return ReadAccidentsCSV(ctx, f, props)
}

// ReadAccidentsCSV decodes a header row followed by one accident per row.
// Coordinates come from the props.Lon and props.Lat columns.
func ReadAccidentsCSV(ctx context.Context, r io.Reader, props PropertyNames) ([]incident.Raw, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.New("csv: accidents file is empty")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}

	cols, err := newColumns(header, props.withDefaults())
	if err != nil {
		return nil, err
	}

	var out []incident.Raw
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "csv: context cancelled")
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read line %d", line)
		}
		out = append(out, cols.raw(row))
	}
	return out, nil
}

// ReadAccidentsXLSX reads accidents from the first sheet of a workbook whose
// first row is a header.
func ReadAccidentsXLSX(ctx context.Context, path string, props PropertyNames) ([]incident.Raw, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("xlsx: sheet %q is empty", sheet.Name)
	}

	cols, err := newColumns(rowToStrings(sheet.Rows[0]), props.withDefaults())
	if err != nil {
		return nil, err
	}

	out := make([]incident.Raw, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "xlsx: context cancelled")
		}
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		out = append(out, cols.raw(cells))
	}
	return out, nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// columns holds the header position of each mapped property, -1 when absent.
type columns struct {
	id, severity, weather, lighting, bikeLane, lon, lat int
}

func newColumns(header []string, props PropertyNames) (columns, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	find := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		return -1
	}

	c := columns{
		id:       find(props.ID),
		severity: find(props.Severity),
		weather:  find(props.Weather),
		lighting: find(props.Lighting),
		bikeLane: find(props.BikeLane),
		lon:      find(props.Lon),
		lat:      find(props.Lat),
	}
	if c.lon < 0 || c.lat < 0 {
		return columns{}, eris.Errorf("store: coordinate columns %q/%q not in header", props.Lon, props.Lat)
	}
	if c.severity < 0 || c.weather < 0 || c.lighting < 0 || c.bikeLane < 0 {
		zap.L().Warn("store: accident columns missing from header, defaults apply",
			zap.Strings("header", header),
		)
	}
	return c, nil
}

func (c columns) raw(row []string) incident.Raw {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	r := incident.Raw{
		ID:           cell(c.id),
		Lon:          parseCoord(cell(c.lon)),
		Lat:          parseCoord(cell(c.lat)),
		WeatherCode:  cell(c.weather),
		LightingCode: cell(c.lighting),
		OnBikeLane:   flagValue(cell(c.bikeLane)),
	}
	if sev := cell(c.severity); sev != "" {
		r.Severity = &sev
	}
	return r
}

// parseCoord returns NaN for an unparsable coordinate so the row is dropped
// as an invalid position.
func parseCoord(s string) float64 {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
