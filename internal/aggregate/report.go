// Package aggregate computes the category breakdown of a set of incidents
// for the selected attribute.
package aggregate

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crashmap/internal/incident"
)

// ErrEmptyResultSet reports a breakdown requested over no records.
var ErrEmptyResultSet = eris.New("aggregate: no matching records")

// Share is one row of a breakdown.
type Share struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Report groups records by their canonical label for f and returns the share
// of each group, largest first. Ties keep first-encountered order.
// Each percentage is count/total*100 rounded to one decimal on its own, so
// equal counts always show equal percentages. Empty input yields an empty,
// non-nil slice.
func Report(records []incident.Record, f incident.Field) []Share {
	if len(records) == 0 {
		return []Share{}
	}

	index := make(map[string]int)
	var shares []Share
	for _, r := range records {
		label := r.Label(f)
		i, ok := index[label]
		if !ok {
			i = len(shares)
			index[label] = i
			shares = append(shares, Share{Label: label})
		}
		shares[i].Count++
	}

	sort.SliceStable(shares, func(a, b int) bool {
		return shares[a].Count > shares[b].Count
	})

	total := float64(len(records))
	for i := range shares {
		shares[i].Percentage = percentage(shares[i].Count, total)
	}
	return shares
}

// ReportE is Report with the empty condition surfaced as ErrEmptyResultSet.
func ReportE(records []incident.Record, f incident.Field) ([]Share, error) {
	if len(records) == 0 {
		return []Share{}, ErrEmptyResultSet
	}
	return Report(records, f), nil
}

// percentage rounds count/total*100 to one decimal.
func percentage(count int, total float64) float64 {
	return math.Round(float64(count)*1000/total) / 10
}

// Total returns the number of records a report covers.
func Total(shares []Share) int {
	n := 0
	for _, s := range shares {
		n += s.Count
	}
	return n
}
