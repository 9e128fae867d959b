package filter

import "github.com/sells-group/crashmap/internal/incident"

// IsVisible reports whether r passes every field's constraint. Fields combine
// with AND; values within one field combine with OR. A nil state restricts nothing.
func IsVisible(r incident.Record, s *State) bool {
	if s == nil {
		return true
	}
	for _, f := range incident.Fields {
		if !s.constraints[f].Allows(r.Label(f)) {
			return false
		}
	}
	return true
}

// FilteredSet returns the records visible under s, in input order.
func FilteredSet(records []incident.Record, s *State) []incident.Record {
	out := make([]incident.Record, 0, len(records))
	for _, r := range records {
		if IsVisible(r, s) {
			out = append(out, r)
		}
	}
	return out
}
