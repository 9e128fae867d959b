// Package filter holds the multi-select filter state over the categorical
// incident fields and evaluates visibility against it.
package filter

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crashmap/internal/incident"
)

// Kind tags a Constraint as unrestricted or as an explicit allowed set.
type Kind int

// Constraint kinds.
const (
	Unrestricted Kind = iota
	Allowed
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k == Allowed {
		return "allowed"
	}
	return "unrestricted"
}

// Constraint is the filter on one field. An Allowed constraint with no
// values matches nothing; only Unrestricted lets every value through.
type Constraint struct {
	kind   Kind
	values map[string]struct{}
	// toggled marks an allowed set grown from Unrestricted by ToggleValue;
	// removing its last value reverts to Unrestricted.
	toggled bool
}

// Kind returns the constraint's tag.
func (c Constraint) Kind() Kind { return c.kind }

// Allows reports whether label passes the constraint.
func (c Constraint) Allows(label string) bool {
	if c.kind == Unrestricted {
		return true
	}
	_, ok := c.values[label]
	return ok
}

// Values returns the allowed labels sorted. It is nil for Unrestricted.
func (c Constraint) Values() []string {
	if c.kind == Unrestricted {
		return nil
	}
	out := make([]string, 0, len(c.values))
	for v := range c.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// State maps each categorical field to its constraint. Every field is present
// from construction on; absence of a key never means anything.
type State struct {
	constraints map[incident.Field]Constraint
}

// NewState returns a state with every field explicitly Unrestricted.
func NewState() *State {
	s := &State{constraints: make(map[incident.Field]Constraint, len(incident.Fields))}
	for _, f := range incident.Fields {
		s.constraints[f] = Constraint{kind: Unrestricted}
	}
	return s
}

// Constraint returns the constraint on f.
func (s *State) Constraint(f incident.Field) Constraint {
	return s.constraints[f]
}

// ToggleValue adds value to the allowed set of f, or removes it when present.
// Applying the same toggle twice restores the previous constraint; other
// fields are untouched.
func (s *State) ToggleValue(f incident.Field, value string) error {
	if !f.Valid() {
		return eris.Errorf("filter: unknown field %q", f)
	}
	cur := s.constraints[f]

	if cur.kind == Unrestricted {
		s.constraints[f] = Constraint{
			kind:    Allowed,
			values:  map[string]struct{}{value: {}},
			toggled: true,
		}
		return nil
	}

	next := make(map[string]struct{}, len(cur.values)+1)
	for v := range cur.values {
		next[v] = struct{}{}
	}
	if _, ok := next[value]; ok {
		delete(next, value)
	} else {
		next[value] = struct{}{}
	}

	if len(next) == 0 && cur.toggled {
		s.constraints[f] = Constraint{kind: Unrestricted}
		return nil
	}
	s.constraints[f] = Constraint{kind: Allowed, values: next, toggled: cur.toggled}
	return nil
}

// Restrict replaces the constraint on f with exactly values. Calling it with
// no values yields a constraint that matches nothing.
func (s *State) Restrict(f incident.Field, values ...string) error {
	if !f.Valid() {
		return eris.Errorf("filter: unknown field %q", f)
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	s.constraints[f] = Constraint{kind: Allowed, values: set}
	return nil
}

// Clear resets f to Unrestricted.
func (s *State) Clear(f incident.Field) error {
	if !f.Valid() {
		return eris.Errorf("filter: unknown field %q", f)
	}
	s.constraints[f] = Constraint{kind: Unrestricted}
	return nil
}

// Clone returns an independent copy of s.
func (s *State) Clone() *State {
	c := &State{constraints: make(map[incident.Field]Constraint, len(s.constraints))}
	for f, con := range s.constraints {
		c.constraints[f] = con
	}
	return c
}

// FieldSummary is the serializable form of one constraint.
type FieldSummary struct {
	Restricted bool     `json:"restricted"`
	Values     []string `json:"values"`
}

// Summary returns the state keyed by field name.
func (s *State) Summary() map[incident.Field]FieldSummary {
	out := make(map[incident.Field]FieldSummary, len(s.constraints))
	for _, f := range incident.Fields {
		c := s.constraints[f]
		values := c.Values()
		if values == nil {
			values = []string{}
		}
		out[f] = FieldSummary{Restricted: c.kind == Allowed, Values: values}
	}
	return out
}
