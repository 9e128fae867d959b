package store

import (
	"errors"
	"fmt"
)

// Dataset names one of the two datasets a session loads.
type Dataset string

// Datasets.
const (
	DatasetAccidents Dataset = "accidents"
	DatasetLanes     Dataset = "lanes"
)

// LoadError is a failure to load one dataset. Until both datasets load, the
// core must not be queried.
type LoadError struct {
	Dataset Dataset
	Path    string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("store: load %s dataset %q: %v", e.Dataset, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// FailedDatasets lists the datasets named by load failures in err, which may
// be a single *LoadError, a join of several, or either wrapped.
func FailedDatasets(err error) []Dataset {
	switch e := err.(type) {
	case nil:
		return nil
	case *LoadError:
		return []Dataset{e.Dataset}
	case interface{ Unwrap() []error }:
		var out []Dataset
		for _, inner := range e.Unwrap() {
			out = append(out, FailedDatasets(inner)...)
		}
		return out
	}
	return FailedDatasets(errors.Unwrap(err))
}

// IsLoadFailure reports whether err records a failure to load dataset d.
func IsLoadFailure(err error, d Dataset) bool {
	for _, got := range FailedDatasets(err) {
		if got == d {
			return true
		}
	}
	return false
}
