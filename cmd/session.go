package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crashmap/internal/config"
	"github.com/sells-group/crashmap/internal/explorer"
	"github.com/sells-group/crashmap/internal/incident"
)

// newNormalizer builds the severity normalizer from the configured
// vocabulary file, or the built-in markers when none is set.
func newNormalizer(c *config.Config) (*incident.Normalizer, error) {
	if c.Severity.VocabularyPath == "" {
		return incident.NewNormalizer(incident.DefaultVocabulary()), nil
	}
	v, err := incident.LoadVocabulary(c.Severity.VocabularyPath)
	if err != nil {
		return nil, eris.Wrap(err, "load severity vocabulary")
	}
	zap.L().Debug("severity vocabulary loaded",
		zap.String("path", c.Severity.VocabularyPath),
		zap.Int("fatal_markers", len(v.Fatal)),
		zap.Int("injury_markers", len(v.Injury)),
	)
	return incident.NewNormalizer(v), nil
}

// newSession returns an unloaded session configured from c.
func newSession(c *config.Config) (*explorer.Session, error) {
	n, err := newNormalizer(c)
	if err != nil {
		return nil, err
	}
	return explorer.New(explorer.Options{
		RadiusKM:      c.Density.RadiusKM,
		GridThreshold: c.Density.GridThreshold,
		Normalizer:    n,
	}), nil
}

// loadSession returns a session with both datasets loaded.
func loadSession(ctx context.Context, c *config.Config) (*explorer.Session, error) {
	s, err := newSession(c)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx, c.Dataset.Sources()); err != nil {
		return nil, eris.Wrap(err, "load datasets")
	}
	return s, nil
}
