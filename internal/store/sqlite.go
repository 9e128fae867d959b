package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crashmap/internal/incident"
)

// SQLite is an incident database backed by modernc.org/sqlite. It stores raw
// records so normalization stays a load-time concern.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLite{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS incidents (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id     TEXT NOT NULL DEFAULT '',
	lon           REAL NOT NULL,
	lat           REAL NOT NULL,
	severity      TEXT,
	weather_code  TEXT NOT NULL DEFAULT '',
	lighting_code TEXT NOT NULL DEFAULT '',
	on_bike_lane  INTEGER NOT NULL DEFAULT 0,
	imported_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_incidents_source_id ON incidents(source_id);
`

// Migrate creates the incidents table.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ImportRaw appends raws in one transaction and returns the number inserted.
func (s *SQLite) ImportRaw(ctx context.Context, raws []incident.Raw) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO incidents (source_id, lon, lat, severity, weather_code, lighting_code, on_bike_lane, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare import")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i, r := range raws {
		var severity sql.NullString
		if r.Severity != nil {
			severity = sql.NullString{String: *r.Severity, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Lon, r.Lat, severity, r.WeatherCode, r.LightingCode, boolToInt(r.OnBikeLane), now,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert incident %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import")
	}
	return len(raws), nil
}

// LoadRaw returns every stored record in insertion order.
func (s *SQLite) LoadRaw(ctx context.Context) ([]incident.Raw, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, lon, lat, severity, weather_code, lighting_code, on_bike_lane
		FROM incidents
		ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query incidents")
	}
	defer rows.Close() //nolint:errcheck

	var out []incident.Raw
	for rows.Next() {
		var (
			r        incident.Raw
			severity sql.NullString
			onLane   int
		)
		if err := rows.Scan(&r.ID, &r.Lon, &r.Lat, &severity, &r.WeatherCode, &r.LightingCode, &onLane); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan incident")
		}
		if severity.Valid {
			text := severity.String
			r.Severity = &text
		}
		r.OnBikeLane = onLane != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate incidents")
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incidents`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count incidents")
	}
	return n, nil
}

// Truncate removes every stored record.
func (s *SQLite) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM incidents`)
	return eris.Wrap(err, "sqlite: truncate incidents")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
