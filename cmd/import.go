package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crashmap/internal/store"
)

var (
	importOut      string
	importTruncate bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import the accidents dataset into a SQLite database",
	Long: `Reads the configured accidents file (GeoJSON, CSV, or XLSX) and stores its
raw rows in a SQLite database. Point dataset.accidents_path at the database
to load from it afterwards.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		src := cfg.Dataset.AccidentsPath
		if store.IsSQLitePath(src) {
			return eris.Errorf("import: %s is already a database", src)
		}

		raws, err := store.ReadAccidents(ctx, src, cfg.Dataset.Properties)
		if err != nil {
			return eris.Wrap(err, "import: read accidents")
		}

		db, err := store.NewSQLite(importOut)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		if importTruncate {
			if err := db.Truncate(ctx); err != nil {
				return err
			}
		}

		n, err := db.ImportRaw(ctx, raws)
		if err != nil {
			return eris.Wrap(err, "import: write rows")
		}

		zap.L().Info("import complete",
			zap.Int("imported", n),
			zap.String("source", src),
			zap.String("database", importOut),
		)
		return nil
	},
	Annotations: map[string]string{configMode: "import"},
}

func init() {
	importCmd.Flags().StringVar(&importOut, "out", "data/accidents.db", "SQLite database to write")
	importCmd.Flags().BoolVar(&importTruncate, "truncate", false, "delete existing rows before importing")
	rootCmd.AddCommand(importCmd)
}
