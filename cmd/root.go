package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crashmap/internal/config"
)

var cfg *config.Config

// configMode names the config.Validate mode a command needs. Commands without
// it run on the loaded config unchecked.
const configMode = "crashmap/config-mode"

// validateFor checks c against the mode cmd is annotated with.
func validateFor(cmd *cobra.Command, c *config.Config) error {
	mode, ok := cmd.Annotations[configMode]
	if !ok {
		return nil
	}
	return c.Validate(mode)
}

var rootCmd = &cobra.Command{
	Use:   "crashmap",
	Short: "Explore geocoded bike incidents against the cycling network",
	Long:  "Loads accident and bike lane datasets, filters incidents by severity, weather, lighting, and bike lane, and reports category shares and the densest hotspot.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		if err := validateFor(cmd, cfg); err != nil {
			return err
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.Name()),
			zap.String("accidents", cfg.Dataset.AccidentsPath),
			zap.String("lanes", cfg.Dataset.LanesPath),
			zap.Float64("radius_km", cfg.Density.RadiusKM),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
