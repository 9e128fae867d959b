package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/crashmap/internal/api"
	"github.com/sells-group/crashmap/internal/config"
)

var servePort int

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the incident explorer over HTTP",
	Long: `Loads both datasets and serves the filtered incidents, the lane network,
the hotspot, and the category report. When a dataset fails to load the
server still starts; data routes answer 503 until POST /reload succeeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()


		handler, err := buildHandler(ctx, cfg)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
	Annotations: map[string]string{configMode: "serve"},
}

// buildHandler creates the session, attempts the initial load, and returns
// the API handler. A failed load is logged rather than returned.
func buildHandler(ctx context.Context, c *config.Config) (http.Handler, error) {
	session, err := newSession(c)
	if err != nil {
		return nil, err
	}
	if err := session.Load(ctx, c.Dataset.Sources()); err != nil {
		zap.L().Error("initial dataset load failed; serving 503 until reload", zap.Error(err))
	}

	server := api.NewServer(session, api.Options{
		Sources:     c.Dataset.Sources(),
		CORSOrigins: c.Server.CORSOrigins,
		RateLimit:   c.Server.RateLimit,
		RateBurst:   c.Server.RateBurst,
	})
	return server.Handler(), nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
