package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/scan2sheets/internal/config"
	"github.com/MeKo-Tech/scan2sheets/internal/events"
	"github.com/MeKo-Tech/scan2sheets/internal/kvstore"
	"github.com/MeKo-Tech/scan2sheets/internal/server"
	"github.com/MeKo-Tech/scan2sheets/internal/version"
)

// watchDebounce coalesces bursts of writes to one blob file.
const watchDebounce = 200 * time.Millisecond

func (c *cli) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start an HTTP server exposing analysis, delivery and history.

The server provides the following endpoints:
  GET    /health              - Health check
  GET    /metrics             - Prometheus metrics
  POST   /analyze             - Recognize an uploaded image (multipart "image")
  POST   /records/send        - Send a value, keeping it pending on failure
  POST   /records/pending     - Store a value as pending
  GET    /history             - List records (?status=pending)
  POST   /history/{id}/retry  - Retry one pending record
  POST   /history/retry-all   - Retry every pending record
  DELETE /history/{id}        - Delete a record
  DELETE /history             - Clear the history
  GET|PUT|DELETE /settings    - Stored settings
  GET    /events              - Server-sent history and settings changes
  GET    /ws                  - Interactive region selection session

Examples:
  scan2sheets serve
  scan2sheets serve --port 8080
  scan2sheets serve --host 0.0.0.0 --port 3000 --rate-limit-enabled`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := c.serverConfig(cmd)
			if sc.Port < 1 || sc.Port > 65535 {
				return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", sc.Port)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, sc, nil)
		},
	}

	d := config.DefaultConfig().Server
	cmd.Flags().StringP("host", "H", d.Host, "server host")
	cmd.Flags().IntP("port", "p", d.Port, "server port")
	cmd.Flags().String("cors-origin", d.CORSOrigin, "CORS allowed origins")
	cmd.Flags().Int("max-upload-size", d.MaxUploadMB, "maximum upload size in MB")
	cmd.Flags().Int("timeout", d.TimeoutSec, "analysis timeout in seconds")
	cmd.Flags().Int("shutdown-timeout", d.ShutdownTimeout, "shutdown timeout in seconds")
	cmd.Flags().Bool("rate-limit-enabled", d.RateLimitEnabled, "enable rate limiting of /analyze")
	cmd.Flags().Int("requests-per-minute", d.RequestsPerMinute, "maximum analysis requests per minute per client")
	cmd.Flags().Int("requests-per-hour", d.RequestsPerHour, "maximum analysis requests per hour per client")
	return cmd
}

// serverConfig applies changed serve flags over the configured server section.
func (c *cli) serverConfig(cmd *cobra.Command) config.ServerConfig {
	sc := c.cfg.Server
	f := cmd.Flags()
	if f.Changed("host") {
		sc.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		sc.Port, _ = f.GetInt("port")
	}
	if f.Changed("cors-origin") {
		sc.CORSOrigin, _ = f.GetString("cors-origin")
	}
	if f.Changed("max-upload-size") {
		sc.MaxUploadMB, _ = f.GetInt("max-upload-size")
	}
	if f.Changed("timeout") {
		sc.TimeoutSec, _ = f.GetInt("timeout")
	}
	if f.Changed("shutdown-timeout") {
		sc.ShutdownTimeout, _ = f.GetInt("shutdown-timeout")
	}
	if f.Changed("rate-limit-enabled") {
		sc.RateLimitEnabled, _ = f.GetBool("rate-limit-enabled")
	}
	if f.Changed("requests-per-minute") {
		sc.RequestsPerMinute, _ = f.GetInt("requests-per-minute")
	}
	if f.Changed("requests-per-hour") {
		sc.RequestsPerHour, _ = f.GetInt("requests-per-hour")
	}
	return sc
}

// serve runs the API until ctx is cancelled. ready, when non-nil, receives
// the bound address once the listener is open.
func (c *cli) serve(ctx context.Context, sc config.ServerConfig, ready chan<- string) error {
	a, err := c.newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	broker := events.NewBroker(0, c.logger)
	defer broker.Close()
	a.Outbox.Subscribe(broker)

	srv := server.NewServer(a, broker, server.ConfigFrom(sc, version.Version))
	httpServer := &http.Server{
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(sc.TimeoutSec) * time.Second,
		// Request contexts end with ctx so event streams return on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
		// Event streams and WebSocket sessions stay open indefinitely.
		WriteTimeout: 0,
	}

	ln, err := net.Listen("tcp", sc.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", sc.Addr(), err)
	}
	if ready != nil {
		ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.logger.Info("Starting scan2sheets server", "addr", ln.Addr().String(), "version", version.Version)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if fs, ok := a.Store.(*kvstore.FileStore); ok {
		g.Go(func() error {
			err := fs.Watch(gctx, c.logger, watchDebounce, broker.BlobChanged)
			if err != nil {
				c.logger.Warn("Storage watcher stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", sc.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(sc.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			c.logger.Error("HTTP server shutdown error", "error", err)
			return err
		}
		c.logger.Info("Graceful shutdown completed")
		return nil
	})

	return g.Wait()
}
