package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/resellerdesk/backend/internal/api"
	"github.com/kimhsiao/resellerdesk/backend/internal/app"
	"github.com/kimhsiao/resellerdesk/backend/internal/logging"
	"github.com/kimhsiao/resellerdesk/backend/internal/notify"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon and local HTTP API",
		Long: `Run the sync daemon.

The daemon serves the local HTTP API and WebSocket notifications, probes
connectivity when a probe URL is configured, and reconciles the queue on
the configured cadence and whenever the network comes back.

Examples:
  resellerd serve --config resellerdesk.yaml
  resellerd serve --remote memory --addr 127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg := opts.config
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	log := logging.Component("serve")

	hub := notify.NewHub()
	defer hub.Close()

	rt, err := app.Open(ctx, cfg, notify.Multi{notify.NewLog(), hub}, cfg.Connectivity.AssumeOnline)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer rt.Close()

	sched := rt.StartBackground(ctx)

	server := api.NewServer(rt.Engine,
		api.WithScheduler(sched),
		api.WithHub(hub),
		api.WithOpener(rt.Sealer),
	)
	e := server.RegisterRoutes()

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", map[string]interface{}{
			"addr":   cfg.Server.Addr,
			"remote": cfg.Remote.Kind,
			"policy": cfg.Queue.Policy,
		})
		errCh <- e.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", err)
	}
	return nil
}
