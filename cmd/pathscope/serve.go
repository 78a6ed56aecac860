package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/TheLazyLemur/pathscope/internal/audit"
	"github.com/TheLazyLemur/pathscope/internal/core"
	"github.com/TheLazyLemur/pathscope/internal/dashboard"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the decision API and dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ln, err := net.Listen("tcp", ":"+a.cfg.DashboardPort)
			if err != nil {
				return errors.Wrap(err, "listening")
			}
			return a.serve(cmd.Context(), ln)
		},
	}
}

// serve runs the dashboard on ln until ctx is done.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	hub := dashboard.NewHub()
	go hub.Run(ctx)
	slog.SetDefault(slog.New(dashboard.NewBroadcastHandler(hub, a.logger)))

	e, _, err := a.evaluator()
	if err != nil {
		ln.Close()
		return err
	}

	store, err := audit.Open(a.cfg.AuditDB)
	if err != nil {
		ln.Close()
		return err
	}
	defer store.Close()

	gate := core.NewGate(e, store).WithDefaultWorkingDirectory(a.cfg.WorkingDir)
	srv := dashboard.NewServer(hub, gate, store, dashboard.NewMetrics(e.Tools()...), a.cfg.DashboardPassword)
	gate.AddNotifier(srv)

	if a.cfg.DashboardPassword == "" {
		slog.Warn("DASHBOARD_PASSWORD not set, dashboard disabled")
	}

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	slog.Info("dashboard started", "addr", ln.Addr().String(), "workingDir", a.cfg.WorkingDir)

	select {
	case err := <-errCh:
		return errors.Wrap(err, "serving dashboard")
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Wrap(httpSrv.Shutdown(shutdownCtx), "shutting down dashboard")
}
