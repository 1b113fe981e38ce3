// File: internal/cli/cli.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package cli holds the flag and metrics-endpoint plumbing shared by the
// commands.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/momentics/unixbridge/control"
	"github.com/momentics/unixbridge/internal/config"
)

const shutdownTimeout = 2 * time.Second

// BindFlags registers the common flags on fs with cfg values as defaults,
// so parsed flags override the environment.
func BindFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVarP(&cfg.Path, "path", "p", cfg.Path, "unix socket path")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text or json")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve /metrics and /debug/state on this address (empty disables)")
}

// Parse parses args into fs and validates cfg. Help requests return
// pflag.ErrHelp.
func Parse(fs *pflag.FlagSet, cfg *config.Config, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return errors.New("unexpected argument: " + fs.Arg(0))
	}
	return cfg.Validate()
}

// ServeMetrics serves Prometheus metrics and debug probes on addr until
// ctx is done. It returns once the listener is bound.
func ServeMetrics(ctx context.Context, addr string, reg *prometheus.Registry, probes *control.DebugProbes, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", control.Handler(reg))
	mux.Handle("/debug/state", probes.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	log.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}
