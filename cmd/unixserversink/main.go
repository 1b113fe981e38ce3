// File: cmd/unixserversink/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// unixserversink listens on a Unix socket and copies its standard input to
// every connected client.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/momentics/unixbridge/control"
	"github.com/momentics/unixbridge/element"
	"github.com/momentics/unixbridge/internal/cli"
	"github.com/momentics/unixbridge/internal/config"
	"github.com/momentics/unixbridge/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	fs := pflag.NewFlagSet(element.ServerSinkName, pflag.ContinueOnError)
	cli.BindFlags(fs, cfg)
	fs.IntVar(&cfg.MaxQueued, "max-queued", cfg.MaxQueued, "chunks queued per slow client before it is dropped")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "client stats period (0 disables)")
	if err := cli.Parse(fs, cfg, args); err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(log)

	reg := control.NewRegistry()
	metrics := control.NewMetrics(reg)
	probes := control.NewDebugProbes()
	control.RegisterRuntimeProbes(probes)
	bus := element.NewBus(cfg.BusSize, nil, log)

	sink, err := element.NewServerSink(
		element.WithLogger(log),
		element.WithMetrics(metrics),
		element.WithProbes(probes),
		element.WithBus(bus),
		element.WithMaxQueued(cfg.MaxQueued),
		element.WithStatsInterval(cfg.StatsInterval),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error("close failed", "error", err)
		}
	}()
	sink.SetPath(cfg.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		if err := cli.ServeMetrics(ctx, cfg.MetricsAddr, reg, probes, log); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	go drain(ctx, bus)

	if err := sink.Start(); err != nil {
		return err
	}

	// A blocked stdin read cannot be interrupted; on a signal the copy
	// goroutine is abandoned.
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx, os.Stdin) }()

	var runErr error
	select {
	case runErr = <-done:
	case <-ctx.Done():
		log.Info("interrupted")
	}

	sink.Unlock()
	if err := sink.Stop(); err != nil {
		log.Error("stop failed", "error", err)
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// drain empties the bus; every message has already been logged on post.
func drain(ctx context.Context, bus *element.Bus) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-bus.Messages():
		}
	}
}
