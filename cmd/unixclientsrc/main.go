// File: cmd/unixclientsrc/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// unixclientsrc connects to a Unix socket and copies what it reads to
// standard output.

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
	"github.com/momentics/unixbridge/internal/sockwait"
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
	var wait bool
	fs := pflag.NewFlagSet(element.ClientSrcName, pflag.ContinueOnError)
	cli.BindFlags(fs, cfg)
	fs.BoolVarP(&wait, "wait", "w", false, "wait for the socket to appear before connecting")
	fs.DurationVar(&cfg.WaitTimeout, "wait-timeout", cfg.WaitTimeout, "give up waiting after this long (0 waits forever)")
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

	src, err := element.NewClientSrc(
		element.WithLogger(log),
		element.WithMetrics(metrics),
		element.WithProbes(probes),
		element.WithBus(bus),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Error("close failed", "error", err)
		}
	}()
	src.SetPath(cfg.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		if err := cli.ServeMetrics(ctx, cfg.MetricsAddr, reg, probes, log); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}
	go drain(ctx, bus)

	if wait {
		log.Info("waiting for socket", "path", src.Path(), "timeout", cfg.WaitTimeout)
		if err := sockwait.Wait(ctx, src.Path(), cfg.WaitTimeout); err != nil {
			return err
		}
	}

	// Unlock a connect still retrying when the signal arrives.
	unlock := context.AfterFunc(ctx, src.Unlock)
	defer unlock()
	if err := src.Start(); err != nil {
		return err
	}

	runErr := src.Run(ctx, os.Stdout)

	src.Unlock()
	if err := src.Stop(); err != nil {
		log.Error("stop failed", "error", err)
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func drain(ctx context.Context, bus *element.Bus) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-bus.Messages():
		}
	}
}
