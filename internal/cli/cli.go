// Package cli implements the command surface shared by the ble-uart and
// ble-blinky binaries.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/ble-notify/internal/ble"
	"github.com/chaz8081/ble-notify/internal/config"
	"github.com/chaz8081/ble-notify/internal/operator"
)

// Version is set at compile-time.
var Version = "dev"

// Run runs the commandline application for the named built-in profile.
func Run(args []string, profile string) error {
	return newApp(profile).Run(args)
}

// newApp returns a new commandline application.
func newApp(profile string) *cli.App {
	return &cli.App{
		Name:        "ble-" + profile,
		Usage:       "Connect to a BLE peripheral and toggle its notifications.",
		UsageText:   "ble-" + profile + " <PORT> <SD_API_VERSION>",
		ArgsUsage:   "<PORT> <SD_API_VERSION>",
		Description: "PORT is the serial port or HCI device of the host adapter.\nSD_API_VERSION is v2 or v5.",
		HideHelp:    true,
		HideVersion: true,
		Action: func(cCtx *cli.Context) error {
			port, api, err := parseArgs(cCtx.Args())
			if err != nil {
				_ = cli.ShowAppHelp(cCtx)
				return err
			}
			return run(cCtx.Context, cCtx.App.Writer, profile, port, api)
		},
		ExitErrHandler: func(cCtx *cli.Context, err error) {
			if err == nil {
				return
			}

			printError(cCtx.App.ErrWriter, err)
		},
	}
}

// parseArgs checks the positional arguments.
func parseArgs(args cli.Args) (string, ble.APIVersion, error) {
	if args.Len() != 2 {
		return "", "", fmt.Errorf("expected 2 arguments <PORT> <SD_API_VERSION>, got %d", args.Len())
	}
	port := args.Get(0)
	if port == "" {
		return "", "", errors.New("PORT must not be empty")
	}
	api, err := ble.ParseAPIVersion(args.Get(1))
	if err != nil {
		return "", "", err
	}
	return port, api, nil
}

// run wires the adapter, session and operator listener and blocks until the
// session ends.
func run(ctx context.Context, w io.Writer, profileName, port string, api ble.APIVersion) error {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	profile, err := cfg.Profile(profileName)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))

	printBanner(w, cfg, profile, port, api)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := ble.NewBluetoothAdapter(port, api)
	session := ble.NewSession(adapter, profile, ble.NewNotifier(adapter), cfg.SessionOptions())
	listener := operator.NewListener(cfg.Operator.ToggleKeys, cfg.Operator.QuitKeys)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return session.Run(runCtx)
	})
	g.Go(func() error {
		return forward(runCtx, listener, session)
	})
	go listener.Start()

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("[BLE] interrupted, shutting down")
		return nil
	}
	if err != nil {
		if errors.Is(err, ble.ErrAdapterOpen) || errors.Is(err, ble.ErrScanStart) {
			printWarn(w, "is the adapter on "+port+" present and powered?")
		}
		return err
	}
	return nil
}

// forward passes operator intents to the session until ctx is done or the
// session closes.
func forward(ctx context.Context, l *operator.Listener, s *ble.Session) error {
	defer l.Stop()

	intents := l.Intents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case in, ok := <-intents:
			if !ok {
				return nil
			}
			if err := s.Submit(ctx, in); err != nil {
				if errors.Is(err, ble.ErrSessionClosed) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		}
	}
}
