//go:build linux

// Command waybridge connects to the default windowing server, listens on
// an auto-named compositor-protocol socket, and runs the bridge loop until
// interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/waybridge"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := waybridge.ConfigFromEnv()

	b, err := waybridge.New(cfg)
	if err != nil {
		slog.Error("waybridge: startup failed", "err", err)
		return 1
	}
	defer b.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := b.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("waybridge: exited with error", "err", err)
		return 1
	}
	return 0
}
