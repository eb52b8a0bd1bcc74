// Command tracker runs the swarm's membership directory: a single process
// exposing register/get_peers/owners_of over HTTP, with no persistence and
// no command-line arguments (spec §6's process surface binds it to
// localhost:8000 unconditionally).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prxssh/pieceswarm/internal/logging"
	"github.com/prxssh/pieceswarm/internal/tracker"
)

const addr = "localhost:8000"

func main() {
	setupLogger()

	if len(os.Args) != 1 {
		slog.Error("tracker takes no arguments", "got", os.Args[1:])
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := slog.Default().With("component", "tracker")
	t := tracker.New(log)
	srv := tracker.NewServer(addr, t, log)

	if err := srv.Run(ctx); err != nil {
		log.Error("tracker exited with error", "err", err)
		os.Exit(1)
	}
}

func setupLogger() {
	opts := logging.DefaultOptions()
	opts.SlogOpts.Level = slog.LevelInfo

	h := logging.NewPrettyHandler(os.Stdout, &opts)
	slog.SetDefault(slog.New(h))
}
