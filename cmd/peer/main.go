// Command peer runs one swarm participant: it serves pieces it owns and,
// while incomplete, pulls missing pieces from other peers via rarest-first
// scheduling against the tracker's snapshot (spec §4.7).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prxssh/pieceswarm/internal/config"
	"github.com/prxssh/pieceswarm/internal/logging"
	"github.com/prxssh/pieceswarm/internal/peer"
)

func main() {
	setupLogger()

	if len(os.Args) != 4 {
		slog.Error("usage: peer <host> <port> <is_seed>")
		os.Exit(1)
	}

	host, port := os.Args[1], os.Args[2]
	if _, err := strconv.Atoi(port); err != nil {
		slog.Error("port must be numeric", "port", port)
		os.Exit(1)
	}

	seed, err := strconv.ParseBool(strings.ToLower(os.Args[3]))
	if err != nil {
		slog.Error("is_seed must be true or false", "got", os.Args[3])
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Default()
	log := slog.Default()

	p, err := peer.New(host, port, seed, cfg.TrackerAddr, cfg, log)
	if err != nil {
		log.Error("failed to initialize peer", "err", err)
		os.Exit(1)
	}

	if err := p.Run(ctx); err != nil {
		log.Error("peer exited with error", "err", err)
		os.Exit(1)
	}
}

func setupLogger() {
	opts := logging.DefaultOptions()
	opts.SlogOpts.Level = slog.LevelInfo

	h := logging.NewPrettyHandler(os.Stdout, &opts)
	slog.SetDefault(slog.New(h))
}
