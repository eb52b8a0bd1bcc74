package peer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prxssh/pieceswarm/internal/config"
	"github.com/prxssh/pieceswarm/internal/swarm"
	"github.com/prxssh/pieceswarm/internal/tracker"
)

// Peer is one swarm participant: it serves pieces it owns on a TCP
// listener and, while it still lacks pieces, requests them from other
// peers via rarest-first scheduling against the tracker's snapshot.
type Peer struct {
	id  string
	cfg *config.Config
	log *slog.Logger

	store      *Store
	trackerCli *tracker.Client
	parallel   *swarm.ParallelismController
	downloader *Downloader
	server     *requestServer
	listener   net.Listener

	rng *rand.Rand
}

// New constructs a Peer bound to host:port, backed by a file named
// "<host>_<port>_<artifact>". seed controls the initial piece set: full if
// true, empty otherwise.
func New(host, port string, seed bool, trackerAddr string, cfg *config.Config, log *slog.Logger) (*Peer, error) {
	id := fmt.Sprintf("%s:%s", host, port)
	backingPath := BackingFilePath(host, port, cfg.ArtifactName)

	store, err := OpenStore(backingPath, cfg.PieceSize, cfg.PieceCount, seed)
	if err != nil {
		return nil, err
	}

	pl := log.With("component", "peer", "peer_id", id)

	p := &Peer{
		id:         id,
		cfg:        cfg,
		log:        pl,
		store:      store,
		trackerCli: tracker.NewClient(trackerAddr, cfg.DialTimeout),
		parallel:   swarm.NewParallelismController(cfg.Base, cfg.KSeed, cfg.KLeech, cfg.Cap, cfg.RecomputeInterval),
		downloader: NewDownloader(store, pl, cfg.ReadTimeout, max(cfg.Cap, cfg.DownloadWorkers)),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	p.server = newRequestServer(store, pl, cfg.ReadTimeout, cfg.BufferSize, cfg.RequestLineLimit, cfg.MaxUploadBytesPerSec, cfg.UploadWorkers)

	return p, nil
}

// Run starts the request server and the convergence loop (which, for a peer
// that is already a seeder, registers once and returns), and blocks until
// ctx is canceled or either fails.
func (p *Peer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.id)
	if err != nil {
		return fmt.Errorf("peer: listen on %s: %w", p.id, err)
	}
	p.listener = ln
	defer p.store.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.serveRequests(gctx)
	})

	g.Go(func() error {
		return p.convergenceLoop(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		return p.listener.Close()
	})

	return g.Wait()
}

func (p *Peer) serveRequests(ctx context.Context) error {
	p.log.Info("request server listening", "addr", p.id)

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("peer: accept: %w", err)
			}
		}
		go p.server.handleConn(conn)
	}
}

// convergenceLoop implements §4.7: a seeder registers once and idles; a
// leecher repeats register → snapshot → recompute → reap → schedule →
// sleep until it owns every piece, then registers once more and becomes a
// seeder for the remainder of the process lifetime.
func (p *Peer) convergenceLoop(ctx context.Context) error {
	if p.store.IsComplete() {
		return p.registerOnce(ctx)
	}

	for !p.store.IsComplete() {
		if err := p.tick(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.cfg.TickInterval):
		}
	}

	p.log.Info("artifact complete, transitioning to seeder", "pieces", p.store.Len())
	return p.registerOnce(ctx)
}

func (p *Peer) registerOnce(ctx context.Context) error {
	if err := p.trackerCli.Register(ctx, p.id, p.store.SnapshotOwned()); err != nil {
		return fmt.Errorf("peer: register: %w", err)
	}
	return nil
}

// tick implements one convergence-loop iteration. Per spec §7, tracker
// unreachability is an accepted limitation, not a handled error: a failed
// register or get_peers call terminates the peer rather than being retried.
func (p *Peer) tick(ctx context.Context) error {
	if err := p.trackerCli.Register(ctx, p.id, p.store.SnapshotOwned()); err != nil {
		return fmt.Errorf("peer: register: %w", err)
	}

	snapshot, err := p.trackerCli.GetPeers(ctx)
	if err != nil {
		return fmt.Errorf("peer: get_peers: %w", err)
	}

	target := p.parallel.Target(snapshot, p.id, p.cfg.PieceCount, time.Now())

	p.downloader.Reap()

	freeSlots := target - p.downloader.ActiveCount()
	if freeSlots > 0 {
		owned, inflight := p.store.SnapshotSets()
		candidates := swarm.BuildCandidates(snapshot, owned, inflight, p.cfg.PieceCount)

		if len(candidates) > freeSlots {
			candidates = candidates[:freeSlots]
		}

		for _, idx := range candidates {
			provider, ok := swarm.PickProvider(snapshot, idx, p.cfg.PieceCount, p.rng.Intn)
			if !ok {
				continue
			}
			p.downloader.Dispatch(ctx, idx, provider, p.cfg.PieceSize)
		}
	}

	owned := p.store.Len()
	p.log.Info("progress", "owned", owned, "total", p.cfg.PieceCount,
		"percent", fmt.Sprintf("%.1f", 100*float64(owned)/float64(p.cfg.PieceCount)))

	return nil
}

// BackingFilePath mirrors the naming rule in New, exposed for callers that
// need to locate a peer's file without constructing a Peer.
func BackingFilePath(host, port, artifact string) string {
	return strings.ReplaceAll(fmt.Sprintf("%s_%s_%s", host, port, artifact), ":", "_")
}
