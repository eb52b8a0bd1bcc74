// Package tracker implements the swarm's single point of coordination: a
// registry of which peer holds which pieces, reachable over the three RPCs
// a peer needs to join and navigate a swarm (register, get_peers, owners_of).
package tracker

import (
	"log/slog"
	"sync"
	"time"
)

// Stats is a point-in-time snapshot of tracker activity, exposed through the
// status endpoint in package tracker's server.
type Stats struct {
	RegisterCount uint64
	LookupCount   uint64
	StartedAt     time.Time
	PeerCount     int
	Popularity    map[int]int
}

// Tracker is the swarm registry: peer_id -> owned piece indices, plus a
// popularity counter over owners_of lookups. A single mutex wraps the full
// body of every method, matching the registry's total, always-consistent
// semantics.
type Tracker struct {
	mu sync.Mutex

	peers      map[string][]int
	popularity map[int]int

	startedAt     time.Time
	registerCount uint64
	lookupCount   uint64

	log *slog.Logger
}

// New returns an empty Tracker ready to accept registrations.
func New(log *slog.Logger) *Tracker {
	return &Tracker{
		peers:      make(map[string][]int),
		popularity: make(map[int]int),
		startedAt:  time.Now(),
		log:        log,
	}
}

// Register replaces the piece set owned by peerID with pieces and increments
// the register count. A peer that registers twice simply overwrites its
// prior entry; there is no history of what it previously owned.
func (t *Tracker) Register(peerID string, pieces []int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	owned := make([]int, len(pieces))
	copy(owned, pieces)

	t.peers[peerID] = owned
	t.registerCount++

	t.log.Debug("peer registered", "peer", peerID, "pieces", len(owned))
}

// GetPeers returns a defensive copy of the full peer_id -> pieces map and
// increments the lookup count.
func (t *Tracker) GetPeers() map[string][]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lookupCount++

	out := make(map[string][]int, len(t.peers))
	for id, pieces := range t.peers {
		cp := make([]int, len(pieces))
		copy(cp, pieces)
		out[id] = cp
	}
	return out
}

// OwnersOf returns every peer_id whose registered piece set contains index,
// increments the lookup count, and records a popularity hit for index. The
// result is total: an index nobody owns yields an empty, non-nil slice.
func (t *Tracker) OwnersOf(index int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lookupCount++
	t.popularity[index]++

	owners := make([]string, 0)
	for id, pieces := range t.peers {
		for _, p := range pieces {
			if p == index {
				owners = append(owners, id)
				break
			}
		}
	}
	return owners
}

// Stats returns a snapshot of tracker activity for the status endpoint.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	popularity := make(map[int]int, len(t.popularity))
	for k, v := range t.popularity {
		popularity[k] = v
	}

	return Stats{
		RegisterCount: t.registerCount,
		LookupCount:   t.lookupCount,
		StartedAt:     t.startedAt,
		PeerCount:     len(t.peers),
		Popularity:    popularity,
	}
}
