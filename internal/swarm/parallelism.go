package swarm

import (
	"sync"
	"time"
)

// ParallelismController holds the adaptive download-concurrency target
// described by the swarm's parallelism formula, recomputing it at most once
// per RecomputeInterval and returning the previously chosen value otherwise.
type ParallelismController struct {
	mu sync.Mutex

	base, kSeed, kLeech, cap int
	recomputeInterval        time.Duration

	target       int
	lastComputed time.Time
}

// NewParallelismController returns a controller seeded at base, which also
// governs the result until the first recompute.
func NewParallelismController(base, kSeed, kLeech, cap int, recomputeInterval time.Duration) *ParallelismController {
	return &ParallelismController{
		base:              base,
		kSeed:             kSeed,
		kLeech:            kLeech,
		cap:               cap,
		recomputeInterval: recomputeInterval,
		target:            base,
	}
}

// Target returns the current parallelism target, recomputing it from
// snapshot against selfID if at least RecomputeInterval has elapsed since
// the last recompute.
func (c *ParallelismController) Target(snapshot map[string][]int, selfID string, pieceCount int, now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastComputed.IsZero() && now.Sub(c.lastComputed) < c.recomputeInterval {
		return c.target
	}

	seeds, leechers := 0, 0
	for peerID, pieces := range snapshot {
		if peerID == selfID {
			continue
		}
		switch {
		case len(pieces) == pieceCount:
			seeds++
		case len(pieces) > 0:
			leechers++
		}
	}

	target := c.base + seeds*c.kSeed + leechers*c.kLeech
	if target > c.cap {
		target = c.cap
	}
	if target < c.base {
		target = c.base
	}

	c.target = target
	c.lastComputed = now
	return c.target
}
