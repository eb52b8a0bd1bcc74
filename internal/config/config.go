// Package config holds the swarm-wide tunables shared by the tracker and
// peer daemons. Every field here is fixed at process start; none of it is
// negotiated over the wire, so mismatched constants across peers produce
// undefined behavior by design.
package config

import "time"

// Config groups the constants that govern piece geometry, the parallelism
// controller, and the two socket-facing subsystems of a peer.
type Config struct {
	// ========== Artifact geometry ==========

	// PieceSize is the byte length of a single piece. All pieces are this
	// size; the final piece is never short.
	PieceSize int64

	// PieceCount is the number of pieces in the artifact.
	PieceCount int

	// ========== Parallelism controller ==========

	// Base is the parallelism floor used when the swarm snapshot is empty
	// or contains no other seeds/leechers.
	Base int

	// KSeed is the per-seed contribution to the parallelism target.
	KSeed int

	// KLeech is the per-leecher contribution to the parallelism target.
	KLeech int

	// Cap is the parallelism ceiling, regardless of swarm composition.
	Cap int

	// RecomputeInterval bounds how often the parallelism target is
	// recalculated; between recomputations the prior value governs.
	RecomputeInterval time.Duration

	// ========== Convergence loop ==========

	// TickInterval is how long the leecher loop sleeps between iterations.
	TickInterval time.Duration

	// ========== Networking ==========

	// DialTimeout, ReadTimeout and WriteTimeout bound every peer-to-peer
	// socket operation in the piece-transfer protocol.
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// BufferSize is the chunk size used when streaming a piece back to a
	// requester.
	BufferSize int

	// RequestLineLimit bounds how many bytes the request server reads
	// before attempting to parse a GET request.
	RequestLineLimit int

	// MaxUploadBytesPerSec throttles the request server's outbound piece
	// bytes. Zero means unlimited.
	MaxUploadBytesPerSec int64

	// DownloadWorkers bounds the peer's outbound-connection pool
	// (dispatched downloads). Must be at least Cap so the parallelism
	// target is never starved of worker slots.
	DownloadWorkers int

	// UploadWorkers bounds the peer's inbound-connection pool (serving
	// other peers' GET requests).
	UploadWorkers int

	// ArtifactName is the logical artifact filename used to build each
	// peer's backing-file name ("<host>_<port>_<artifact>").
	ArtifactName string

	// TrackerAddr is the base URL of the tracker every peer announces to.
	// The peer CLI takes no tracker argument (spec §6), so this is the
	// swarm-wide rendezvous point, matching the tracker's own fixed
	// localhost:8000 bind address.
	TrackerAddr string
}

// Default returns the swarm defaults mirroring the reference
// implementation's constants: 500 pieces of 1 MiB each, a parallelism
// formula of target = min(100, 5 + 5*seeds + 2*leechers), a 1s scheduler
// tick and a 10s socket timeout.
func Default() *Config {
	return &Config{
		PieceSize:            1 << 20,
		PieceCount:           500,
		Base:                 5,
		KSeed:                5,
		KLeech:               2,
		Cap:                  100,
		RecomputeInterval:    5 * time.Second,
		TickInterval:         1 * time.Second,
		DialTimeout:          10 * time.Second,
		ReadTimeout:          10 * time.Second,
		WriteTimeout:         10 * time.Second,
		BufferSize:           64 << 10,
		RequestLineLimit:     1024,
		MaxUploadBytesPerSec: 0,
		DownloadWorkers:      100,
		UploadWorkers:        50,
		ArtifactName:         "artifact.bin",
		TrackerAddr:          "http://localhost:8000",
	}
}
