// Package peer implements the peer side of the swarm: the backing-file
// store, the piece-transfer wire protocol (both directions), the download
// dispatcher, and the convergence loop tying them together.
package peer

import (
	"fmt"
	"os"
	"sync"
)

// Store holds a peer's owned/inflight piece sets and the backing file they
// describe. A single mutex guards owned, inflight, and every write to file,
// matching the swarm's "one lock per component" rule.
type Store struct {
	mu sync.Mutex

	file       *os.File
	pieceSize  int64
	pieceCount int

	owned    map[int]struct{}
	inflight map[int]struct{}
}

// OpenStore opens (creating if necessary) the backing file at path,
// pre-extends it to pieceCount*pieceSize bytes, and returns a Store. If
// seed is true, owned starts as the full index range; otherwise it starts
// empty.
func OpenStore(path string, pieceSize int64, pieceCount int, seed bool) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("peer: open backing file: %w", err)
	}

	total := pieceSize * int64(pieceCount)
	if err := f.Truncate(total); err != nil {
		f.Close()
		return nil, fmt.Errorf("peer: extend backing file: %w", err)
	}

	s := &Store{
		file:       f,
		pieceSize:  pieceSize,
		pieceCount: pieceCount,
		owned:      make(map[int]struct{}),
		inflight:   make(map[int]struct{}),
	}

	if seed {
		for i := 0; i < pieceCount; i++ {
			s.owned[i] = struct{}{}
		}
	}

	return s, nil
}

// Close releases the backing file.
func (s *Store) Close() error {
	return s.file.Close()
}

// PieceCount returns the artifact's total piece count.
func (s *Store) PieceCount() int { return s.pieceCount }

// Len returns the number of pieces currently owned.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owned)
}

// IsComplete reports whether every piece is owned.
func (s *Store) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owned) == s.pieceCount
}

// Has reports whether index is owned.
func (s *Store) Has(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.owned[index]
	return ok
}

// SnapshotOwned returns owned as a plain slice of indices, for registering
// with the tracker.
func (s *Store) SnapshotOwned() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int, 0, len(s.owned))
	for idx := range s.owned {
		out = append(out, idx)
	}
	return out
}

// SnapshotSets returns independent copies of owned and inflight, for
// building the rarest-first candidate set lock-free.
func (s *Store) SnapshotSets() (owned, inflight map[int]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owned = make(map[int]struct{}, len(s.owned))
	for idx := range s.owned {
		owned[idx] = struct{}{}
	}
	inflight = make(map[int]struct{}, len(s.inflight))
	for idx := range s.inflight {
		inflight[idx] = struct{}{}
	}
	return owned, inflight
}

// MarkInflight adds index to inflight, returning false if it is already
// owned or already inflight (callers should skip dispatch in that case).
func (s *Store) MarkInflight(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, owned := s.owned[index]; owned {
		return false
	}
	if _, pending := s.inflight[index]; pending {
		return false
	}
	s.inflight[index] = struct{}{}
	return true
}

// ClearInflight removes index from inflight without marking it owned, used
// when a dispatched download fails and the piece must re-enter the
// candidate pool.
func (s *Store) ClearInflight(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, index)
}

// Persist writes data as the full contents of piece index, moves index from
// inflight to owned, and returns an error without mutating state if data is
// not a full piece — a short read must never be persisted.
func (s *Store) Persist(index int, data []byte) error {
	if int64(len(data)) != s.pieceSize {
		return fmt.Errorf("peer: short piece %d: got %d bytes, want %d", index, len(data), s.pieceSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.WriteAt(data, int64(index)*s.pieceSize); err != nil {
		return fmt.Errorf("peer: write piece %d: %w", index, err)
	}

	s.owned[index] = struct{}{}
	delete(s.inflight, index)
	return nil
}

// ReadPiece returns the full PieceSize bytes of piece index as currently
// stored on disk, regardless of whether index is in owned (seeders and
// leechers alike serve whatever read returns, per the wire protocol).
func (s *Store) ReadPiece(index int) ([]byte, error) {
	buf := make([]byte, s.pieceSize)

	s.mu.Lock()
	n, err := s.file.ReadAt(buf, int64(index)*s.pieceSize)
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("peer: read piece %d: %w", index, err)
	}
	return buf[:n], nil
}
