package peer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// downloadResult reports the outcome of one dispatched piece download.
type downloadResult struct {
	index   int
	success bool
}

// Downloader dispatches piece downloads onto a bounded worker pool and
// reaps their completions, maintaining the active set described in §4.4:
// every dispatched piece has a handle until its task reports in.
type Downloader struct {
	store   *Store
	log     *slog.Logger
	timeout time.Duration

	sem     chan struct{}
	results chan downloadResult

	mu     sync.Mutex
	active map[int]struct{}
}

// NewDownloader returns a Downloader whose worker pool never runs more than
// workerCap downloads concurrently.
func NewDownloader(store *Store, log *slog.Logger, timeout time.Duration, workerCap int) *Downloader {
	return &Downloader{
		store:   store,
		log:     log,
		timeout: timeout,
		sem:     make(chan struct{}, workerCap),
		results: make(chan downloadResult, workerCap),
		active:  make(map[int]struct{}),
	}
}

// ActiveCount returns the number of pieces currently dispatched but not yet
// reaped.
func (d *Downloader) ActiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// Dispatch marks index inflight and launches a goroutine that fetches it
// from provider, persisting on success. Callers must have already confirmed
// free worker slots remain (the semaphore only bounds how many downloads
// run concurrently, not how many are accepted into active).
func (d *Downloader) Dispatch(ctx context.Context, index int, provider string, pieceSize int64) {
	if !d.store.MarkInflight(index) {
		return
	}

	d.mu.Lock()
	d.active[index] = struct{}{}
	d.mu.Unlock()

	go func() {
		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		data, err := RequestPiece(ctx, provider, index, pieceSize, d.timeout)
		if err != nil {
			d.log.Debug("download failed", "piece", index, "provider", provider, "err", err)
			d.results <- downloadResult{index: index, success: false}
			return
		}

		if err := d.store.Persist(index, data); err != nil {
			d.log.Warn("persist failed", "piece", index, "err", err)
			d.results <- downloadResult{index: index, success: false}
			return
		}

		d.results <- downloadResult{index: index, success: true}
	}()
}

// Reap drains every completion recorded since the last call, removing each
// from active and, on failure, clearing the piece's inflight mark so the
// selector can retry it next tick.
func (d *Downloader) Reap() {
	for {
		select {
		case res := <-d.results:
			d.mu.Lock()
			delete(d.active, res.index)
			d.mu.Unlock()

			if !res.success {
				d.store.ClearInflight(res.index)
			}
		default:
			return
		}
	}
}
