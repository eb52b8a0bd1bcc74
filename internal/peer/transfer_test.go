package peer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

func testServerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestServer(t *testing.T, store *Store, bufferSize int) string {
	t.Helper()
	return startTestServerWithCap(t, store, bufferSize, 50)
}

func startTestServerWithCap(t *testing.T, store *Store, bufferSize, workerCap int) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	srv := newRequestServer(store, testServerLogger(), time.Second, bufferSize, 1024, 0, workerCap)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(conn)
		}
	}()

	return ln.Addr().String()
}

func TestRequestPieceHit(t *testing.T) {
	s := newTestStore(t, 16, 2, false)
	s.MarkInflight(0)
	want := bytes.Repeat([]byte{0xAB}, 16)
	if err := s.Persist(0, want); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	addr := startTestServer(t, s, 64<<10)

	got, err := RequestPiece(context.Background(), addr, 0, 16, time.Second)
	if err != nil {
		t.Fatalf("RequestPiece() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("RequestPiece() = %v, want %v", got, want)
	}
}

func TestRequestPieceStreamsInChunks(t *testing.T) {
	s := newTestStore(t, 40, 1, false)
	s.MarkInflight(0)
	want := make([]byte, 40)
	for i := range want {
		want[i] = byte(i)
	}
	if err := s.Persist(0, want); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	addr := startTestServer(t, s, 8) // force multiple small chunks

	got, err := RequestPiece(context.Background(), addr, 0, 40, time.Second)
	if err != nil {
		t.Fatalf("RequestPiece() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("RequestPiece() = %v, want %v", got, want)
	}
}

func TestRequestPieceMissReturnsFailure(t *testing.T) {
	// pieceSize must exceed the 27-byte miss reply, or the reply fills the
	// whole read and is indistinguishable from piece data.
	s := newTestStore(t, 64, 2, false) // index 0 never persisted
	addr := startTestServer(t, s, 64<<10)

	if _, err := RequestPiece(context.Background(), addr, 0, 64, time.Second); err == nil {
		t.Fatal("RequestPiece() on an unowned piece expected error, got nil")
	}
}

func TestRequestServerWorkerCapBoundsSemaphore(t *testing.T) {
	s := newTestStore(t, 8, 1, false)
	const workerCap = 7
	srv := newRequestServer(s, testServerLogger(), time.Second, 64<<10, 1024, 0, workerCap)

	if got := cap(srv.sem); got != workerCap {
		t.Fatalf("requestServer semaphore capacity = %d, want %d", got, workerCap)
	}
}

func TestRequestServerServesUpToWorkerCapConcurrently(t *testing.T) {
	s := newTestStore(t, 8, 2, false)
	for _, idx := range []int{0, 1} {
		s.MarkInflight(idx)
		if err := s.Persist(idx, bytes.Repeat([]byte{byte(idx + 1)}, 8)); err != nil {
			t.Fatalf("Persist(%d) error = %v", idx, err)
		}
	}

	const workerCap = 2
	addr := startTestServerWithCap(t, s, 64<<10, workerCap)

	results := make(chan error, workerCap)
	for i := 0; i < workerCap; i++ {
		i := i
		go func() {
			_, err := RequestPiece(context.Background(), addr, i%2, 8, time.Second)
			results <- err
		}()
	}

	for i := 0; i < workerCap; i++ {
		if err := <-results; err != nil {
			t.Fatalf("RequestPiece() within worker cap failed: %v", err)
		}
	}
}

func TestRequestPieceShortResponseIsFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		_, _ = conn.Read(buf)
		// Simulate a connection cut mid-stream: deliver less than pieceSize.
		_, _ = conn.Write(bytes.Repeat([]byte{1}, 8))
	}()

	_, err = RequestPiece(context.Background(), ln.Addr().String(), 7, 16, time.Second)
	if err == nil {
		t.Fatal("RequestPiece() with a short response expected error, got nil")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		t.Logf("RequestPiece() error = %v (non-EOF short-read error is acceptable)", err)
	}
}
