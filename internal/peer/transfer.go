package peer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"
)

const missReply = "ERRO: Pedaco nao encontrado"

// RequestPiece dials provider, sends an ASCII "GET <index>" request with no
// newline, and returns exactly pieceSize bytes on success. Any short read —
// including a miss reply, which is short whenever pieceSize exceeds the
// reply's 27 bytes — is treated as failure; the caller must not persist a
// partial result.
func RequestPiece(ctx context.Context, provider string, index int, pieceSize int64, timeout time.Duration) ([]byte, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", provider)
	if err != nil {
		return nil, fmt.Errorf("peer: dial %s: %w", provider, err)
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("peer: set write deadline: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "GET %d", index); err != nil {
		return nil, fmt.Errorf("peer: send request: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("peer: set read deadline: %w", err)
	}

	buf := make([]byte, pieceSize)
	n, err := io.ReadFull(conn, buf)
	if err != nil {
		return nil, fmt.Errorf("peer: short read from %s for piece %d (%d/%d bytes): %w", provider, index, n, pieceSize, err)
	}
	return buf, nil
}

// requestServer answers GET requests on connections handed to it by the
// peer's accept loop, reading from a Store, throttling outbound bytes through an optional limiter and
// bounding concurrently-served connections through a semaphore-gated worker
// pool (spec §4.6/§5: upload pool, cap 50 default).
type requestServer struct {
	store            *Store
	log              *slog.Logger
	timeout          time.Duration
	bufferSize       int
	requestLineLimit int
	limiter          *rate.Limiter
	sem              chan struct{}
}

func newRequestServer(store *Store, log *slog.Logger, timeout time.Duration, bufferSize, requestLineLimit int, maxUploadBytesPerSec int64, workerCap int) *requestServer {
	var limiter *rate.Limiter
	if maxUploadBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxUploadBytesPerSec), bufferSize)
	}

	return &requestServer{
		store:            store,
		log:              log,
		timeout:          timeout,
		bufferSize:       bufferSize,
		requestLineLimit: requestLineLimit,
		limiter:          limiter,
		sem:              make(chan struct{}, workerCap),
	}
}

// handleConn is dispatched one per accepted connection; the semaphore bounds
// how many run their request/response body concurrently, the rest block
// until a slot frees up.
func (s *requestServer) handleConn(conn net.Conn) {
	defer conn.Close()

	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	if err := conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return
	}

	req := make([]byte, s.requestLineLimit)
	n, err := conn.Read(req)
	if err != nil || n == 0 {
		return
	}

	var index int
	if _, err := fmt.Sscanf(string(req[:n]), "GET %d", &index); err != nil {
		s.writeMiss(conn)
		return
	}

	if !s.store.Has(index) {
		s.writeMiss(conn)
		return
	}

	data, err := s.store.ReadPiece(index)
	if err != nil {
		s.writeMiss(conn)
		return
	}

	s.writeChunked(conn, data)
}

func (s *requestServer) writeMiss(conn net.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(s.timeout))
	_, _ = conn.Write([]byte(missReply))
}

func (s *requestServer) writeChunked(conn net.Conn, data []byte) {
	ctx := context.Background()

	for off := 0; off < len(data); off += s.bufferSize {
		end := off + s.bufferSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		if s.limiter != nil {
			if err := s.limiter.WaitN(ctx, len(chunk)); err != nil {
				return
			}
		}

		if err := conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return
		}
		if _, err := conn.Write(chunk); err != nil {
			return
		}
	}
}
