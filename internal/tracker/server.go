package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/prxssh/pieceswarm/internal/bencode"
)

// Server exposes a Tracker's three RPCs over HTTP, each carrying a bencoded
// dictionary in the request and response body, plus a JSON status endpoint
// that sits outside that contract.
type Server struct {
	addr    string
	tracker *Tracker
	log     *slog.Logger
	http    *http.Server
}

// NewServer returns a Server that will listen on addr once Run is called.
func NewServer(addr string, t *Tracker, log *slog.Logger) *Server {
	s := &Server{addr: addr, tracker: t, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/get_peers", s.handleGetPeers)
	mux.HandleFunc("/owners_of", s.handleOwnersOf)
	mux.HandleFunc("/status", s.handleStatus)

	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Run serves the tracker's HTTP surface until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("tracker listening", "addr", s.addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.http.Shutdown(context.Background())
	})

	return g.Wait()
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeBencodeError(w, err)
		return
	}

	peerID, ok := body["peer_id"].(string)
	if !ok {
		writeBencodeError(w, fmt.Errorf("tracker: missing peer_id"))
		return
	}

	rawPieces, _ := body["pieces"].([]any)
	pieces := make([]int, 0, len(rawPieces))
	for _, v := range rawPieces {
		n, ok := v.(int64)
		if !ok {
			writeBencodeError(w, fmt.Errorf("tracker: non-integer piece index"))
			return
		}
		pieces = append(pieces, int(n))
	}

	s.tracker.Register(peerID, pieces)
	writeBencode(w, map[string]any{"ok": true})
}

func (s *Server) handleGetPeers(w http.ResponseWriter, r *http.Request) {
	peers := s.tracker.GetPeers()

	out := make(map[string]any, len(peers))
	for id, pieces := range peers {
		list := make([]any, len(pieces))
		for i, p := range pieces {
			list[i] = int64(p)
		}
		out[id] = list
	}
	writeBencode(w, map[string]any{"peers": out})
}

func (s *Server) handleOwnersOf(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeBencodeError(w, err)
		return
	}

	idx, ok := body["index"].(int64)
	if !ok {
		writeBencodeError(w, fmt.Errorf("tracker: missing index"))
		return
	}

	owners := s.tracker.OwnersOf(int(idx))
	list := make([]any, len(owners))
	for i, o := range owners {
		list[i] = o
	}
	writeBencode(w, map[string]any{"owners": list})
}

// handleStatus is the one place this codebase reaches for encoding/json
// directly: a debugging surface, not part of the three-RPC contract.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.tracker.Stats()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"register_count": stats.RegisterCount,
		"lookup_count":   stats.LookupCount,
		"started_at":     stats.StartedAt,
		"peer_count":     stats.PeerCount,
		"popularity":     stats.Popularity,
	})
}

func decodeBody(r *http.Request) (map[string]any, error) {
	defer r.Body.Close()

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("tracker: read body: %w", err)
	}

	v, err := bencode.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("tracker: decode body: %w", err)
	}

	dict, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tracker: request body is not a dictionary")
	}
	return dict, nil
}

func writeBencode(w http.ResponseWriter, v any) {
	body, err := bencode.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write(body)
}

func writeBencodeError(w http.ResponseWriter, err error) {
	body, _ := bencode.Marshal(map[string]any{"error": err.Error()})
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write(body)
}
