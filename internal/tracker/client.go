package tracker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prxssh/pieceswarm/internal/bencode"
)

// Client is a peer's handle to a remote tracker, speaking the same bencoded
// wire format as Server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client targeting the tracker at baseURL (e.g.
// "http://localhost:8000"), with every call bounded by timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Register announces peerID's currently-owned pieces to the tracker.
func (c *Client) Register(ctx context.Context, peerID string, pieces []int) error {
	list := make([]any, len(pieces))
	for i, p := range pieces {
		list[i] = int64(p)
	}

	_, err := c.call(ctx, "/register", map[string]any{
		"peer_id": peerID,
		"pieces":  list,
	})
	return err
}

// GetPeers returns the tracker's full peer_id -> owned-pieces snapshot.
func (c *Client) GetPeers(ctx context.Context) (map[string][]int, error) {
	resp, err := c.call(ctx, "/get_peers", map[string]any{})
	if err != nil {
		return nil, err
	}

	rawPeers, _ := resp["peers"].(map[string]any)
	out := make(map[string][]int, len(rawPeers))
	for id, v := range rawPeers {
		rawPieces, _ := v.([]any)
		pieces := make([]int, 0, len(rawPieces))
		for _, p := range rawPieces {
			n, ok := p.(int64)
			if !ok {
				return nil, fmt.Errorf("tracker: malformed piece index in get_peers response")
			}
			pieces = append(pieces, int(n))
		}
		out[id] = pieces
	}
	return out, nil
}

// OwnersOf returns every peer_id the tracker believes owns index.
func (c *Client) OwnersOf(ctx context.Context, index int) ([]string, error) {
	resp, err := c.call(ctx, "/owners_of", map[string]any{"index": int64(index)})
	if err != nil {
		return nil, err
	}

	rawOwners, _ := resp["owners"].([]any)
	owners := make([]string, 0, len(rawOwners))
	for _, v := range rawOwners {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("tracker: malformed owner entry in owners_of response")
		}
		owners = append(owners, s)
	}
	return owners, nil
}

func (c *Client) call(ctx context.Context, path string, body map[string]any) (map[string]any, error) {
	encoded, err := bencode.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("tracker: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("tracker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tracker: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tracker: read response: %w", err)
	}

	v, err := bencode.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("tracker: decode response: %w", err)
	}

	dict, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tracker: response is not a dictionary")
	}

	if resp.StatusCode != http.StatusOK {
		if msg, ok := dict["error"].(string); ok {
			return nil, fmt.Errorf("tracker: %s: %s", path, msg)
		}
		return nil, fmt.Errorf("tracker: %s: status %d", path, resp.StatusCode)
	}

	return dict, nil
}
