// Package peer implements the Peer/Agent Client (spec §4.J): forwarding a
// control-API request to a named remote daemon's HTTP endpoint when the
// request targets a server other than the local one.
//
// The wire shape mirrors the teacher's own Unix-socket client
// (cmd/grove/client.go sends a JSON request, reads one JSON response) —
// generalized here from a Unix socket to an HTTP round trip, since a peer
// is a different machine rather than a local daemon.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/thainguyen06/pmc/internal/config"
)

// ErrForbiddenForAgent is returned when an agent-role daemon is asked to
// forward to a peer (spec §4.J "an agent-role daemon refuses to forward").
var ErrForbiddenForAgent = fmt.Errorf("forbidden: agent-role daemon cannot forward to a peer")

// ErrTimeout and ErrUnreachable classify forwarding failures (spec §7
// `PeerTimeout`, `PeerUnreachable`).
var (
	ErrTimeout     = fmt.Errorf("peer request timed out")
	ErrUnreachable = fmt.Errorf("peer unreachable")
)

// Server is one entry of the daemon's `servers` file: a named peer's
// address and optional auth token (spec §6 "servers (peer address +
// optional token)").
type Server struct {
	Name  string `json:"name"`
	Addr  string `json:"addr"` // base URL, e.g. https://host:port
	Token string `json:"token,omitempty"`
}

// Client forwards control-API requests to named peers.
type Client struct {
	role    config.Role
	timeout time.Duration
	hc      *http.Client
	servers map[string]Server
}

// New returns a Client. role gates whether forwarding is permitted at all.
func New(role config.Role, timeout time.Duration, servers []Server) *Client {
	byName := make(map[string]Server, len(servers))
	for _, s := range servers {
		byName[s.Name] = s
	}
	return &Client{
		role:    role,
		timeout: timeout,
		hc:      &http.Client{Timeout: timeout},
		servers: byName,
	}
}

// Forward encodes a control-API request and sends it to the named peer's
// HTTP endpoint, returning the raw response body unchanged (spec §4.J "the
// response is returned to the caller unchanged"). path is the HTTP path on
// the peer (e.g. "/list"); method is the HTTP verb; body, if non-nil, is
// marshaled as the JSON request payload.
func (c *Client) Forward(ctx context.Context, serverName, method, path string, body any) ([]byte, error) {
	if c.role == config.RoleAgent {
		return nil, ErrForbiddenForAgent
	}
	srv, ok := c.servers[serverName]
	if !ok {
		return nil, fmt.Errorf("unknown server %q", serverName)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal peer request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, srv.Addr+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build peer request: %w", err)
	}
	req.Header.Set("X-Correlation-Id", uuid.NewString())
	if srv.Token != "" {
		req.Header.Set("token", srv.Token)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, ErrUnreachable
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read peer response: %w", err)
	}
	return data, nil
}

// Servers lists every known peer's name (spec §6 `GET /daemon/servers`).
func (c *Client) Servers() []string {
	names := make([]string, 0, len(c.servers))
	for name := range c.servers {
		names = append(names, name)
	}
	return names
}
