package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thainguyen06/pmc/internal/config"
	"github.com/thainguyen06/pmc/internal/controlapi"
	"github.com/thainguyen06/pmc/internal/logging"
	"github.com/thainguyen06/pmc/internal/logstore"
	"github.com/thainguyen06/pmc/internal/peer"
	"github.com/thainguyen06/pmc/internal/record"
	"github.com/thainguyen06/pmc/internal/supervisor"
)

func newTestServer(t *testing.T, token string) *server {
	t.Helper()
	dir := t.TempDir()
	logs, err := logstore.New(filepath.Join(dir, "logs"))
	require.NoError(t, err)

	cfg := config.Default(dir)
	cfg.SampleInterval = 20 * time.Millisecond
	cfg.AuthToken = token

	tbl := record.New()
	sup := supervisor.New(cfg, logging.Noop(), tbl, logs)

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	t.Cleanup(func() {
		cancel()
		sup.Wait()
	})

	api := controlapi.New(cfg, sup, tbl, logs)
	pc := peer.New(cfg.Role, cfg.PeerTimeout, nil)
	return &server{cfg: cfg, log: logging.Noop(), api: api, logs: logs, peer: pc}
}

func TestHTTPHealthNeedsNoToken(t *testing.T) {
	s := newTestServer(t, "secret")
	mux := s.httpMux()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestHTTPListWithoutTokenIsUnauthorized(t *testing.T) {
	s := newTestServer(t, "secret")
	mux := s.httpMux()

	req := httptest.NewRequest("GET", "/list", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, 401, rec.Code)
}

func TestHTTPListWithTokenSucceeds(t *testing.T) {
	s := newTestServer(t, "secret")
	mux := s.httpMux()

	req := httptest.NewRequest("GET", "/list", nil)
	req.Header.Set("token", "secret")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestHTTPInfoOnMissingRefReturnsNotFound(t *testing.T) {
	s := newTestServer(t, "")
	mux := s.httpMux()

	req := httptest.NewRequest("GET", "/process/missing/info", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestHTTPCreateThenInfo(t *testing.T) {
	s := newTestServer(t, "")
	mux := s.httpMux()
	dir := t.TempDir()

	body, err := json.Marshal(controlapi.CreateRequest{Script: "exit 0", Name: "one-shot", Path: dir})
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/process/create", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	req2 := httptest.NewRequest("GET", "/process/one-shot/info", nil)
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	assert.Equal(t, 200, rec2.Code)
}

func TestHTTPRemoteOnAgentDaemonIsForbidden(t *testing.T) {
	s := newTestServer(t, "")
	s.cfg.Role = config.RoleAgent
	s.peer = peer.New(config.RoleAgent, s.cfg.PeerTimeout, nil)
	mux := s.httpMux()

	req := httptest.NewRequest("GET", "/remote/x/list", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, 403, rec.Code)
}

func TestStatusForMapsPeerSentinels(t *testing.T) {
	assert.Equal(t, 403, statusFor(peer.ErrForbiddenForAgent))
	assert.Equal(t, 504, statusFor(peer.ErrTimeout))
	assert.Equal(t, 502, statusFor(peer.ErrUnreachable))
	assert.Equal(t, 404, statusFor(controlapi.ErrNotFound))
}
