package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/thainguyen06/pmc/internal/controlapi"
	"github.com/thainguyen06/pmc/internal/logstore"
	"github.com/thainguyen06/pmc/internal/peer"
	"github.com/thainguyen06/pmc/internal/wire"
)

// httpMux builds the HTTP control surface (spec §6's path table): what a
// peer's Peer Client dials into, and what an operator can hit directly.
// Every handler is a thin translation into the same controlapi.API the
// Unix-socket dispatcher uses, so the two transports can never disagree
// about validation or error kinds.
func (s *server) httpMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /list", s.authed(s.handleList))
	mux.Handle("GET /process/{id}/info", s.authed(s.handleInfo))
	mux.Handle("POST /process/{id}/action", s.authed(s.handleAction))
	mux.Handle("POST /process/{id}/rename", s.authed(s.handleRename))
	mux.Handle("POST /process/create", s.authed(s.handleCreate))
	mux.Handle("GET /process/{id}/logs/{stream}", s.authed(s.handleLogs))
	mux.Handle("POST /daemon/save", s.authed(s.handleSave))
	mux.Handle("POST /daemon/restore", s.authed(s.handleRestore))
	mux.Handle("GET /daemon/metrics", s.authed(s.handleMetrics))
	mux.Handle("GET /daemon/servers", s.authed(s.handleServers))
	mux.Handle("GET /remote/{name}/{path...}", s.authed(s.handleRemote))
	mux.Handle("POST /rpc", s.authed(s.handleRPC))

	return mux
}

// handleRPC is the HTTP-transport counterpart to the Unix-socket
// dispatcher: it accepts the same internal/wire.Request envelope the CLI
// sends locally, so the Peer Client can forward a corralctl request to a
// remote daemon without translating every control-API operation into its
// own bespoke REST shape. The REST paths above remain the documented
// surface for direct HTTP callers (spec §6's path table); this endpoint is
// what `--server NAME` actually rides over the wire.
func (s *server) handleRPC(w http.ResponseWriter, r *http.Request) {
	req, err := wire.ReadRequest(r.Body)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wire.Fail(err))
		return
	}
	resp := s.dispatch(req)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// authed wraps h with the token check spec §6 requires on every request
// when a token is configured: "otherwise respond with an unauthorised
// status and no body."
func (s *server) authed(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken != "" && r.Header.Get("token") != s.cfg.AuthToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		h(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v any, err error) {
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusFor(err))
		json.NewEncoder(w).Encode(wire.Fail(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wire.Ok(v))
}

// statusFor maps both controlapi's sentinel kinds (spec §7) and the Peer
// Client's own forwarding-failure sentinels (spec §4.J — produced by
// peer.Client.Forward, not controlapi) onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, controlapi.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, controlapi.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, peer.ErrForbiddenForAgent):
		return http.StatusForbidden
	case errors.Is(err, peer.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, peer.ErrUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, controlapi.ErrInvalidArgs), errors.Is(err, controlapi.ErrInvalidTransition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.api.List(), nil)
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	detail, err := s.api.Info(r.PathValue("id"))
	writeJSON(w, detail, err)
}

func (s *server) handleAction(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Method controlapi.ActionMethod `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, nil, &controlapi.IOError{Reason: "decode action body", Err: err})
		return
	}
	err := s.api.Action(r.PathValue("id"), body.Method)
	writeJSON(w, nil, err)
}

func (s *server) handleRename(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, nil, &controlapi.IOError{Reason: "read rename body", Err: err})
		return
	}
	err = s.api.Rename(r.PathValue("id"), string(data))
	writeJSON(w, nil, err)
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req controlapi.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, nil, &controlapi.IOError{Reason: "decode create body", Err: err})
		return
	}
	ids, err := s.api.Create(req)
	writeJSON(w, ids, err)
}

func (s *server) handleLogs(w http.ResponseWriter, r *http.Request) {
	stream := logstore.Stream(r.PathValue("stream"))
	if stream != logstore.StreamOut && stream != logstore.StreamErr {
		writeJSON(w, nil, controlapi.ErrInvalidArgs)
		return
	}
	var lines int // 0 tells logstore.Tail to apply its own spec §6 default of 15
	if n := r.URL.Query().Get("lines"); n != "" {
		json.Unmarshal([]byte(n), &lines)
	}
	out, err := s.api.Logs(r.PathValue("id"), stream, lines)
	writeJSON(w, out, err)
}

func (s *server) handleSave(w http.ResponseWriter, r *http.Request) {
	n, err := s.api.Save()
	writeJSON(w, n, err)
}

func (s *server) handleRestore(w http.ResponseWriter, r *http.Request) {
	n, err := s.api.Restore()
	writeJSON(w, n, err)
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.api.Metrics(), nil)
}

func (s *server) handleServers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.peer.Servers(), nil)
}

// handleRemote forwards GET /remote/{name}/{path...} to the named peer's
// own HTTP surface, relaying the response unchanged (spec §6 table row
// "GET /remote/{name}/… | Peer Client").
func (s *server) handleRemote(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	path := "/" + r.PathValue("path")
	body, err := s.peer.Forward(r.Context(), name, http.MethodGet, path, nil)
	if err != nil {
		writeJSON(w, nil, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
