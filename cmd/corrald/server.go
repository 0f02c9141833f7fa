package main

import (
	"context"
	"net"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/thainguyen06/pmc/internal/config"
	"github.com/thainguyen06/pmc/internal/controlapi"
	"github.com/thainguyen06/pmc/internal/logstore"
	"github.com/thainguyen06/pmc/internal/peer"
	"github.com/thainguyen06/pmc/internal/wire"
)

// server listens on the daemon's Unix socket and dispatches one wire
// request per connection to the control API (spec §6 CLI transport). The
// connection-per-goroutine shape mirrors the teacher's daemon.handleConn,
// generalized from a single project/instance request vocabulary to the
// full control-API operation set.
type server struct {
	cfg  config.Config
	log  *zap.SugaredLogger
	api  *controlapi.API
	logs *logstore.Store
	peer *peer.Client
}

// runHTTP serves the HTTP control surface (spec §6) at addr until ctx is
// canceled. A daemon with no configured peers and no agents forwarding to
// it can leave cfg.HTTPAddr empty and skip this entirely.
func (s *server) runHTTP(ctx context.Context, addr string) error {
	httpSrv := &http.Server{Addr: addr, Handler: s.httpMux()}
	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()
	s.log.Infow("http control surface listening", "addr", addr)
	err := httpSrv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) run(ctx context.Context, socketPath string) error {
	os.Remove(socketPath)

	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer l.Close()

	go func() {
		<-ctx.Done()
		l.Close()
	}()

	s.log.Infow("listening", "socket", socketPath)
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *server) handleConn(conn net.Conn) {
	defer conn.Close()

	req, err := wire.ReadRequest(conn)
	if err != nil {
		return
	}

	if s.cfg.AuthToken != "" {
		// The Unix socket transport is local-only, but the configured token
		// is still required here, carried as an op-level "token" argument;
		// the HTTP surface checks the same token in a "token" header
		// (authed in http.go).
		var auth struct {
			Token string `json:"token"`
		}
		wire.DecodeArgs(req, &auth)
		if auth.Token != s.cfg.AuthToken {
			wire.WriteResponse(conn, wire.Fail(controlapi.ErrUnauthorized))
			return
		}
	}

	if req.Server != "" && req.Server != "local" {
		s.forwardToPeer(conn, req)
		return
	}

	resp := s.dispatch(req)
	wire.WriteResponse(conn, resp)
}

// forwardToPeer handles a request whose --server flag named a remote
// daemon (spec §4.J): the request is re-encoded as an HTTP call to that
// peer and its response relayed back unchanged.
func (s *server) forwardToPeer(conn net.Conn, req wire.Request) {
	body, err := s.peer.Forward(context.Background(), req.Server, "POST", "/rpc", req)
	if err != nil {
		wire.WriteResponse(conn, wire.Fail(err))
		return
	}
	conn.Write(body)
	conn.Write([]byte("\n"))
}

func (s *server) dispatch(req wire.Request) wire.Response {
	switch req.Op {
	case "list":
		return wire.Ok(s.api.List())

	case "info":
		var args struct{ Ref string }
		wire.DecodeArgs(req, &args)
		detail, err := s.api.Info(args.Ref)
		if err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(detail)

	case "env":
		var args struct{ Ref string }
		wire.DecodeArgs(req, &args)
		env, err := s.api.Env(args.Ref)
		if err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(env)

	case "cstart":
		var args struct{ Ref string }
		wire.DecodeArgs(req, &args)
		line, err := s.api.Cstart(args.Ref)
		if err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(line)

	case "create":
		var args controlapi.CreateRequest
		wire.DecodeArgs(req, &args)
		ids, err := s.api.Create(args)
		if err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(ids)

	case "action":
		var args struct {
			Ref    string
			Method controlapi.ActionMethod
		}
		wire.DecodeArgs(req, &args)
		if err := s.api.Action(args.Ref, args.Method); err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(nil)

	case "rename":
		var args struct{ Ref, NewName string }
		wire.DecodeArgs(req, &args)
		if err := s.api.Rename(args.Ref, args.NewName); err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(nil)

	case "adjust":
		var args struct {
			Ref     string
			Command *string
			Name    *string
		}
		wire.DecodeArgs(req, &args)
		err := s.api.Adjust(args.Ref, controlapi.AdjustRequest{Command: args.Command, Name: args.Name})
		if err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(nil)

	case "logs":
		var args struct {
			Ref    string
			Stream logstore.Stream
			Lines  int
		}
		wire.DecodeArgs(req, &args)
		if args.Stream == "" {
			args.Stream = logstore.StreamOut
		}
		lines, err := s.api.Logs(args.Ref, args.Stream, args.Lines)
		if err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(lines)

	case "save":
		n, err := s.api.Save()
		if err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(n)

	case "restore":
		n, err := s.api.Restore()
		if err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(n)

	case "metrics":
		return wire.Ok(s.api.Metrics())

	case "reset":
		if err := s.api.Reset(); err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(nil)

	case "export":
		var args struct{ Path string }
		wire.DecodeArgs(req, &args)
		if err := s.api.Export(args.Path); err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(nil)

	case "import":
		var args struct{ Path string }
		wire.DecodeArgs(req, &args)
		n, err := s.api.Import(args.Path)
		if err != nil {
			return wire.Fail(err)
		}
		return wire.Ok(n)

	case "servers":
		return wire.Ok(s.peer.Servers())

	case "ping":
		return wire.Ok(nil)

	default:
		return wire.Fail(controlapi.ErrInvalidArgs)
	}
}
