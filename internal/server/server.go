// Package server exposes the calculator over connect RPC and the language
// server protocol.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/rthome/SpeedCalc/internal/history"
	"github.com/rthome/SpeedCalc/internal/vm"
)

var log = commonlog.GetLogger("speedcalc.server")

const (
	sweepInterval = 5 * time.Minute
	sessionTTL    = 30 * time.Minute
)

// Server hosts the calculator service around a template VM. Each session
// evaluates on its own duplicate.
type Server struct {
	worker   *Worker
	sessions *SessionStore
	mux      *http.ServeMux

	stopSweeper func()
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	history    *history.Store
	sessionTTL time.Duration
}

// WithHistory records every evaluation in store.
func WithHistory(store *history.Store) Option {
	return func(c *serverConfig) { c.history = store }
}

// WithSessionTTL sets how long idle sessions are kept.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *serverConfig) { c.sessionTTL = ttl }
}

// New creates a Server. v is the template for new sessions and must not be
// used by the caller afterwards.
func New(v *vm.VM, opts ...Option) *Server {
	cfg := &serverConfig{sessionTTL: sessionTTL}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		worker:   NewWorker(v),
		sessions: NewSessionStore(),
		mux:      http.NewServeMux(),
	}

	svc := NewEvalService(s.worker, s.sessions, cfg.history)
	s.mux.Handle(EvaluateProcedure, connect.NewUnaryHandler(EvaluateProcedure, svc.Evaluate))
	s.mux.Handle(CheckProcedure, connect.NewUnaryHandler(CheckProcedure, svc.Check))

	s.stopSweeper = s.sessions.StartSweeper(sweepInterval, cfg.sessionTTL)
	return s
}

// Handler returns the HTTP handler serving the RPCs.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Sessions returns the live session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Noticef("calculator server listening on %s", ln.Addr())
	log.Infof("  evaluate: http://%s%s", ln.Addr(), EvaluateProcedure)
	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts down the session sweeper and the VM worker.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.worker.Stop()
}
