// Package server drives the handler pipeline over HTTP/1.1 connections.
//
// Every accepted connection gets the next id from a Counter and its own
// pipeline, built once when the connection is accepted:
//
//	outer layers -> logging(conn id) -> inner layers -> timeout -> base
//
// Outer layers see every call before it is logged (request ids, tracing).
// Inner layers run inside the logged span (security headers, rate limits).
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcncl/webserver/internal/config"
	werrors "github.com/mcncl/webserver/internal/errors"
	"github.com/mcncl/webserver/internal/logging"
	"github.com/mcncl/webserver/internal/metrics"
	logmw "github.com/mcncl/webserver/internal/middleware/logging"
	"github.com/mcncl/webserver/internal/middleware/request"
	"github.com/mcncl/webserver/internal/service"
)

// Config configures a Server.
type Config struct {
	Addr string
	Base service.Handler

	Logger  *slog.Logger
	Counter *Counter

	// Outer layers wrap the logging decorator, inner layers sit between
	// logging and the timeout guard. Nil entries are skipped.
	OuterLayers []service.Layer
	InnerLayers []service.Layer

	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxRequestSize int64

	// Gatherer enables the metrics endpoint at MetricsPath.
	Gatherer    prometheus.Gatherer
	MetricsPath string
}

// Server accepts connections and answers every request through the pipeline.
type Server struct {
	cfg     Config
	logger  *slog.Logger
	counter *Counter
	health  *HealthCheck
	mux     *http.ServeMux
	srv     *http.Server

	mu       sync.Mutex
	listener net.Listener
}

type connKey struct{}

type connState struct {
	id      uint64
	handler service.Handler
}

// New validates cfg and builds a Server. It does not listen.
func New(cfg Config) (*Server, error) {
	if cfg.Base == nil {
		return nil, werrors.NewValidationError("server: base handler is required")
	}
	if err := config.ValidateAddress(cfg.Addr); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Counter == nil {
		cfg.Counter = NewCounter()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		counter: cfg.Counter,
		health:  NewHealthCheck(),
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("/health", s.health.HealthHandler)
	s.mux.HandleFunc("/ready", s.health.ReadyHandler)
	if cfg.Gatherer != nil {
		s.mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	s.mux.HandleFunc("/", s.serveCall)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ConnContext:  s.connContext,
		ErrorLog:     slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelWarn),
	}

	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Health returns the server's health state.
func (s *Server) Health() *HealthCheck {
	return s.health
}

// Addr returns the bound address once the server is serving, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return werrors.NewTransportError(fmt.Sprintf("listen on %s", s.cfg.Addr), err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	tracked := &trackedListener{Listener: ln, counter: s.counter, logger: s.logger}

	s.mu.Lock()
	s.listener = tracked
	s.mu.Unlock()

	s.logger.Info("listening", "addr", ln.Addr().String())
	s.health.SetReady(true)

	err := s.srv.Serve(tracked)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return werrors.NewTransportError("serve", err)
}

// Shutdown stops accepting connections and waits for in-flight calls.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) connContext(ctx context.Context, c net.Conn) context.Context {
	var id uint64
	if tc, ok := c.(*trackedConn); ok {
		id = tc.id
	} else {
		id = s.counter.Next()
	}
	return context.WithValue(ctx, connKey{}, s.newConnState(id))
}

func (s *Server) newConnState(id uint64) *connState {
	layers := make([]service.Layer, 0, len(s.cfg.OuterLayers)+len(s.cfg.InnerLayers)+2)
	layers = append(layers, s.cfg.OuterLayers...)
	layers = append(layers, logmw.WithConnection(id, s.logger))
	layers = append(layers, s.cfg.InnerLayers...)
	layers = append(layers, request.WithTimeout(s.cfg.RequestTimeout))

	return &connState{
		id:      id,
		handler: service.Stack(s.cfg.Base, layers...),
	}
}

func (s *Server) serveCall(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	cs, ok := r.Context().Value(connKey{}).(*connState)
	if !ok {
		// handler mounted outside Serve, e.g. under httptest
		cs = s.newConnState(s.counter.Next())
	}

	if s.cfg.MaxRequestSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)
	}

	req, err := service.FromHTTP(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge,
				werrors.NewValidationError("request body too large"), start)
			return
		}
		s.writeError(w, r, 0, werrors.NewValidationError("unreadable request body"), start)
		return
	}

	if err := cs.handler.Ready(r.Context()); err != nil {
		if s.clientGone(r, err) {
			return
		}
		if !werrors.IsRateLimitError(err) {
			err = werrors.NewRateLimitError("handler not ready", err)
		}
		metrics.RecordRateLimit("global")
		s.writeError(w, r, 0, err, start)
		return
	}

	resp, err := cs.handler.Call(r.Context(), req)
	if err != nil {
		if s.clientGone(r, err) {
			return
		}
		switch {
		case werrors.IsTimeoutError(err):
			metrics.RecordTimeout()
		case werrors.IsRateLimitError(err):
			metrics.RecordRateLimit("ip")
		}
		s.writeError(w, r, 0, err, start)
		return
	}
	if resp == nil {
		resp = service.NewResponse(http.StatusNoContent, nil)
	}

	if err := resp.WriteTo(w); err != nil {
		// the tracked connection logs the underlying failure
		metrics.RecordError("transport")
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	metrics.RecordRequest(r.Method, status, time.Since(start))
	metrics.RecordResponseSize(len(resp.Body))
}

// clientGone reports whether err only reflects the client abandoning the
// request. Nobody is left to answer, so it is counted and dropped.
func (s *Server) clientGone(r *http.Request, err error) bool {
	if r.Context().Err() == nil || !errors.Is(err, r.Context().Err()) {
		return false
	}
	metrics.RecordError("canceled")
	s.logger.Debug("client went away", "method", r.Method, "route", r.URL.Path, "error", err)
	return true
}

// writeError answers with the JSON error body. A zero status is derived
// from err.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error, start time.Time) {
	if status == 0 {
		status = werrors.StatusCode(err)
	}
	body := werrors.ToErrorResponse(err)
	metrics.RecordError(body.ErrorType)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		s.logger.Debug("failed to write error response", "error", encErr)
	}

	metrics.RecordRequest(r.Method, status, time.Since(start))
}
