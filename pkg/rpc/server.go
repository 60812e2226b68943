// Package rpc is a small JSON-over-TCP RPC layer for service-to-service
// calls inside the platform.
//
// Each connection carries newline-delimited JSON. A request names a
// "Service.Method", carries its params and optionally the caller's deadline
// and request ID; the response carries either a result or a coded error.
// Error codes round-trip pkg/errors sentinels, so errors.Is keeps working
// on the caller's side.
//
//	s := rpc.NewServer()
//	rpc.Handle(s, "Forecast.Predict", func(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
//	    ...
//	})
//	go s.Serve(ln)
//
//	c, _ := rpc.Dial(ctx, "localhost:9100")
//	var resp PredictResponse
//	err := c.Call(ctx, "Forecast.Predict", PredictRequest{CompanyID: 7}, &resp)
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/logger"
)

// ErrServerClosed is returned by Serve after Stop.
var ErrServerClosed = errors.New("rpc: server closed")

// HandlerFunc processes the raw params of one request.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Request is the wire format of a call.
type Request struct {
	ID         string          `json:"id"`
	Method     string          `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	DeadlineMs int64           `json:"deadline_ms,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
}

// Response is the wire format of a reply.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

type Server struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	connMu   sync.Mutex
	conns    map[net.Conn]struct{}
	listener net.Listener
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   slog.Default().With("component", "rpc-server"),
	}
}

// Register adds a handler for method, replacing any previous one.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Handle registers a typed handler. Params that do not decode into P are
// rejected as invalid input before fn runs.
func Handle[P, R any](s *Server, method string, fn func(ctx context.Context, params P) (R, error)) {
	s.Register(method, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params P
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, fmt.Errorf("%w: decoding params: %v", apperrors.ErrInvalidInput, err)
			}
		}
		return fn(ctx, params)
	})
}

// Methods lists the registered method names.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	return names
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called, then returns
// ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.connMu.Lock()
	if s.closed {
		s.connMu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.connMu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accepting: %w", err)
		}
		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// isClosed reads the flag Stop sets before it closes the listener, so an
// Accept failure caused by Stop is always reported as ErrServerClosed.
func (s *Server) isClosed() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.closed
}

func (s *Server) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			s.logger.Warn("writing response", "method", req.Method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	start := time.Now()
	ctx := s.ctx
	if req.RequestID != "" {
		ctx = logger.WithRequestID(ctx, req.RequestID)
	}
	if req.DeadlineMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, time.UnixMilli(req.DeadlineMs))
		defer cancel()
	}
	log := logger.FromContext(ctx)

	s.mu.RLock()
	handler, ok := s.handlers[req.Method]
	s.mu.RUnlock()
	if !ok {
		return Response{ID: req.ID, Error: &Error{Code: CodeUnimplemented, Message: "unknown method " + req.Method}}
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		rpcErr := toError(err)
		log.Warn("rpc call failed",
			"method", req.Method,
			"code", rpcErr.Code,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return Response{ID: req.ID, Error: rpcErr}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		log.Error("encoding rpc result", "method", req.Method, "error", err)
		return Response{ID: req.ID, Error: &Error{Code: CodeInternal, Message: "encoding result"}}
	}
	log.Debug("rpc call served", "method", req.Method, "duration_ms", time.Since(start).Milliseconds())
	return Response{ID: req.ID, Result: raw}
}

// Stop closes the listener and every open connection, cancels in-flight
// handlers and waits for them to return or for ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	s.connMu.Lock()
	s.closed = true
	if s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("rpc server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
