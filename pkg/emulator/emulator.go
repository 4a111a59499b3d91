// Package emulator implements the host side of the Lambda runtime API for
// local development: it accepts events on the function invoke endpoint and
// hands them, one at a time, to a runtime client polling the next-invocation
// endpoint.
package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config describes the emulated execution environment. The invocation
// metadata is surfaced to the runtime through the next-invocation response
// headers; the function's own static metadata comes from the environment the
// bootstrap binary is started with, not from the emulator.
type Config struct {
	Address            string
	FunctionName       string
	InvokedFunctionARN string
	// FunctionTimeout becomes the deadline communicated to the runtime for
	// every invocation. The emulator does not enforce it.
	FunctionTimeout time.Duration
}

// invocationResult is the terminal report for one invocation.
type invocationResult struct {
	payload []byte
	isError bool
}

// pendingInvocation pairs an enqueued event with the channel its report is
// delivered on.
type pendingInvocation struct {
	id      string
	payload []byte
	done    chan invocationResult
}

// Server queues client invocations and serves the runtime API endpoints.
type Server struct {
	cfg    Config
	logger *slog.Logger

	queue chan *pendingInvocation

	mu       sync.Mutex
	inFlight map[string]*pendingInvocation
}

// New creates an emulator Server.
func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.FunctionTimeout <= 0 {
		cfg.FunctionTimeout = 30 * time.Second
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan *pendingInvocation),
		inFlight: make(map[string]*pendingInvocation),
	}
}

// Handler returns the combined runtime-facing and client-facing routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /2015-03-31/functions/function/invocations", s.handleInvoke)
	mux.HandleFunc("GET /2018-06-01/runtime/invocation/next", s.handleNext)
	mux.HandleFunc("POST /2018-06-01/runtime/invocation/{requestID}/response", s.handleResponse)
	mux.HandleFunc("POST /2018-06-01/runtime/invocation/{requestID}/error", s.handleError)
	mux.HandleFunc("POST /2018-06-01/runtime/init/error", s.handleInitError)
	return mux
}

// Run serves the emulator until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Address,
		Handler: s.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("emulator listening", "address", s.cfg.Address, "function", s.cfg.FunctionName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// handleInvoke enqueues an event for the polling runtime and blocks until
// the paired response or error report arrives, mirroring a synchronous
// function invocation.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	pending := &pendingInvocation{
		id:      uuid.NewString(),
		payload: body,
		done:    make(chan invocationResult, 1),
	}
	s.logger.Debug("queueing invocation", "request_id", pending.id)

	select {
	case s.queue <- pending:
	case <-r.Context().Done():
		return
	}

	select {
	case result := <-pending.done:
		w.Header().Set("Content-Type", "application/json")
		if result.isError {
			w.Header().Set("X-Amz-Function-Error", "Unhandled")
		}
		w.WriteHeader(http.StatusOK)
		if _, werr := w.Write(result.payload); werr != nil {
			s.logger.Error("error writing invocation result", "request_id", pending.id, "error", werr)
		}
	case <-r.Context().Done():
		s.abandon(pending.id)
	}
}

// handleNext is the long-poll endpoint: it blocks until an event is queued,
// then delivers it with the invocation metadata headers.
func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	var pending *pendingInvocation
	select {
	case pending = <-s.queue:
	case <-r.Context().Done():
		return
	}

	s.mu.Lock()
	s.inFlight[pending.id] = pending
	s.mu.Unlock()

	deadline := time.Now().Add(s.cfg.FunctionTimeout).UnixMilli()

	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("Lambda-Runtime-Aws-Request-Id", pending.id)
	header.Set("Lambda-Runtime-Deadline-Ms", strconv.FormatInt(deadline, 10))
	header.Set("Lambda-Runtime-Trace-Id", fmt.Sprintf("Root=1-%x-%s;Sampled=0", time.Now().Unix(), pending.id))
	if s.cfg.InvokedFunctionARN != "" {
		header.Set("Lambda-Runtime-Invoked-Function-Arn", s.cfg.InvokedFunctionARN)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pending.payload); err != nil {
		s.logger.Error("error writing invocation payload", "request_id", pending.id, "error", err)
	}
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	s.completeInvocation(w, r, false)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	s.completeInvocation(w, r, true)
}

func (s *Server) completeInvocation(w http.ResponseWriter, r *http.Request, isError bool) {
	requestID := r.PathValue("requestID")

	s.mu.Lock()
	pending, ok := s.inFlight[requestID]
	delete(s.inFlight, requestID)
	s.mu.Unlock()

	if !ok {
		http.Error(w, "invocation not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	s.logger.Debug("invocation completed", "request_id", requestID, "is_error", isError)
	pending.done <- invocationResult{payload: body, isError: isError}

	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "OK"}); err != nil {
		s.logger.Error("error writing status response", "error", err)
	}
}

// handleInitError records a pre-loop failure reported by the runtime. The
// emulator keeps serving so a supervisor restart can be simulated manually.
func (s *Server) handleInitError(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	s.logger.Error("runtime reported init error", "payload", string(body))
	w.WriteHeader(http.StatusAccepted)
}

// abandon drops an in-flight invocation whose client went away so a late
// report does not block on the done channel.
func (s *Server) abandon(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, requestID)
}
