// Package runtime implements the client side of the AWS Lambda runtime API:
// a loop that long-polls for the next invocation, dispatches it to a user
// handler, and reports the result or error back to the execution
// environment. It is the entry point of a provided-runtime bootstrap binary.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"time"
)

// Handler processes one invocation event and returns a JSON-serializable
// result. Returning an error, or panicking, reports the failure to the error
// endpoint for that invocation; neither terminates the process.
type Handler func(ctx *Context, event json.RawMessage) (any, error)

// TraceHook publishes the trace id of the current invocation for downstream
// tracing libraries. The default hook writes _X_AMZN_TRACE_ID into the
// process environment.
type TraceHook func(traceID string)

const traceIDEnvVar = "_X_AMZN_TRACE_ID"

// How long a best-effort init error report may take before it is abandoned.
const initErrorTimeout = 5 * time.Second

// Replaced in tests.
var exit = os.Exit

// Runtime owns the poll/dispatch/report cycle against the runtime API.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpClient HTTPClient
	client     *Client
	traceHook  TraceHook
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithTraceHook overrides how trace ids are published. Passing nil disables
// trace propagation.
func WithTraceHook(hook TraceHook) Option {
	return func(r *Runtime) {
		r.traceHook = hook
	}
}

// WithHTTPClient overrides the http client used for all runtime API calls.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(r *Runtime) {
		r.httpClient = httpClient
	}
}

// New builds a Runtime from an explicit configuration. It fails with
// ErrMissingRuntimeAPI when the runtime API address is absent.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if cfg.RuntimeAPI == "" {
		return nil, ErrMissingRuntimeAPI
	}
	r := &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpClient: &http.Client{},
		traceHook: func(traceID string) {
			os.Setenv(traceIDEnvVar, traceID)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client = NewClientWithHTTPClient(cfg.RuntimeAPI, logger, r.httpClient)
	return r, nil
}

// Serve runs the invocation cycle until ctx is cancelled or a protocol error
// without a usable request id makes correlated reporting impossible. Exactly
// one invocation is in flight at any time: the report for invocation N has
// completed (or failed) before the poll for invocation N+1 is issued.
func (r *Runtime) Serve(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.processNext(ctx, handler); err != nil {
			return err
		}
	}
}

func (r *Runtime) processNext(ctx context.Context, handler Handler) error {
	inv, err := r.client.NextInvocation(ctx)
	if err != nil {
		var perr *ProtocolError
		if errors.As(err, &perr) && perr.RequestID != "" {
			// Malformed host data with a known request id is treated like a
			// handler failure: report it against the invocation and keep
			// serving.
			r.logger.Warn("reporting protocol error as invocation error", "request_id", perr.RequestID, "error", err)
			if rerr := r.client.PostError(ctx, perr.RequestID, errorPayload(err)); rerr != nil {
				r.logger.Warn("failed to deliver error report", "request_id", perr.RequestID, "error", rerr)
			}
			return nil
		}
		return err
	}

	if inv.TraceID != "" && r.traceHook != nil {
		r.traceHook(inv.TraceID)
	}

	ictx := r.newContext(inv)
	r.logger.Debug("dispatching invocation", "request_id", inv.RequestID, "remaining", ictx.RemainingTime())

	result, herr := invoke(handler, ictx, inv.Payload)

	// Report delivery is fire-and-forget: a failed POST is logged and
	// dropped so that a single invocation can never stall the loop.
	if herr != nil {
		r.logger.Error("handler failed", "request_id", inv.RequestID, "error", herr)
		if rerr := r.client.PostError(ctx, inv.RequestID, errorPayload(herr)); rerr != nil {
			r.logger.Warn("failed to deliver error report", "request_id", inv.RequestID, "error", rerr)
		}
		return nil
	}
	if rerr := r.client.PostResponse(ctx, inv.RequestID, result); rerr != nil {
		r.logger.Warn("failed to deliver response", "request_id", inv.RequestID, "error", rerr)
	}
	return nil
}

func (r *Runtime) newContext(inv *Invocation) *Context {
	return &Context{
		RequestID:          inv.RequestID,
		InvokedFunctionARN: inv.InvokedFunctionARN,
		TraceID:            inv.TraceID,
		DeadlineMS:         inv.DeadlineMS,
		FunctionName:       r.cfg.FunctionName,
		FunctionVersion:    r.cfg.FunctionVersion,
		MemoryLimitMB:      r.cfg.MemoryLimitMB,
		LogGroupName:       r.cfg.LogGroupName,
		LogStreamName:      r.cfg.LogStreamName,
		ClientContext:      inv.ClientContext,
		Identity:           inv.Identity,
	}
}

// invoke calls the handler, converting a panic into an error carrying the
// stack captured at the recovery point.
func invoke(handler Handler, ictx *Context, event json.RawMessage) (result any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v, stack: debug.Stack()}
		}
	}()
	return handler(ictx, event)
}

// Start reads the environment configuration and serves invocations with the
// given handler forever. It never returns: on the single fatal startup
// condition (missing runtime API address) it reports an init error when
// possible and terminates the process with a non-zero status.
func Start(handler Handler) {
	StartWithConfig(ConfigFromEnv(), slog.Default(), handler)
}

// StartWithConfig is Start with an explicit configuration and logger.
func StartWithConfig(cfg Config, logger *slog.Logger, handler Handler, opts ...Option) {
	if handler == nil {
		reportInitError(cfg, logger, errNilHandler)
		exit(1)
		return
	}
	r, err := New(cfg, logger, opts...)
	if err != nil {
		reportInitError(cfg, logger, err)
		exit(1)
		return
	}
	if err := r.Serve(context.Background(), handler); err != nil {
		logger.Error("runtime loop stopped", "error", err)
		exit(1)
	}
}

// reportInitError makes a best-effort report to the init error endpoint.
// When the runtime API address itself is missing no report is possible and
// the failure degrades to a diagnostic on the standard error stream.
func reportInitError(cfg Config, logger *slog.Logger, cause error) {
	fmt.Fprintf(os.Stderr, "runtime initialization failed: %v\n", cause)
	logger.Error("runtime initialization failed", "error", cause)
	if cfg.RuntimeAPI == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), initErrorTimeout)
	defer cancel()
	if rerr := NewClient(cfg.RuntimeAPI, logger).PostInitError(ctx, errorPayload(cause)); rerr != nil {
		logger.Warn("failed to report init error", "error", rerr)
	}
}
