package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// The runtime API version this client speaks.
const apiVersion = "2018-06-01"

// Headers of the next-invocation response.
const (
	headerRequestID       = "Lambda-Runtime-Aws-Request-Id"
	headerTraceID         = "Lambda-Runtime-Trace-Id"
	headerFunctionARN     = "Lambda-Runtime-Invoked-Function-Arn"
	headerDeadlineMS      = "Lambda-Runtime-Deadline-Ms"
	headerClientContext   = "Lambda-Runtime-Client-Context"
	headerCognitoIdentity = "Lambda-Runtime-Cognito-Identity"

	// Sent alongside error reports.
	headerFunctionErrorType = "Lambda-Runtime-Function-Error-Type"
)

// fallbackDeadline is applied when the host omits the deadline header.
const fallbackDeadline = 3 * time.Second

// HTTPClient can perform any http request.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Invocation is one unit of work retrieved from the next-invocation
// endpoint, paired with exactly one response or error report.
type Invocation struct {
	RequestID          string
	TraceID            string
	InvokedFunctionARN string
	DeadlineMS         int64
	ClientContext      json.RawMessage
	Identity           json.RawMessage
	Payload            json.RawMessage
}

// Client wraps the HTTP calls against the runtime API.
type Client struct {
	baseURL string
	client  HTTPClient
	logger  *slog.Logger
}

// NewClient creates a Client with a default http client. runtimeAPI is the
// host:port of the runtime API endpoint.
func NewClient(runtimeAPI string, logger *slog.Logger) *Client {
	return NewClientWithHTTPClient(runtimeAPI, logger, &http.Client{})
}

// NewClientWithHTTPClient creates a Client. The httpClient must implement
// the HTTPClient interface.
func NewClientWithHTTPClient(runtimeAPI string, logger *slog.Logger, httpClient HTTPClient) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://%s/%s/runtime", runtimeAPI, apiVersion),
		client:  httpClient,
		logger:  logger,
	}
}

// NextInvocation blocks on the long-poll next-invocation endpoint until the
// host delivers an invocation, then translates headers and body into an
// Invocation. Malformed host data surfaces as a *ProtocolError carrying the
// request id when one was extracted.
func (c *Client) NextInvocation(ctx context.Context) (*Invocation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/invocation/next", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling for next invocation: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Error("error closing the response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("next invocation failed with status code: %d", resp.StatusCode)
	}

	requestID := resp.Header.Get(headerRequestID)
	if requestID == "" {
		// Without a request id no correlated report can ever be sent.
		return nil, &ProtocolError{Field: headerRequestID, Err: errors.New("header missing or empty")}
	}

	inv := &Invocation{
		RequestID:          requestID,
		TraceID:            resp.Header.Get(headerTraceID),
		InvokedFunctionARN: resp.Header.Get(headerFunctionARN),
	}

	if raw := resp.Header.Get(headerDeadlineMS); raw != "" {
		deadline, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return nil, &ProtocolError{RequestID: requestID, Field: headerDeadlineMS, Err: perr}
		}
		inv.DeadlineMS = deadline
	} else {
		inv.DeadlineMS = time.Now().Add(fallbackDeadline).UnixMilli()
	}

	if raw := resp.Header.Get(headerClientContext); raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, &ProtocolError{RequestID: requestID, Field: headerClientContext, Err: errors.New("invalid JSON")}
		}
		inv.ClientContext = json.RawMessage(raw)
	}

	if raw := resp.Header.Get(headerCognitoIdentity); raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, &ProtocolError{RequestID: requestID, Field: headerCognitoIdentity, Err: errors.New("invalid JSON")}
		}
		inv.Identity = json.RawMessage(raw)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProtocolError{RequestID: requestID, Field: "event payload", Err: err}
	}
	if !json.Valid(body) {
		return nil, &ProtocolError{RequestID: requestID, Field: "event payload", Err: errors.New("invalid JSON")}
	}
	inv.Payload = body

	return inv, nil
}

// PostResponse reports a successful handler result for the given request id.
func (c *Client) PostResponse(ctx context.Context, requestID string, result any) error {
	url := fmt.Sprintf("%s/invocation/%s/response", c.baseURL, requestID)
	return c.postJSON(ctx, url, result, nil)
}

// PostError reports a failed invocation for the given request id.
func (c *Client) PostError(ctx context.Context, requestID string, payload *ErrorPayload) error {
	url := fmt.Sprintf("%s/invocation/%s/error", c.baseURL, requestID)
	header := http.Header{headerFunctionErrorType: []string{payload.ErrorType}}
	return c.postJSON(ctx, url, payload, header)
}

// PostInitError reports a failure that occurred before the loop started.
func (c *Client) PostInitError(ctx context.Context, payload *ErrorPayload) error {
	header := http.Header{headerFunctionErrorType: []string{payload.ErrorType}}
	return c.postJSON(ctx, c.baseURL+"/init/error", payload, header)
}

// postJSON sends payload as the request body and waits for the request to
// complete. Strings and raw JSON are sent verbatim, everything else is
// marshaled. The response body is discarded: only completion or failure
// matters to callers.
func (c *Client) postJSON(ctx context.Context, url string, payload any, header http.Header) error {
	var body []byte
	switch p := payload.(type) {
	case string:
		body = []byte(p)
	case []byte:
		body = p
	case json.RawMessage:
		body = p
	default:
		marshaled, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling payload: %w", err)
		}
		body = marshaled
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for key, values := range header {
		req.Header[key] = values
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending POST request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Error("error closing the response body", "error", cerr)
		}
	}()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("POST request failed with status code: %d", resp.StatusCode)
	}
	return nil
}
