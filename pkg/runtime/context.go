package runtime

import (
	"encoding/json"
	"time"
)

// Context carries the metadata of a single invocation. It is constructed
// immediately before the handler is called and must not be retained after
// the handler returns; exactly one Context is live at any time.
type Context struct {
	RequestID          string
	InvokedFunctionARN string
	TraceID            string

	// DeadlineMS is the absolute wall-clock deadline in epoch milliseconds.
	// When the host omits the deadline header it defaults to now plus three
	// seconds.
	DeadlineMS int64

	FunctionName    string
	FunctionVersion string
	MemoryLimitMB   string
	LogGroupName    string
	LogStreamName   string

	// ClientContext and Identity hold the raw JSON carried by the
	// Lambda-Runtime-Client-Context and Lambda-Runtime-Cognito-Identity
	// headers, when present.
	ClientContext json.RawMessage
	Identity      json.RawMessage
}

// Deadline returns the invocation deadline as wall-clock time.
func (c *Context) Deadline() time.Time {
	return time.UnixMilli(c.DeadlineMS)
}

// RemainingTime reports how long the handler has until the deadline. It is
// computed fresh on every call and never negative. The deadline is advisory:
// the loop never aborts a handler that overruns it, the host enforces the
// function timeout externally.
func (c *Context) RemainingTime() time.Duration {
	if remaining := time.Until(c.Deadline()); remaining > 0 {
		return remaining
	}
	return 0
}
