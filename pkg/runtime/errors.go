package runtime

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrMissingRuntimeAPI is returned when the runtime API address is absent
// from the configuration. It is the sole fatal startup condition.
var ErrMissingRuntimeAPI = errors.New("runtime API address is not configured (AWS_LAMBDA_RUNTIME_API)")

var errNilHandler = errors.New("handler must not be nil")

// ErrorPayload is the JSON error shape the runtime API expects, used for
// invocation errors and init errors alike.
type ErrorPayload struct {
	ErrorType    string   `json:"errorType"`
	ErrorMessage string   `json:"errorMessage"`
	StackTrace   []string `json:"stackTrace"`
}

// ProtocolError reports malformed data received from the runtime API during
// a poll. RequestID is empty when the violation made it impossible to
// correlate an error report with an invocation.
type ProtocolError struct {
	RequestID string
	Field     string
	Err       error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("runtime API protocol violation in %s: %v", e.Field, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// panicError wraps a value recovered from a handler panic together with the
// stack captured at the recovery point.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.value)
}

// errorPayload normalizes an arbitrary failure into the ErrorPayload shape.
// Errors report their concrete type name; a recovered non-error panic value
// becomes a generic "Error" whose message is the value's string
// representation.
func errorPayload(err error) *ErrorPayload {
	var pe *panicError
	if errors.As(err, &pe) {
		payload := &ErrorPayload{
			ErrorType:    "Error",
			ErrorMessage: fmt.Sprint(pe.value),
			StackTrace:   stackLines(pe.stack),
		}
		if cause, ok := pe.value.(error); ok {
			payload.ErrorType = errorType(cause)
			payload.ErrorMessage = cause.Error()
		}
		return payload
	}
	return &ErrorPayload{
		ErrorType:    errorType(err),
		ErrorMessage: err.Error(),
		StackTrace:   []string{},
	}
}

// errorType names an error by its concrete type, matching how the managed
// runtimes report errorType. Unnamed types fall back to "Error".
func errorType(err error) string {
	t := reflect.TypeOf(err)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return "Error"
}

// stackLines splits a captured stack into trimmed, non-empty lines.
func stackLines(stack []byte) []string {
	lines := []string{}
	for _, line := range strings.Split(string(stack), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
