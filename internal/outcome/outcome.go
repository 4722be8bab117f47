// Package outcome guarantees a job body always yields a value. Failures and
// panics become self-describing error payloads so every completion flows
// through the same path, and a returned payload is recognisable afterwards.
package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"tagflow/internal/services"
)

// SerializedError is the structured payload standing in for a failed job body.
type SerializedError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

func (e *SerializedError) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// Result is the normalized outcome of a job body.
type Result struct {
	Value any
	Err   *SerializedError
}

// Failed reports whether the body ended in an error.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Payload returns what the queue stores as the job result: the value on
// success, the serialized error otherwise.
func (r Result) Payload() any {
	if r.Err != nil {
		return r.Err
	}
	return r.Value
}

// Func is a job body.
type Func func(ctx context.Context) (any, error)

// Capture runs fn and converts a returned error or a panic into a Result. It
// never panics itself.
func Capture(ctx context.Context, fn Func) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: &SerializedError{
				Type:    "Panic",
				Message: fmt.Sprint(r),
				Trace:   string(debug.Stack()),
			}}
		}
	}()
	value, err := fn(ctx)
	if err != nil {
		return Result{Err: FromError(err)}
	}
	return Result{Value: value}
}

// FromError serializes err. An error that already is a payload passes through.
func FromError(err error) *SerializedError {
	if err == nil {
		return nil
	}
	var serialized *SerializedError
	if errors.As(err, &serialized) {
		return serialized
	}
	return &SerializedError{
		Type:    services.Classify(err),
		Message: err.Error(),
		Trace:   chain(err),
	}
}

// chain lists the wrapped causes, outermost first.
func chain(err error) string {
	var parts []string
	for cur := errors.Unwrap(err); cur != nil; cur = errors.Unwrap(cur) {
		parts = append(parts, cur.Error())
	}
	return strings.Join(parts, "\n")
}

// DetectError inspects a stored job result and returns the error payload it
// carries, if any. Detection is structural: any object with string "type" and
// "message" fields counts.
func DetectError(raw json.RawMessage) (*SerializedError, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, false
	}
	typeRaw, hasType := probe["type"]
	msgRaw, hasMessage := probe["message"]
	if !hasType || !hasMessage {
		return nil, false
	}
	out := &SerializedError{}
	if json.Unmarshal(typeRaw, &out.Type) != nil || json.Unmarshal(msgRaw, &out.Message) != nil {
		return nil, false
	}
	if traceRaw, ok := probe["trace"]; ok {
		_ = json.Unmarshal(traceRaw, &out.Trace)
	}
	return out, true
}
