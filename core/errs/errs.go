// Package errs defines the dispatch fabric's error taxonomy.
//
// Each kind is a distinct type rather than a sentinel value, following the
// named-error convention in plantd's core/mdp/errors.go. The types that
// carry an underlying error (ConnectFailure, DecodeFailure, CommandRuntime,
// UploadFailure) expose it via Unwrap so callers can still errors.Is/As
// through to the driver error; the others carry only their own detail.
package errs

import "fmt"

// ConnectFailureError means the broker was unreachable or rejected auth.
// Fatal at node startup.
type ConnectFailureError struct {
	Cause error
}

func (e *ConnectFailureError) Error() string {
	return fmt.Sprintf("broker connect failure: %v", e.Cause)
}

func (e *ConnectFailureError) Unwrap() error { return e.Cause }

// DecodeFailureError means a payload could not be interpreted. Never fatal
// to the enclosing loop.
type DecodeFailureError struct {
	Kind  string
	Cause error
}

func (e *DecodeFailureError) Error() string {
	return fmt.Sprintf("decode failure (%s): %v", e.Kind, e.Cause)
}

func (e *DecodeFailureError) Unwrap() error { return e.Cause }

// NoCorrelationIDError means a request arrived with no msgUUID, so there is
// no response channel to reply on. Never surfaced to a user.
type NoCorrelationIDError struct{}

func (e *NoCorrelationIDError) Error() string { return "request has no correlation id" }

// CommandRuntimeError wraps a panic/error raised inside a module's lifecycle
// hook (Hook names which: init, open, run, or close). A run-hook error is
// converted to Response.error and still delivered to the user.
type CommandRuntimeError struct {
	Module string
	Hook   string
	Cause  error
}

func (e *CommandRuntimeError) Error() string {
	return fmt.Sprintf("runtime error in %s.%s: %v", e.Module, e.Hook, e.Cause)
}

func (e *CommandRuntimeError) Unwrap() error { return e.Cause }

// UnknownCommandError means the endpoint has no worker registered for a
// command key. Logged; no response is sent.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command: %s", e.Command)
}

// TimeoutError means a broker pop returned nothing in time, or the
// endpoint's response wait elapsed.
type TimeoutError struct {
	Operation string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s", e.Operation)
}

// ProtocolViolationError means a worker's response uuid did not match the
// request uuid, or a module host state-machine rule was broken.
type ProtocolViolationError struct {
	Detail string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Detail)
}

// UploadFailureError means the blob store or database write failed while
// persisting a request or response.
type UploadFailureError struct {
	Cause error
}

func (e *UploadFailureError) Error() string {
	return fmt.Sprintf("upload failure: %v", e.Cause)
}

func (e *UploadFailureError) Unwrap() error { return e.Cause }
