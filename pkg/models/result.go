package models

import "time"

// ErrorKind classifies a handler or classifier failure for retry purposes.
type ErrorKind string

const (
	// ErrorKindNone indicates no error.
	ErrorKindNone ErrorKind = ""
	// ErrorKindTransient indicates a retryable failure (rate limit,
	// temporary unavailability).
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindTimeout indicates the call exceeded its deadline.
	// Timeouts are retried like transient failures.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindPermanent indicates a non-retryable failure (invalid
	// parameters, capability-internal business error).
	ErrorKindPermanent ErrorKind = "permanent"
)

// Retryable reports whether a failure of this kind should be retried.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTransient || k == ErrorKindTimeout
}

// HandlerOutput is what a capability handler returns on success. The core
// treats Data and MemoryHints as opaque key/value payloads.
type HandlerOutput struct {
	// Response is the handler's user-facing text.
	Response string `json:"response"`
	// Data holds output parameters later handlers in a sequential chain
	// may reference (e.g. "project_id" -> "42").
	Data map[string]string `json:"data,omitempty"`
	// MemoryHints is the side-channel of entity-memory updates the
	// synthesizer copies into the session (e.g. "last_project_id" -> "42").
	MemoryHints map[string]string `json:"memory_hints,omitempty"`
}

// ExecutionResult records one handler invocation.
type ExecutionResult struct {
	// Capability is the handler that was invoked.
	Capability string `json:"capability"`
	// Success indicates the handler returned without error.
	Success bool `json:"success"`
	// Skipped indicates the handler was never invoked because an earlier
	// step in a sequential chain failed permanently.
	Skipped bool `json:"skipped,omitempty"`
	// Output is the handler output, nil on failure.
	Output *HandlerOutput `json:"output,omitempty"`
	// ErrorKind classifies the failure, empty on success.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// ErrorMessage is the failure message, empty on success.
	ErrorMessage string `json:"error_message,omitempty"`
	// Attempts is the number of invocation attempts, retries included.
	Attempts int `json:"attempts"`
	// Latency is the wall time across all attempts.
	Latency time.Duration `json:"latency"`
}
