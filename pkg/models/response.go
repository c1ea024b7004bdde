package models

import "time"

// ResponseKind is the machine-readable classification of a response.
type ResponseKind string

const (
	// ResponseSuccess indicates the request was fully handled.
	ResponseSuccess ResponseKind = "success"
	// ResponsePartialSuccess indicates some sub-tasks succeeded and some
	// failed; the message names both.
	ResponsePartialSuccess ResponseKind = "partial_success"
	// ResponseClarification asks the user to disambiguate between
	// competing capabilities.
	ResponseClarification ResponseKind = "clarification"
	// ResponseRejected indicates no capability was confident enough to act.
	ResponseRejected ResponseKind = "rejected"
	// ResponseError indicates the turn failed outside handler execution.
	ResponseError ResponseKind = "error"
)

// Response is the single user-facing result of processing a request.
// Every call to the controller produces exactly one Response; errors are
// carried inside it rather than thrown past the boundary.
type Response struct {
	// SessionID identifies the session the turn belongs to.
	SessionID string `json:"session_id"`
	// TurnID identifies the recorded turn.
	TurnID string `json:"turn_id"`
	// Kind classifies the outcome.
	Kind ResponseKind `json:"kind"`
	// Message is the human-readable response text.
	Message string `json:"message"`
	// ErrorKind is a machine-readable error tag when Kind is
	// ResponseError (e.g. "classification_error", "session_busy").
	ErrorKind string `json:"error_kind,omitempty"`
	// Results exposes per-handler outcomes for diagnostics.
	Results []ExecutionResult `json:"results,omitempty"`
}

// SessionSummary is the operator/test introspection view of a session.
type SessionSummary struct {
	// SessionID identifies the session.
	SessionID string `json:"session_id"`
	// TurnCount is the number of completed turns.
	TurnCount int `json:"turn_count"`
	// LastIntent is the top capability of the most recent turn, if any.
	LastIntent string `json:"last_intent,omitempty"`
	// PendingConfirmation indicates a confirmation is parked.
	PendingConfirmation bool `json:"pending_confirmation"`
	// LastStatus is the outcome of the most recent turn.
	LastStatus TurnStatus `json:"last_status,omitempty"`
	// LastLatency is the total processing time of the most recent turn.
	LastLatency time.Duration `json:"last_latency,omitempty"`
}
