package models

import "time"

// TurnStatus is the terminal outcome of one request/response cycle.
type TurnStatus string

const (
	// TurnSuccess indicates every dispatched handler succeeded.
	TurnSuccess TurnStatus = "success"
	// TurnPartialSuccess indicates at least one handler succeeded and at
	// least one failed or was skipped.
	TurnPartialSuccess TurnStatus = "partial_success"
	// TurnFailed indicates all dispatched handlers failed.
	TurnFailed TurnStatus = "failed"
	// TurnClarification indicates the turn asked the user to disambiguate.
	TurnClarification TurnStatus = "clarification"
	// TurnRejected indicates no capability was confident enough to act.
	TurnRejected TurnStatus = "rejected"
	// TurnErrored indicates the turn failed before or outside handler
	// execution (e.g. the classifier was unusable).
	TurnErrored TurnStatus = "errored"
)

// Valid returns true if the status is a known value.
func (s TurnStatus) Valid() bool {
	switch s {
	case TurnSuccess, TurnPartialSuccess, TurnFailed, TurnClarification, TurnRejected, TurnErrored:
		return true
	default:
		return false
	}
}

// RoutingDecision is the recorded summary of the router's plan for a turn.
type RoutingDecision struct {
	// Kind is the plan variant ("single", "sequential", "parallel",
	// "clarify", "reject").
	Kind string `json:"kind"`
	// Capabilities lists the capabilities involved, in plan order.
	Capabilities []string `json:"capabilities,omitempty"`
}

// Turn records one request/response cycle. A turn is created by the
// controller at the end of a processing cycle and is immutable once
// appended to the session history.
type Turn struct {
	// ID is the unique turn identifier.
	ID string `json:"id"`
	// Input is the raw user text.
	Input string `json:"input"`
	// Timestamp is when the turn started.
	Timestamp time.Time `json:"timestamp"`
	// Candidates are the resolved intent candidates, confidence-sorted.
	Candidates []IntentCandidate `json:"candidates,omitempty"`
	// Routing is the routing decision taken.
	Routing RoutingDecision `json:"routing"`
	// Results holds one execution result per handler invocation.
	Results []ExecutionResult `json:"results,omitempty"`
	// Response is the final synthesized user-facing message.
	Response string `json:"response"`
	// Status is the turn outcome.
	Status TurnStatus `json:"status"`
	// Latency is the total processing time for the turn.
	Latency time.Duration `json:"latency"`
}
