package models

// IntentCandidate is the resolver's belief that a request maps to a
// capability with the given parameters. Candidates are produced per turn
// and persist only inside the Turn record.
type IntentCandidate struct {
	// Capability is the registered capability name.
	Capability string `json:"capability"`
	// Parameters maps declared parameter names to extracted values.
	Parameters map[string]string `json:"parameters,omitempty"`
	// Confidence is the resolver's certainty in [0,1].
	Confidence float64 `json:"confidence"`
	// RequiresCollaboration is set when the resolver believes several
	// capabilities must jointly satisfy the request.
	RequiresCollaboration bool `json:"requires_collaboration,omitempty"`
}
