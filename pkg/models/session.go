package models

import "time"

// PendingConfirmation is a dispatch that is parked until the user confirms
// or declines it. Only one may exist per session at a time.
type PendingConfirmation struct {
	// Capability is the capability awaiting confirmation.
	Capability string `json:"capability"`
	// Parameters are the parameters the dispatch would run with.
	Parameters map[string]string `json:"parameters,omitempty"`
	// Question is the confirmation question shown to the user.
	Question string `json:"question"`
	// CreatedAt is when the confirmation was requested.
	CreatedAt time.Time `json:"created_at"`
}

// Session holds per-conversation state: the ordered turn history, the
// entity-memory map, and an optional pending confirmation. Sessions are
// created on first request for an id and mutated only by the controller
// after a turn completes.
type Session struct {
	// ID is the opaque session identifier.
	ID string `json:"id"`
	// Turns is the ordered, append-only turn history.
	Turns []*Turn `json:"turns,omitempty"`
	// Memory maps entity keys to their most recent value
	// (e.g. "last_project_id" -> "123"). Keys are overwritten,
	// never appended.
	Memory map[string]string `json:"memory,omitempty"`
	// Pending is the at-most-one pending confirmation slot.
	Pending *PendingConfirmation `json:"pending,omitempty"`
	// CreatedAt is when the session was first seen.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the session last completed a turn.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an empty session for the given id.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Memory:    make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Remember stores an entity-memory value, overwriting any previous value
// for the key.
func (s *Session) Remember(key, value string) {
	if s.Memory == nil {
		s.Memory = make(map[string]string)
	}
	s.Memory[key] = value
}

// Recall returns the memory value for key, if present.
func (s *Session) Recall(key string) (string, bool) {
	v, ok := s.Memory[key]
	return v, ok
}

// AppendTurn appends a completed turn to the history. Turns are immutable
// once appended.
func (s *Session) AppendTurn(t *Turn) {
	s.Turns = append(s.Turns, t)
	s.UpdatedAt = time.Now()
}

// LastTurn returns the most recent turn, or nil for a fresh session.
func (s *Session) LastTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	return s.Turns[len(s.Turns)-1]
}

// MemorySnapshot returns a copy of the entity-memory map. Handlers and the
// classifier receive copies so they can never mutate session state directly.
func (s *Session) MemorySnapshot() map[string]string {
	snap := make(map[string]string, len(s.Memory))
	for k, v := range s.Memory {
		snap[k] = v
	}
	return snap
}
