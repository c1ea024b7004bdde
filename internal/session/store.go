// Package session owns per-conversation state: entity memory, turn history,
// and the single-flight guarantee that only one turn mutates a session at a
// time. Long-term persistence is delegated to a narrow Load/Save contract.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/tclaveria/concierge/internal/config"
	"github.com/tclaveria/concierge/pkg/models"
)

// SessionBusyError is returned under the fail policy when a second request
// arrives for a session that is mid-turn.
type SessionBusyError struct {
	SessionID string
}

func (e *SessionBusyError) Error() string {
	return fmt.Sprintf("session %s is processing another request", e.SessionID)
}

// SessionStateError indicates persisted session state could not be used.
// The store degrades to a fresh session rather than failing the turn.
type SessionStateError struct {
	SessionID string
	Cause     error
}

func (e *SessionStateError) Error() string {
	return fmt.Sprintf("session %s state unusable: %v", e.SessionID, e.Cause)
}

func (e *SessionStateError) Unwrap() error { return e.Cause }

// Persistence is the narrow key-value contract an external store implements.
// Load returns (nil, nil) for an unknown session id.
type Persistence interface {
	Load(ctx context.Context, sessionID string) (*models.Session, error)
	Save(ctx context.Context, session *models.Session) error
}

// Store holds sessions and mediates all access to them. Turns on different
// sessions never block each other; turns on the same session are serialized
// by a per-session slot.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	slots    map[string]chan struct{}
	persist  Persistence
	policy   config.BusyPolicy
}

// NewStore creates a Store. persist may be nil for memory-only operation.
func NewStore(persist Persistence, policy config.BusyPolicy) *Store {
	if !policy.Valid() {
		policy = config.BusyFail
	}
	return &Store{
		sessions: make(map[string]*models.Session),
		slots:    make(map[string]chan struct{}),
		persist:  persist,
		policy:   policy,
	}
}

// Acquire claims the single-flight slot for a session id and returns a
// release function. Under the fail policy a held slot returns
// SessionBusyError immediately; under the queue policy the caller blocks
// until the slot frees or ctx is done.
func (s *Store) Acquire(ctx context.Context, sessionID string) (func(), error) {
	slot := s.slot(sessionID)

	switch s.policy {
	case config.BusyQueue:
		select {
		case slot <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	default: // config.BusyFail
		select {
		case slot <- struct{}{}:
		default:
			return nil, &SessionBusyError{SessionID: sessionID}
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-slot })
	}
	return release, nil
}

// slot returns the per-session serialization channel, creating it on first
// use.
func (s *Store) slot(sessionID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[sessionID]
	if !ok {
		slot = make(chan struct{}, 1)
		s.slots[sessionID] = slot
	}
	return slot
}

// Get returns the session for id, creating an empty one if it does not
// exist. Get never fails: unusable persisted state is logged and replaced
// by a fresh session.
func (s *Store) Get(ctx context.Context, sessionID string) *models.Session {
	s.mu.Lock()
	if sess, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return sess
	}
	s.mu.Unlock()

	sess := s.load(ctx, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have loaded it meanwhile; keep the first.
	if existing, ok := s.sessions[sessionID]; ok {
		return existing
	}
	s.sessions[sessionID] = sess
	return sess
}

// load fetches a session from persistence, degrading to a fresh session on
// any error.
func (s *Store) load(ctx context.Context, sessionID string) *models.Session {
	if s.persist == nil {
		return models.NewSession(sessionID)
	}

	sess, err := s.persist.Load(ctx, sessionID)
	if err != nil {
		stateErr := &SessionStateError{SessionID: sessionID, Cause: err}
		log.Printf("[session] %v, starting fresh", stateErr)
		return models.NewSession(sessionID)
	}
	if sess == nil {
		return models.NewSession(sessionID)
	}
	if sess.Memory == nil {
		sess.Memory = make(map[string]string)
	}
	return sess
}

// Put replaces the stored session and writes it through to persistence.
func (s *Store) Put(ctx context.Context, sess *models.Session) error {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	if s.persist == nil {
		return nil
	}
	if err := s.persist.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// Summary builds the introspection view for a session without mutating it.
// It waits for the session's single-flight slot, regardless of busy policy,
// so it never observes a turn mid-mutation. If ctx expires while a turn is
// still running, the summary carries only the session id.
func (s *Store) Summary(ctx context.Context, sessionID string) models.SessionSummary {
	slot := s.slot(sessionID)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return models.SessionSummary{SessionID: sessionID}
	}
	defer func() { <-slot }()

	sess := s.Get(ctx, sessionID)

	summary := models.SessionSummary{
		SessionID:           sess.ID,
		TurnCount:           len(sess.Turns),
		PendingConfirmation: sess.Pending != nil,
	}
	if last := sess.LastTurn(); last != nil {
		summary.LastStatus = last.Status
		summary.LastLatency = last.Latency
		if len(last.Candidates) > 0 {
			summary.LastIntent = last.Candidates[0].Capability
		}
	}
	return summary
}
