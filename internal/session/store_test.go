package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tclaveria/concierge/internal/config"
	"github.com/tclaveria/concierge/pkg/models"
)

// fakePersistence is an in-memory Persistence with optional failure modes.
type fakePersistence struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	loadErr  error
	saveErr  error
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{sessions: make(map[string]*models.Session)}
}

func (f *fakePersistence) Load(_ context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.sessions[id], nil
}

func (f *fakePersistence) Save(_ context.Context, sess *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.sessions[sess.ID] = sess
	return nil
}

func TestGetCreatesEmptySession(t *testing.T) {
	store := NewStore(nil, config.BusyFail)

	sess := store.Get(context.Background(), "s1")
	if sess == nil {
		t.Fatal("expected a session")
	}
	if sess.ID != "s1" {
		t.Errorf("expected id s1, got %s", sess.ID)
	}
	if len(sess.Turns) != 0 {
		t.Errorf("expected empty history, got %d turns", len(sess.Turns))
	}

	// Same instance on second get.
	if store.Get(context.Background(), "s1") != sess {
		t.Error("expected cached session instance")
	}
}

func TestAcquireFailPolicy(t *testing.T) {
	store := NewStore(nil, config.BusyFail)
	ctx := context.Background()

	release, err := store.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = store.Acquire(ctx, "s1")
	var busy *SessionBusyError
	if !errors.As(err, &busy) {
		t.Fatalf("expected SessionBusyError, got %v", err)
	}
	if busy.SessionID != "s1" {
		t.Errorf("expected session id s1, got %s", busy.SessionID)
	}

	// Different session is unaffected.
	release2, err := store.Acquire(ctx, "s2")
	if err != nil {
		t.Fatalf("acquire other session: %v", err)
	}
	release2()

	release()
	if _, err := store.Acquire(ctx, "s1"); err != nil {
		t.Errorf("expected acquire to succeed after release: %v", err)
	}
}

func TestAcquireQueuePolicy(t *testing.T) {
	store := NewStore(nil, config.BusyQueue)
	ctx := context.Background()

	release, err := store.Acquire(ctx, "s1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		r2, err := store.Acquire(ctx, "s1")
		if err == nil {
			r2()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire should proceed after release")
	}
}

func TestAcquireQueueRespectsContext(t *testing.T) {
	store := NewStore(nil, config.BusyQueue)

	release, err := store.Acquire(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := store.Acquire(ctx, "s1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestCorruptStateDegradesToFresh(t *testing.T) {
	persist := newFakePersistence()
	persist.loadErr = errors.New("record decode failed")
	store := NewStore(persist, config.BusyFail)

	sess := store.Get(context.Background(), "s1")
	if sess == nil {
		t.Fatal("expected a fresh session despite load failure")
	}
	if len(sess.Memory) != 0 || len(sess.Turns) != 0 {
		t.Error("expected fresh session to be empty")
	}
}

func TestPutWritesThrough(t *testing.T) {
	persist := newFakePersistence()
	store := NewStore(persist, config.BusyFail)
	ctx := context.Background()

	sess := store.Get(ctx, "s1")
	sess.Remember("last_project_id", "42")
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("put: %v", err)
	}

	saved := persist.sessions["s1"]
	if saved == nil {
		t.Fatal("expected session persisted")
	}
	if v, _ := saved.Recall("last_project_id"); v != "42" {
		t.Errorf("expected persisted memory 42, got %q", v)
	}
}

func TestResolveReference(t *testing.T) {
	sess := models.NewSession("s1")
	sess.Remember("last_project_id", "42")
	sess.Remember("last_mentioned_topic", "present_perfect")

	tests := []struct {
		hint      string
		wantKey   string
		wantValue string
		wantOK    bool
	}{
		{"the project I just created", "last_project_id", "42", true},
		{"that project", "last_project_id", "42", true},
		{"el proyecto", "", "", false}, // "proyecto" does not token-match "project"
		{"the topic we mentioned", "last_mentioned_topic", "present_perfect", true},
		{"something unrelated", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		key, value, ok := ResolveReference(sess, tt.hint)
		if ok != tt.wantOK {
			t.Errorf("hint %q: ok=%v, want %v", tt.hint, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if key != tt.wantKey || value != tt.wantValue {
			t.Errorf("hint %q: got (%s,%s), want (%s,%s)", tt.hint, key, value, tt.wantKey, tt.wantValue)
		}
	}
}

func TestResolveReferencePrefersHigherOverlap(t *testing.T) {
	sess := models.NewSession("s1")
	sess.Remember("last_project_id", "42")
	sess.Remember("project_status", "green")

	// "last_project_id" shares two tokens with the hint, "project_status"
	// only one.
	key, value, ok := ResolveReference(sess, "the project id please")
	if !ok {
		t.Fatal("expected a match")
	}
	if key != "last_project_id" || value != "42" {
		t.Errorf("got (%s,%s), want (last_project_id,42)", key, value)
	}
}

func TestSummary(t *testing.T) {
	store := NewStore(nil, config.BusyFail)
	ctx := context.Background()

	sess := store.Get(ctx, "s1")
	sess.AppendTurn(&models.Turn{
		ID:         "t1",
		Input:      "crear proyecto App",
		Candidates: []models.IntentCandidate{{Capability: "create_project", Confidence: 0.9}},
		Status:     models.TurnSuccess,
	})
	sess.Pending = &models.PendingConfirmation{Capability: "delete_project", Question: "Are you sure?"}

	summary := store.Summary(ctx, "s1")
	if summary.TurnCount != 1 {
		t.Errorf("expected 1 turn, got %d", summary.TurnCount)
	}
	if summary.LastIntent != "create_project" {
		t.Errorf("expected last intent create_project, got %q", summary.LastIntent)
	}
	if !summary.PendingConfirmation {
		t.Error("expected pending confirmation flagged")
	}
	if summary.LastStatus != models.TurnSuccess {
		t.Errorf("expected last status success, got %q", summary.LastStatus)
	}
}

func TestSummaryWaitsForInFlightTurn(t *testing.T) {
	store := NewStore(nil, config.BusyFail)
	ctx := context.Background()

	sess := store.Get(ctx, "s1")
	release, err := store.Acquire(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	sess.AppendTurn(&models.Turn{ID: "t1", Status: models.TurnSuccess})

	// While the slot is held the turn is still mutating the session, so a
	// bounded Summary reports only the id instead of reading live state.
	bounded, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	summary := store.Summary(bounded, "s1")
	if summary.SessionID != "s1" {
		t.Errorf("expected session id s1, got %q", summary.SessionID)
	}
	if summary.TurnCount != 0 {
		t.Errorf("expected no turn visible mid-flight, got %d", summary.TurnCount)
	}

	release()
	summary = store.Summary(ctx, "s1")
	if summary.TurnCount != 1 || summary.LastStatus != models.TurnSuccess {
		t.Errorf("expected completed turn visible after release, got %+v", summary)
	}
}
