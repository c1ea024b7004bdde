package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tclaveria/concierge/internal/config"
	"github.com/tclaveria/concierge/internal/engine"
	"github.com/tclaveria/concierge/internal/intent"
	"github.com/tclaveria/concierge/internal/registry"
	"github.com/tclaveria/concierge/internal/session"
	"github.com/tclaveria/concierge/pkg/models"
)

// scriptedClassifier returns canned responses in order; an entry in errs
// fails that call instead.
type scriptedClassifier struct {
	responses []string
	errs      []error
	calls     int32
}

func (s *scriptedClassifier) Classify(context.Context, string, string) (string, error) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	if i < 0 {
		return "", errors.New("no scripted response")
	}
	return s.responses[i], nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	descriptors := []models.CapabilityDescriptor{
		{
			Name:        "create_project",
			Description: "Create a new project",
			Parameters: []models.ParameterSpec{
				{Name: "name", Type: models.ParamString, Required: true},
			},
			Produces: []string{"project_id"},
		},
		{
			Name:        "generate_charter",
			Description: "Generate a project charter",
			Parameters: []models.ParameterSpec{
				{Name: "project_id", Type: models.ParamString, Required: true},
			},
		},
		{
			Name:        "delete_project",
			Description: "Delete a project",
			Parameters: []models.ParameterSpec{
				{Name: "project_id", Type: models.ParamString, Required: true},
			},
			RequiresConfirmation: true,
		},
		{Name: "analyze_risks", Description: "Analyze risks"},
		{Name: "show_schedule", Description: "Show schedule", Examples: []string{"show me the schedule"}},
	}
	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			t.Fatalf("register %s: %v", d.Name, err)
		}
	}
	return reg
}

// newTestController wires real components around a scripted classifier and
// stub handlers.
func newTestController(t *testing.T, classifier intent.Classifier) (*Controller, *engine.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.BackoffBase = time.Millisecond

	reg := testRegistry(t)
	resolver := intent.NewResolver(classifier, cfg.Resolver)
	eng := engine.New(cfg.Engine)
	store := session.NewStore(nil, cfg.Session.BusyPolicy)
	ctrl := New(cfg, reg, resolver, eng, store, NewEmitter(64))

	eng.RegisterHandler("create_project", engine.HandlerFunc(func(_ context.Context, params map[string]string, _ *engine.Context) (*models.HandlerOutput, error) {
		return &models.HandlerOutput{
			Response:    fmt.Sprintf("Project %s created with id 42", params["name"]),
			Data:        map[string]string{"project_id": "42"},
			MemoryHints: map[string]string{"last_project_id": "42"},
		}, nil
	}))
	eng.RegisterHandler("generate_charter", engine.HandlerFunc(func(_ context.Context, params map[string]string, _ *engine.Context) (*models.HandlerOutput, error) {
		return &models.HandlerOutput{
			Response: fmt.Sprintf("Charter ready for project %s", params["project_id"]),
		}, nil
	}))
	eng.RegisterHandler("delete_project", engine.HandlerFunc(func(_ context.Context, params map[string]string, _ *engine.Context) (*models.HandlerOutput, error) {
		return &models.HandlerOutput{Response: fmt.Sprintf("Project %s deleted", params["project_id"])}, nil
	}))
	eng.RegisterHandler("show_schedule", engine.HandlerFunc(func(context.Context, map[string]string, *engine.Context) (*models.HandlerOutput, error) {
		return &models.HandlerOutput{Response: "3 milestones this month"}, nil
	}))

	return ctrl, eng
}

func TestProcessRequestSingleDispatchWithMemoryHint(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "create_project", "parameters": {"name": "App"}, "confidence": 0.92}]`,
	}}
	ctrl, _ := newTestController(t, classifier)

	resp, err := ctrl.ProcessRequest(context.Background(), "s1", "crear proyecto App")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if resp.Kind != models.ResponseSuccess {
		t.Fatalf("expected success, got %s: %s", resp.Kind, resp.Message)
	}
	if resp.Message != "Project App created with id 42" {
		t.Errorf("unexpected message %q", resp.Message)
	}

	sess := ctrl.store.Get(context.Background(), "s1")
	if v, _ := sess.Recall("last_project_id"); v != "42" {
		t.Errorf("expected last_project_id remembered, got %q", v)
	}
	if len(sess.Turns) != 1 || sess.Turns[0].Status != models.TurnSuccess {
		t.Errorf("expected one successful turn recorded, got %+v", sess.Turns)
	}
}

func TestFollowUpTurnBackfillsFromMemory(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "create_project", "parameters": {"name": "App"}, "confidence": 0.92}]`,
		`[{"capability": "generate_charter", "parameters": {}, "confidence": 0.88}]`,
	}}
	ctrl, _ := newTestController(t, classifier)
	ctx := context.Background()

	if _, err := ctrl.ProcessRequest(ctx, "s1", "crear proyecto App"); err != nil {
		t.Fatal(err)
	}
	resp, err := ctrl.ProcessRequest(ctx, "s1", "genera el charter")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != models.ResponseSuccess {
		t.Fatalf("expected success, got %s: %s", resp.Kind, resp.Message)
	}
	if resp.Message != "Charter ready for project 42" {
		t.Errorf("expected project_id from memory, got %q", resp.Message)
	}
}

func TestClassifierFailureReturnsFallback(t *testing.T) {
	transport := errors.New("api down")
	classifier := &scriptedClassifier{errs: []error{transport, transport}}
	ctrl, _ := newTestController(t, classifier)

	resp, err := ctrl.ProcessRequest(context.Background(), "s1", "do something odd")
	if err != nil {
		t.Fatalf("turn must still answer: %v", err)
	}
	if resp.Kind != models.ResponseError || resp.ErrorKind != "classification_error" {
		t.Errorf("expected classification error response, got %+v", resp)
	}
	if resp.Message == "" {
		t.Error("expected a fallback message")
	}

	sess := ctrl.store.Get(context.Background(), "s1")
	if len(sess.Turns) != 1 || sess.Turns[0].Status != models.TurnErrored {
		t.Errorf("expected errored turn recorded, got %+v", sess.Turns)
	}
}

func TestAmbiguityYieldsClarification(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "create_project", "parameters": {"name": "App"}, "confidence": 0.61},
		  {"capability": "generate_charter", "parameters": {"project_id": "1"}, "confidence": 0.59}]`,
	}}
	ctrl, _ := newTestController(t, classifier)

	resp, err := ctrl.ProcessRequest(context.Background(), "s1", "project stuff")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != models.ResponseClarification {
		t.Fatalf("expected clarification, got %s: %s", resp.Kind, resp.Message)
	}
}

func TestLowConfidenceYieldsRejection(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "analyze_risks", "confidence": 0.2}]`,
	}}
	ctrl, _ := newTestController(t, classifier)

	resp, err := ctrl.ProcessRequest(context.Background(), "s1", "hmm")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != models.ResponseRejected {
		t.Fatalf("expected rejection, got %s", resp.Kind)
	}
}

func TestSessionBusyFailsFast(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "show_schedule", "confidence": 0.9}]`,
	}}
	ctrl, eng := newTestController(t, classifier)

	started := make(chan struct{})
	gate := make(chan struct{})
	eng.RegisterHandler("show_schedule", engine.HandlerFunc(func(context.Context, map[string]string, *engine.Context) (*models.HandlerOutput, error) {
		close(started)
		<-gate
		return &models.HandlerOutput{Response: "schedule"}, nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.ProcessRequest(context.Background(), "s1", "show me the schedule")
		done <- err
	}()
	<-started

	_, err := ctrl.ProcessRequest(context.Background(), "s1", "show me the schedule")
	var busy *session.SessionBusyError
	if !errors.As(err, &busy) {
		t.Fatalf("expected SessionBusyError, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}
}

func TestConfirmationFlow(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "delete_project", "parameters": {"project_id": "42"}, "confidence": 0.9}]`,
	}}
	ctrl, _ := newTestController(t, classifier)
	ctx := context.Background()

	resp, err := ctrl.ProcessRequest(ctx, "s1", "delete project 42")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != models.ResponseClarification {
		t.Fatalf("expected confirmation question, got %s: %s", resp.Kind, resp.Message)
	}

	summary := ctrl.GetSessionSummary(ctx, "s1")
	if !summary.PendingConfirmation {
		t.Fatal("expected pending confirmation parked")
	}

	resp, err = ctrl.ProcessRequest(ctx, "s1", "yes")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != models.ResponseSuccess {
		t.Fatalf("expected execution after confirmation, got %s: %s", resp.Kind, resp.Message)
	}
	if resp.Message != "Project 42 deleted" {
		t.Errorf("unexpected message %q", resp.Message)
	}
	if ctrl.GetSessionSummary(ctx, "s1").PendingConfirmation {
		t.Error("expected pending slot consumed")
	}
}

func TestConfirmationDeclined(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "delete_project", "parameters": {"project_id": "42"}, "confidence": 0.9}]`,
	}}
	ctrl, _ := newTestController(t, classifier)
	ctx := context.Background()

	if _, err := ctrl.ProcessRequest(ctx, "s1", "delete project 42"); err != nil {
		t.Fatal(err)
	}
	resp, err := ctrl.ProcessRequest(ctx, "s1", "no")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != models.ResponseRejected {
		t.Fatalf("expected rejection, got %s", resp.Kind)
	}

	sess := ctrl.store.Get(ctx, "s1")
	if sess.Pending != nil {
		t.Error("expected pending confirmation discarded")
	}
	if len(sess.Turns) != 2 {
		t.Errorf("expected both turns recorded, got %d", len(sess.Turns))
	}
}

func TestPartialFailureSurfacesInResponse(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "analyze_risks", "confidence": 0.8, "requires_collaboration": true},
		  {"capability": "show_schedule", "confidence": 0.78, "requires_collaboration": true}]`,
	}}
	ctrl, eng := newTestController(t, classifier)
	eng.RegisterHandler("analyze_risks", engine.HandlerFunc(func(context.Context, map[string]string, *engine.Context) (*models.HandlerOutput, error) {
		return nil, engine.Permanent("no risk data", nil)
	}))

	resp, err := ctrl.ProcessRequest(context.Background(), "s1", "show me risks and the schedule")
	if err != nil {
		t.Fatal(err)
	}
	if resp.Kind != models.ResponsePartialSuccess {
		t.Fatalf("expected partial_success, got %s: %s", resp.Kind, resp.Message)
	}
	if len(resp.Results) != 2 {
		t.Errorf("expected both results in diagnostics, got %d", len(resp.Results))
	}
}

func TestEventsEmittedForTurn(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "show_schedule", "confidence": 0.9}]`,
	}}
	ctrl, _ := newTestController(t, classifier)

	if _, err := ctrl.ProcessRequest(context.Background(), "s1", "show me the schedule"); err != nil {
		t.Fatal(err)
	}

	var types []EventType
	for {
		select {
		case ev := <-ctrl.emitter.Events():
			types = append(types, ev.Type)
			continue
		default:
		}
		break
	}

	if len(types) == 0 || types[0] != EventTurnStarted {
		t.Fatalf("expected turn_started first, got %v", types)
	}
	if types[len(types)-1] != EventTurnCompleted {
		t.Errorf("expected turn_completed last, got %v", types)
	}
}

func TestSummaryReflectsLastTurn(t *testing.T) {
	classifier := &scriptedClassifier{responses: []string{
		`[{"capability": "create_project", "parameters": {"name": "App"}, "confidence": 0.92}]`,
	}}
	ctrl, _ := newTestController(t, classifier)
	ctx := context.Background()

	if _, err := ctrl.ProcessRequest(ctx, "s1", "crear proyecto App"); err != nil {
		t.Fatal(err)
	}

	summary := ctrl.GetSessionSummary(ctx, "s1")
	if summary.TurnCount != 1 {
		t.Errorf("expected 1 turn, got %d", summary.TurnCount)
	}
	if summary.LastIntent != "create_project" {
		t.Errorf("expected last intent create_project, got %q", summary.LastIntent)
	}
	if summary.LastStatus != models.TurnSuccess {
		t.Errorf("expected success status, got %s", summary.LastStatus)
	}
}
