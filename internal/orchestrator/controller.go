// Package orchestrator owns the per-turn state machine: it resolves session
// context, classifies intent, routes, executes, synthesizes, and persists
// the completed turn. ProcessRequest is the sole public entry point and
// always answers; failures become responses, not panics.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tclaveria/concierge/internal/config"
	"github.com/tclaveria/concierge/internal/engine"
	"github.com/tclaveria/concierge/internal/intent"
	"github.com/tclaveria/concierge/internal/registry"
	"github.com/tclaveria/concierge/internal/router"
	"github.com/tclaveria/concierge/internal/session"
	"github.com/tclaveria/concierge/internal/synth"
	"github.com/tclaveria/concierge/pkg/models"
)

// State is a step of the per-turn state machine.
type State string

const (
	StateReceived        State = "received"
	StateContextResolved State = "context_resolved"
	StateIntentResolved  State = "intent_resolved"
	StateRouted          State = "routed"
	StateExecuting       State = "executing"
	StateSynthesized     State = "synthesized"
	StateResponded       State = "responded"
	StateErrored         State = "errored"
)

// Controller wires the components into the turn state machine. Turns on the
// same session are serialized by the store's single-flight slot; turns on
// different sessions run fully concurrently.
type Controller struct {
	cfg      *config.Config
	registry *registry.Registry
	resolver *intent.Resolver
	engine   *engine.Engine
	store    *session.Store
	emitter  *Emitter
}

// New creates a Controller. emitter may be nil when no observer is attached.
func New(cfg *config.Config, reg *registry.Registry, resolver *intent.Resolver, eng *engine.Engine, store *session.Store, emitter *Emitter) *Controller {
	return &Controller{
		cfg:      cfg,
		registry: reg,
		resolver: resolver,
		engine:   eng,
		store:    store,
		emitter:  emitter,
	}
}

// ProcessRequest runs one full turn for the session. It always returns a
// Response when a turn ran; the error return is reserved for turns that
// never started, i.e. SessionBusyError under the fail policy or a caller
// context expiring while queued.
func (c *Controller) ProcessRequest(ctx context.Context, sessionID, text string) (*models.Response, error) {
	release, err := c.store.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	turnID := uuid.NewString()
	c.emitter.Emit(Event{Type: EventTurnStarted, SessionID: sessionID, TurnID: turnID, State: StateReceived, Message: text})

	sess := c.store.Get(ctx, sessionID)
	snap := c.registry.Snapshot()

	if sess.Pending != nil {
		if resp, handled := c.consumePending(ctx, sess, turnID, text, start, snap); handled {
			return resp, nil
		}
	}

	c.transition(sessionID, turnID, StateContextResolved)

	resolution, err := c.resolver.Resolve(ctx, text, sess, snap)
	if err != nil {
		log.Printf("[orchestrator] session %s: intent resolution failed: %v", sessionID, err)
		return c.errored(ctx, sess, turnID, text, start), nil
	}
	c.transition(sessionID, turnID, StateIntentResolved)

	plan := router.Decide(resolution, snap, c.cfg.Resolver.ConfidenceThreshold, text)
	c.transition(sessionID, turnID, StateRouted)

	if parked := c.maybePark(plan, snap, sess); parked != nil {
		return c.finishTurn(ctx, sess, &models.Turn{
			ID:         turnID,
			Input:      text,
			Timestamp:  start,
			Candidates: resolution.Candidates,
			Routing:    plan.Decision(),
			Response:   parked.Question,
			Status:     models.TurnClarification,
			Latency:    time.Since(start),
		}), nil
	}

	var results []models.ExecutionResult
	if executable(plan.Kind) {
		c.transition(sessionID, turnID, StateExecuting)
		results = c.engine.Execute(ctx, plan, &engine.Context{
			SessionID: sessionID,
			Memory:    sess.MemorySnapshot(),
			Prior:     map[string]string{},
		}, snap)
		for _, res := range results {
			c.emitter.Emit(Event{
				Type:       EventHandlerFinished,
				SessionID:  sessionID,
				TurnID:     turnID,
				Capability: res.Capability,
				Message:    string(res.ErrorKind),
			})
		}
	}

	outcome := synth.Synthesize(plan, results)
	c.transition(sessionID, turnID, StateSynthesized)

	for k, v := range outcome.MemoryUpdates {
		sess.Remember(k, v)
	}

	return c.finishTurn(ctx, sess, &models.Turn{
		ID:         turnID,
		Input:      text,
		Timestamp:  start,
		Candidates: resolution.Candidates,
		Routing:    plan.Decision(),
		Results:    results,
		Response:   outcome.Message,
		Status:     outcome.Status,
		Latency:    time.Since(start),
	}), nil
}

// GetSessionSummary returns the introspection view of a session.
func (c *Controller) GetSessionSummary(ctx context.Context, sessionID string) models.SessionSummary {
	return c.store.Summary(ctx, sessionID)
}

// maybePark moves a single dispatch of a confirmation-gated capability into
// the session's pending slot instead of executing it.
func (c *Controller) maybePark(plan *router.Plan, snap *registry.Snapshot, sess *models.Session) *models.PendingConfirmation {
	if plan.Kind != router.PlanSingle || len(plan.Steps) != 1 {
		return nil
	}
	step := plan.Steps[0]
	desc, err := snap.Find(step.Capability)
	if err != nil || !desc.RequiresConfirmation {
		return nil
	}
	pending := &models.PendingConfirmation{
		Capability: step.Capability,
		Parameters: step.Parameters,
		Question:   fmt.Sprintf("This will run %s. Continue? (yes/no)", strings.ReplaceAll(step.Capability, "_", " ")),
		CreatedAt:  time.Now(),
	}
	sess.Pending = pending
	return pending
}

// consumePending interprets the turn as an answer to the parked
// confirmation. Affirmative answers execute the parked dispatch, negative
// ones discard it; anything else drops the stale confirmation and lets the
// turn proceed as a fresh request.
func (c *Controller) consumePending(ctx context.Context, sess *models.Session, turnID, text string, start time.Time, snap *registry.Snapshot) (*models.Response, bool) {
	pending := sess.Pending

	switch {
	case isAffirmative(text):
		sess.Pending = nil
		plan := &router.Plan{Kind: router.PlanSingle, Steps: []router.Step{{
			Capability: pending.Capability,
			Parameters: pending.Parameters,
		}}}
		c.transition(sess.ID, turnID, StateExecuting)
		results := c.engine.Execute(ctx, plan, &engine.Context{
			SessionID: sess.ID,
			Memory:    sess.MemorySnapshot(),
			Prior:     map[string]string{},
		}, snap)
		outcome := synth.Synthesize(plan, results)
		for k, v := range outcome.MemoryUpdates {
			sess.Remember(k, v)
		}
		return c.finishTurn(ctx, sess, &models.Turn{
			ID:        turnID,
			Input:     text,
			Timestamp: start,
			Routing:   plan.Decision(),
			Results:   results,
			Response:  outcome.Message,
			Status:    outcome.Status,
			Latency:   time.Since(start),
		}), true

	case isNegative(text):
		sess.Pending = nil
		msg := fmt.Sprintf("Okay, I won't run %s.", strings.ReplaceAll(pending.Capability, "_", " "))
		return c.finishTurn(ctx, sess, &models.Turn{
			ID:        turnID,
			Input:     text,
			Timestamp: start,
			Routing:   models.RoutingDecision{Kind: string(router.PlanReject)},
			Response:  msg,
			Status:    models.TurnRejected,
			Latency:   time.Since(start),
		}), true

	default:
		// The user moved on. Drop the stale confirmation and process the
		// text as a normal request.
		log.Printf("[orchestrator] session %s: discarding stale confirmation for %s", sess.ID, pending.Capability)
		sess.Pending = nil
		return nil, false
	}
}

// errored ends the turn with the generic fallback message. The turn is
// still recorded; the user never sees a dropped request.
func (c *Controller) errored(ctx context.Context, sess *models.Session, turnID, text string, start time.Time) *models.Response {
	c.transition(sess.ID, turnID, StateErrored)

	turn := &models.Turn{
		ID:        turnID,
		Input:     text,
		Timestamp: start,
		Response:  "Sorry, I couldn't work out what you need right now. Please try rephrasing.",
		Status:    models.TurnErrored,
		Latency:   time.Since(start),
	}
	resp := c.finishTurn(ctx, sess, turn)
	resp.ErrorKind = "classification_error"
	return resp
}

// finishTurn appends the immutable turn, persists the session, and builds
// the response. A persistence failure is logged, never surfaced: the turn
// already happened and the user gets its result.
func (c *Controller) finishTurn(ctx context.Context, sess *models.Session, turn *models.Turn) *models.Response {
	sess.AppendTurn(turn)
	if err := c.store.Put(ctx, sess); err != nil {
		log.Printf("[orchestrator] session %s: persist failed: %v", sess.ID, err)
	}

	resp := &models.Response{
		SessionID: sess.ID,
		TurnID:    turn.ID,
		Kind:      responseKind(turn.Status),
		Message:   turn.Response,
		Results:   turn.Results,
	}
	if turn.Status == models.TurnFailed {
		resp.ErrorKind = "handler_execution_error"
	}

	c.transition(sess.ID, turn.ID, StateResponded)
	c.emitter.Emit(Event{
		Type:      EventTurnCompleted,
		SessionID: sess.ID,
		TurnID:    turn.ID,
		State:     StateResponded,
		Message:   string(turn.Status),
	})
	return resp
}

func (c *Controller) transition(sessionID, turnID string, state State) {
	c.emitter.Emit(Event{Type: EventStateChanged, SessionID: sessionID, TurnID: turnID, State: state})
}

func executable(kind router.PlanKind) bool {
	switch kind {
	case router.PlanSingle, router.PlanSequential, router.PlanParallel:
		return true
	default:
		return false
	}
}

func responseKind(status models.TurnStatus) models.ResponseKind {
	switch status {
	case models.TurnSuccess:
		return models.ResponseSuccess
	case models.TurnPartialSuccess:
		return models.ResponsePartialSuccess
	case models.TurnClarification:
		return models.ResponseClarification
	case models.TurnRejected:
		return models.ResponseRejected
	default:
		return models.ResponseError
	}
}

var affirmatives = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "sure": true,
	"ok": true, "okay": true, "confirm": true, "do it": true,
	"si": true, "sí": true, "dale": true, "claro": true,
}

var negatives = map[string]bool{
	"no": true, "n": true, "nope": true, "cancel": true, "stop": true,
	"don't": true, "dont": true, "cancela": true, "cancelar": true,
}

func isAffirmative(text string) bool {
	return affirmatives[strings.ToLower(strings.TrimSpace(text))]
}

func isNegative(text string) bool {
	return negatives[strings.ToLower(strings.TrimSpace(text))]
}
