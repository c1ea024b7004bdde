// Package engine invokes capability handlers according to a routing plan,
// enforcing per-attempt timeouts, the transient-retry policy, and the
// isolation rules for sequential and parallel dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tclaveria/concierge/internal/config"
	"github.com/tclaveria/concierge/internal/registry"
	"github.com/tclaveria/concierge/internal/router"
	"github.com/tclaveria/concierge/pkg/models"
)

// Handler is the contract a capability implementation fulfills. Execute must
// honor ctx cancellation; the engine enforces the per-attempt deadline.
type Handler interface {
	Execute(ctx context.Context, params map[string]string, sessCtx *Context) (*models.HandlerOutput, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, params map[string]string, sessCtx *Context) (*models.HandlerOutput, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, params map[string]string, sessCtx *Context) (*models.HandlerOutput, error) {
	return f(ctx, params, sessCtx)
}

// HandlerError lets a handler classify its own failure. Errors that are not
// HandlerErrors are treated as permanent unless they are deadline expiries.
type HandlerError struct {
	Kind    models.ErrorKind
	Message string
	Cause   error
}

func (e *HandlerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// Transient wraps an error as a retryable handler failure.
func Transient(message string, cause error) *HandlerError {
	return &HandlerError{Kind: models.ErrorKindTransient, Message: message, Cause: cause}
}

// Permanent wraps an error as a non-retryable handler failure.
func Permanent(message string, cause error) *HandlerError {
	return &HandlerError{Kind: models.ErrorKindPermanent, Message: message, Cause: cause}
}

// classify maps a handler error to its retry class. Deadline expiry counts
// as a timeout and is retried like any transient failure.
func classify(err error) models.ErrorKind {
	var herr *HandlerError
	if errors.As(err, &herr) && herr.Kind != models.ErrorKindNone {
		return herr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTimeout
	}
	return models.ErrorKindPermanent
}

// Engine runs routing plans against registered handlers.
type Engine struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	cfg config.EngineConfig
	sem *semaphore.Weighted

	// sleep is replaceable in tests so retry backoff does not slow them.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Engine with the given execution settings.
func New(cfg config.EngineConfig) *Engine {
	maxParallel := cfg.MaxParallel
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Engine{
		handlers: make(map[string]Handler),
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(maxParallel)),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterHandler binds a handler to a capability name. The last
// registration for a name wins.
func (e *Engine) RegisterHandler(capability string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[capability] = h
}

func (e *Engine) handler(capability string) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[capability]
	return h, ok
}

// Execute runs the plan and returns one result per step, in plan order.
// Reject and clarify plans have nothing to execute and return nil.
func (e *Engine) Execute(ctx context.Context, plan *router.Plan, sessCtx *Context, snap *registry.Snapshot) []models.ExecutionResult {
	switch plan.Kind {
	case router.PlanSingle:
		return []models.ExecutionResult{e.runStep(ctx, plan.Steps[0], sessCtx.Clone(), snap)}
	case router.PlanSequential:
		return e.runSequential(ctx, plan.Steps, sessCtx, snap)
	case router.PlanParallel:
		return e.runParallel(ctx, plan.Steps, sessCtx, snap)
	default:
		return nil
	}
}

// runSequential executes steps in order, merging each success's output data
// into the context for later steps. Once a step fails, every remaining step
// is skipped; its inputs can no longer be trusted to exist.
func (e *Engine) runSequential(ctx context.Context, steps []router.Step, sessCtx *Context, snap *registry.Snapshot) []models.ExecutionResult {
	execCtx := sessCtx.Clone()
	results := make([]models.ExecutionResult, 0, len(steps))
	failed := false

	for _, step := range steps {
		if failed {
			results = append(results, models.ExecutionResult{
				Capability: step.Capability,
				Skipped:    true,
			})
			continue
		}

		// A later step may reference a value produced earlier in the chain.
		step = fillFromPrior(step, execCtx, snap)

		res := e.runStep(ctx, step, execCtx, snap)
		results = append(results, res)

		if !res.Success {
			failed = true
			continue
		}
		for k, v := range res.Output.Data {
			execCtx.Prior[k] = v
		}
	}
	return results
}

// fillFromPrior copies chain outputs into a step's missing required
// parameters without mutating the plan's own map.
func fillFromPrior(step router.Step, execCtx *Context, snap *registry.Snapshot) router.Step {
	desc, err := snap.Find(step.Capability)
	if err != nil {
		return step
	}

	var missing []string
	for _, param := range desc.RequiredParams() {
		if step.Parameters[param] == "" {
			if _, ok := execCtx.Prior[param]; ok {
				missing = append(missing, param)
			}
		}
	}
	if len(missing) == 0 {
		return step
	}

	params := make(map[string]string, len(step.Parameters)+len(missing))
	for k, v := range step.Parameters {
		params[k] = v
	}
	for _, param := range missing {
		params[param] = execCtx.Prior[param]
	}
	step.Parameters = params
	return step
}

// runParallel executes all steps concurrently with independent cloned
// contexts. Every member runs to completion regardless of its siblings;
// concurrency is bounded by the configured limit.
func (e *Engine) runParallel(ctx context.Context, steps []router.Step, sessCtx *Context, snap *registry.Snapshot) []models.ExecutionResult {
	results := make([]models.ExecutionResult, len(steps))
	var wg sync.WaitGroup

	for i, step := range steps {
		wg.Add(1)
		go func(i int, step router.Step) {
			defer wg.Done()
			if err := e.sem.Acquire(ctx, 1); err != nil {
				results[i] = models.ExecutionResult{
					Capability:   step.Capability,
					ErrorKind:    models.ErrorKindTransient,
					ErrorMessage: fmt.Sprintf("dispatch cancelled: %v", err),
				}
				return
			}
			defer e.sem.Release(1)
			results[i] = e.runStep(ctx, step, sessCtx.Clone(), snap)
		}(i, step)
	}

	wg.Wait()
	return results
}

// runStep invokes one handler with the retry policy: transient failures and
// timeouts are retried with exponential backoff, permanent failures surface
// immediately.
func (e *Engine) runStep(ctx context.Context, step router.Step, execCtx *Context, snap *registry.Snapshot) models.ExecutionResult {
	start := time.Now()
	result := models.ExecutionResult{Capability: step.Capability}

	h, ok := e.handler(step.Capability)
	if !ok {
		result.ErrorKind = models.ErrorKindPermanent
		result.ErrorMessage = fmt.Sprintf("no handler registered for capability %q", step.Capability)
		result.Latency = time.Since(start)
		return result
	}

	if msg := e.missingParams(step, snap); msg != "" {
		result.ErrorKind = models.ErrorKindPermanent
		result.ErrorMessage = msg
		result.Latency = time.Since(start)
		return result
	}

	maxAttempts := 1 + e.cfg.MaxRetries
	delay := e.cfg.BackoffBase

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		output, err := e.invoke(ctx, h, step.Parameters, execCtx)
		if err == nil {
			if output == nil {
				output = &models.HandlerOutput{}
			}
			result.Success = true
			result.Output = output
			result.ErrorKind = models.ErrorKindNone
			result.ErrorMessage = ""
			break
		}

		result.ErrorKind = classify(err)
		result.ErrorMessage = err.Error()

		if !result.ErrorKind.Retryable() || attempt == maxAttempts {
			break
		}

		log.Printf("[engine] %s attempt %d failed (%s), retrying in %s: %v",
			step.Capability, attempt, result.ErrorKind, delay, err)
		if err := e.sleep(ctx, delay); err != nil {
			result.ErrorMessage = fmt.Sprintf("retry abandoned: %v", err)
			break
		}
		delay = time.Duration(float64(delay) * e.cfg.BackoffFactor)
	}

	result.Latency = time.Since(start)
	return result
}

// invoke runs one handler attempt under the per-attempt deadline.
func (e *Engine) invoke(ctx context.Context, h Handler, params map[string]string, execCtx *Context) (*models.HandlerOutput, error) {
	if e.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.HandlerTimeout)
		defer cancel()
	}
	return h.Execute(ctx, params, execCtx)
}

// missingParams reports required parameters still absent after routing,
// memory backfill, and chain fill. Invoking a handler without them is a
// permanent failure.
func (e *Engine) missingParams(step router.Step, snap *registry.Snapshot) string {
	desc, err := snap.Find(step.Capability)
	if err != nil {
		return ""
	}
	for _, param := range desc.RequiredParams() {
		if step.Parameters[param] == "" {
			return fmt.Sprintf("missing required parameter %q for capability %q", param, step.Capability)
		}
	}
	return ""
}
