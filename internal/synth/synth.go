// Package synth folds execution results into one user-facing response plus
// the entity-memory updates handlers emitted. For multi-handler plans the
// response always states which sub-tasks succeeded and which did not; it
// never implies full success when any sub-task failed.
package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tclaveria/concierge/internal/router"
	"github.com/tclaveria/concierge/pkg/models"
)

// Outcome is the synthesized end of a turn.
type Outcome struct {
	// Status is the turn's terminal status.
	Status models.TurnStatus
	// Message is the user-facing response text.
	Message string
	// MemoryUpdates are the memory hints collected from successful
	// handlers, to be applied to the session.
	MemoryUpdates map[string]string
}

// Synthesize produces the outcome for a plan and its execution results.
func Synthesize(plan *router.Plan, results []models.ExecutionResult) *Outcome {
	switch plan.Kind {
	case router.PlanReject:
		return rejectOutcome(plan)
	case router.PlanClarify:
		return clarifyOutcome(plan)
	case router.PlanSingle:
		return singleOutcome(results)
	default:
		return multiOutcome(results)
	}
}

func rejectOutcome(plan *router.Plan) *Outcome {
	msg := "I'm not sure how to help with that."
	if plan.Suggestion != "" {
		msg = fmt.Sprintf("%s Did you mean %q?", msg, readableName(plan.Suggestion))
	}
	return &Outcome{Status: models.TurnRejected, Message: msg}
}

func clarifyOutcome(plan *router.Plan) *Outcome {
	names := make([]string, 0, len(plan.Competing))
	for _, c := range plan.Competing {
		names = append(names, readableName(c))
	}
	return &Outcome{
		Status: models.TurnClarification,
		Message: fmt.Sprintf("That could mean more than one thing. Did you want to %s?",
			strings.Join(names, " or ")),
	}
}

func singleOutcome(results []models.ExecutionResult) *Outcome {
	if len(results) == 0 {
		return &Outcome{Status: models.TurnFailed, Message: "Nothing was executed."}
	}
	res := results[0]
	if !res.Success {
		return &Outcome{
			Status:  models.TurnFailed,
			Message: fmt.Sprintf("Sorry, %s failed: %s", readableName(res.Capability), res.ErrorMessage),
		}
	}
	out := &Outcome{
		Status:        models.TurnSuccess,
		Message:       res.Output.Response,
		MemoryUpdates: res.Output.MemoryHints,
	}
	if out.Message == "" {
		out.Message = fmt.Sprintf("%s completed.", readableName(res.Capability))
	}
	return out
}

// multiOutcome merges sequential or parallel results. Rendering sorts by
// capability name, so the response does not depend on completion order.
func multiOutcome(results []models.ExecutionResult) *Outcome {
	sorted := make([]models.ExecutionResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Capability < sorted[j].Capability
	})

	memory := make(map[string]string)
	succeeded := 0
	failed := 0
	skipped := 0

	var b strings.Builder
	for _, res := range sorted {
		switch {
		case res.Skipped:
			skipped++
			fmt.Fprintf(&b, "- %s: skipped (an earlier step failed)\n", readableName(res.Capability))
		case res.Success:
			succeeded++
			line := res.Output.Response
			if line == "" {
				line = "done"
			}
			fmt.Fprintf(&b, "- %s: %s\n", readableName(res.Capability), line)
			for k, v := range res.Output.MemoryHints {
				memory[k] = v
			}
		default:
			failed++
			fmt.Fprintf(&b, "- %s: failed (%s)\n", readableName(res.Capability), res.ErrorMessage)
		}
	}

	var status models.TurnStatus
	var header string
	switch {
	case failed == 0 && skipped == 0:
		status = models.TurnSuccess
		header = "All tasks completed:"
	case succeeded > 0:
		status = models.TurnPartialSuccess
		header = fmt.Sprintf("Completed %d of %d tasks:", succeeded, len(sorted))
	default:
		status = models.TurnFailed
		header = "None of the tasks completed:"
	}

	if len(memory) == 0 {
		memory = nil
	}
	return &Outcome{
		Status:        status,
		Message:       header + "\n" + strings.TrimRight(b.String(), "\n"),
		MemoryUpdates: memory,
	}
}

// readableName renders a capability name for a user-facing message.
func readableName(capability string) string {
	return strings.ReplaceAll(capability, "_", " ")
}
