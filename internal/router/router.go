// Package router turns a resolved intent into an executable plan. Decide is
// a pure function of the resolution, the catalog snapshot, and the input
// text; it performs no I/O and holds no state.
package router

import (
	"github.com/tclaveria/concierge/internal/intent"
	"github.com/tclaveria/concierge/internal/registry"
	"github.com/tclaveria/concierge/pkg/models"
)

// PlanKind is the routing plan variant.
type PlanKind string

const (
	// PlanReject carries no executable step; no candidate was confident
	// enough to act on.
	PlanReject PlanKind = "reject"
	// PlanClarify asks the user to pick between competing capabilities.
	PlanClarify PlanKind = "clarify"
	// PlanSingle dispatches exactly one handler.
	PlanSingle PlanKind = "single"
	// PlanSequential dispatches handlers in order, feeding each output
	// forward.
	PlanSequential PlanKind = "sequential"
	// PlanParallel dispatches independent handlers concurrently.
	PlanParallel PlanKind = "parallel"
)

// Step is one handler invocation in a plan.
type Step struct {
	Capability string
	Parameters map[string]string
}

// Plan is the router's decision for one turn.
type Plan struct {
	Kind  PlanKind
	Steps []Step
	// Suggestion names the closest capability for a reject message.
	Suggestion string
	// Competing names the capabilities a clarify plan asks about.
	Competing []string
}

// Decision returns the compact routing record stored on the turn.
func (p *Plan) Decision() models.RoutingDecision {
	caps := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		caps = append(caps, s.Capability)
	}
	if p.Kind == PlanClarify {
		caps = append(caps, p.Competing...)
	}
	return models.RoutingDecision{Kind: string(p.Kind), Capabilities: caps}
}

// Decide maps a resolution onto a plan. threshold is the minimum confidence
// to act; inputText feeds the reject suggestion and the text-overlap
// tie-break.
func Decide(res *intent.Resolution, snap *registry.Snapshot, threshold float64, inputText string) *Plan {
	top := res.Top()
	if top == nil || top.Confidence < threshold {
		return &Plan{
			Kind:       PlanReject,
			Suggestion: closestCapability(inputText, snap),
		}
	}

	if res.Ambiguous {
		return &Plan{
			Kind:      PlanClarify,
			Competing: competingNames(res, threshold),
		}
	}

	if !top.RequiresCollaboration {
		return &Plan{
			Kind:  PlanSingle,
			Steps: []Step{{Capability: top.Capability, Parameters: top.Parameters}},
		}
	}

	steps := collaborationSteps(res, snap, threshold, inputText)
	if len(steps) < 2 {
		// Collaboration flagged but only one actionable candidate.
		return &Plan{Kind: PlanSingle, Steps: steps}
	}

	if ordered, ok := dependencyOrder(steps, snap); ok {
		return &Plan{Kind: PlanSequential, Steps: ordered}
	}
	return &Plan{Kind: PlanParallel, Steps: steps}
}

// competingNames returns the distinct capabilities above threshold, in
// candidate order, for a clarification message.
func competingNames(res *intent.Resolution, threshold float64) []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range res.Candidates {
		if c.Confidence < threshold || seen[c.Capability] {
			continue
		}
		seen[c.Capability] = true
		names = append(names, c.Capability)
	}
	return names
}

// collaborationSteps converts actionable candidates into plan steps, one per
// distinct capability. Confidence ties between different capabilities are
// broken by registered priority, then by example-overlap with the input.
func collaborationSteps(res *intent.Resolution, snap *registry.Snapshot, threshold float64, inputText string) []Step {
	candidates := make([]models.IntentCandidate, 0, len(res.Candidates))
	seen := make(map[string]bool)
	for _, c := range res.Candidates {
		if c.Confidence < threshold || seen[c.Capability] {
			continue
		}
		seen[c.Capability] = true
		candidates = append(candidates, c)
	}

	sortCandidates(candidates, snap, inputText)

	steps := make([]Step, 0, len(candidates))
	for _, c := range candidates {
		steps = append(steps, Step{Capability: c.Capability, Parameters: c.Parameters})
	}
	return steps
}

// dependencyOrder arranges steps so that a step producing a value another
// step requires runs first. It returns false when no dependency exists
// between any pair, meaning the steps are independent and may run in
// parallel. Cyclic dependencies also return false; running the steps
// concurrently is the only order that does not privilege one direction.
func dependencyOrder(steps []Step, snap *registry.Snapshot) ([]Step, bool) {
	n := len(steps)
	producedBy := make(map[string]int) // value name -> step index
	for i, s := range steps {
		desc, err := snap.Find(s.Capability)
		if err != nil {
			continue
		}
		for _, out := range desc.Produces {
			if _, taken := producedBy[out]; !taken {
				producedBy[out] = i
			}
		}
	}

	// deps[i] holds the step indexes step i needs output from.
	deps := make([][]int, n)
	hasDependency := false
	for i, s := range steps {
		desc, err := snap.Find(s.Capability)
		if err != nil {
			continue
		}
		for _, param := range desc.RequiredParams() {
			if s.Parameters[param] != "" {
				continue
			}
			if j, ok := producedBy[param]; ok && j != i {
				deps[i] = append(deps[i], j)
				hasDependency = true
			}
		}
	}
	if !hasDependency {
		return nil, false
	}

	// Kahn's algorithm, preferring earlier original positions so the order
	// is deterministic.
	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i, ds := range deps {
		for _, j := range ds {
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	ordered := make([]Step, 0, n)
	done := make([]bool, n)
	for len(ordered) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			// Cycle: no executable order exists.
			return nil, false
		}
		done[next] = true
		ordered = append(ordered, steps[next])
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}
	return ordered, true
}
