package router

import (
	"sort"
	"strings"

	"github.com/tclaveria/concierge/internal/registry"
	"github.com/tclaveria/concierge/pkg/models"
)

// sortCandidates orders candidates by confidence descending, breaking ties
// between different capabilities by registered priority (higher wins), then
// by example-overlap with the input, then by name for determinism.
func sortCandidates(candidates []models.IntentCandidate, snap *registry.Snapshot, inputText string) {
	priority := func(name string) int {
		d, err := snap.Find(name)
		if err != nil {
			return 0
		}
		return d.Priority
	}
	overlap := func(name string) int {
		d, err := snap.Find(name)
		if err != nil {
			return 0
		}
		return exampleOverlap(inputText, &d)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if pa, pb := priority(a.Capability), priority(b.Capability); pa != pb {
			return pa > pb
		}
		if oa, ob := overlap(a.Capability), overlap(b.Capability); oa != ob {
			return oa > ob
		}
		return a.Capability < b.Capability
	})
}

// exampleOverlap scores how many input tokens appear in the descriptor's
// example utterances or keywords. Higher means a closer textual match.
func exampleOverlap(inputText string, d *models.CapabilityDescriptor) int {
	corpus := make(map[string]bool)
	for _, ex := range d.Examples {
		for _, tok := range tokenize(ex) {
			corpus[tok] = true
		}
	}
	for _, kw := range d.Keywords {
		for _, tok := range tokenize(kw) {
			corpus[tok] = true
		}
	}

	score := 0
	seen := make(map[string]bool)
	for _, tok := range tokenize(inputText) {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		if corpus[tok] {
			score++
		}
	}
	return score
}

// closestCapability names the registered capability whose examples overlap
// the input most, for the reject suggestion. Empty when nothing overlaps.
func closestCapability(inputText string, snap *registry.Snapshot) string {
	best := ""
	bestScore := 0
	for _, d := range snap.List() {
		if score := exampleOverlap(inputText, &d); score > bestScore {
			bestScore = score
			best = d.Name
		}
	}
	return best
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}
