// Package intent turns raw user text into confidence-ranked capability
// candidates. Resolution calls one external classification capability and
// constrains its output to the registered catalog.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/tclaveria/concierge/internal/config"
	"github.com/tclaveria/concierge/internal/registry"
	"github.com/tclaveria/concierge/internal/session"
	"github.com/tclaveria/concierge/pkg/models"
)

// Classifier is the external classification capability. The api package
// provides the production implementation; tests substitute fakes.
type Classifier interface {
	Classify(ctx context.Context, system, user string) (string, error)
}

// ClassificationError means the classifier was unusable: the call failed or
// its output could not be parsed even after the repair attempt.
type ClassificationError struct {
	Attempts int
	Cause    error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ClassificationError) Unwrap() error {
	return e.Cause
}

// Resolution is the resolver's output for one turn: candidates sorted by
// confidence descending, plus the ambiguity verdict the router consumes.
type Resolution struct {
	Candidates []models.IntentCandidate
	// Ambiguous is set when the top two candidates name different
	// capabilities and sit within the configured confidence window.
	// The router must clarify rather than guess.
	Ambiguous bool
}

// Top returns the highest-confidence candidate, or nil if there is none.
func (r *Resolution) Top() *models.IntentCandidate {
	if len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// exactMatchConfidence is assigned when input text exactly matches a
// registered example utterance. An exact match always ends up as the top
// candidate, even when the classifier disagrees or is unavailable.
const exactMatchConfidence = 0.95

// Resolver maps user text to capability candidates.
type Resolver struct {
	classifier Classifier
	cfg        config.ResolverConfig
}

// NewResolver creates a Resolver backed by the given classifier.
func NewResolver(classifier Classifier, cfg config.ResolverConfig) *Resolver {
	return &Resolver{classifier: classifier, cfg: cfg}
}

// Resolve classifies text against the catalog snapshot. Candidates come back
// confidence-sorted with missing required parameters backfilled from session
// memory. A transport failure is retried once; unparseable output gets one
// repair re-prompt with a stricter instruction. After that it fails with
// ClassificationError, unless the text exactly matched a registered example
// utterance; in that case the match stands on its own.
func (r *Resolver) Resolve(ctx context.Context, text string, sess *models.Session, snap *registry.Snapshot) (*Resolution, error) {
	matched, hasMatch := r.exactMatch(text, snap)

	// When the match alone carries everything its handler needs, skip the
	// classifier entirely. The turn is deterministic.
	if hasMatch && r.paramsSatisfiable(matched, sess, snap) {
		res := &Resolution{Candidates: []models.IntentCandidate{{
			Capability: matched,
			Parameters: map[string]string{},
			Confidence: exactMatchConfidence,
		}}}
		r.backfillFromMemory(res, sess, snap)
		return res, nil
	}

	system := buildSystemPrompt(snap)
	user := buildUserPrompt(text, sess, r.cfg.MemoryWindow)

	candidates, err := r.classifyAndParse(ctx, system, user, snap)
	if err != nil {
		if hasMatch {
			// The classifier was only needed for parameter extraction.
			// Fall back to the bare match rather than failing the turn.
			log.Printf("[intent] classifier unusable, falling back to exact match %q: %v", matched, err)
			res := &Resolution{Candidates: []models.IntentCandidate{{
				Capability: matched,
				Parameters: map[string]string{},
				Confidence: exactMatchConfidence,
			}}}
			r.backfillFromMemory(res, sess, snap)
			return res, nil
		}
		return nil, err
	}

	res := &Resolution{Candidates: candidates}
	if hasMatch {
		promote(res, matched)
	}
	r.backfillFromMemory(res, sess, snap)
	if !hasMatch {
		r.markAmbiguity(res)
	}
	return res, nil
}

// classifyAndParse runs the classification call with the repair protocol:
// one transport retry, then one stricter re-prompt for unparseable output.
func (r *Resolver) classifyAndParse(ctx context.Context, system, user string, snap *registry.Snapshot) ([]models.IntentCandidate, error) {
	raw, err := r.classify(ctx, system, user)
	if err != nil {
		return nil, err
	}

	candidates, parseErr := parseCandidates(raw, snap)
	if parseErr == nil {
		return candidates, nil
	}

	log.Printf("[intent] unparseable classifier output, re-prompting: %v", parseErr)
	raw, err = r.classify(ctx, system, user+"\n\n"+repairInstruction)
	if err != nil {
		return nil, err
	}
	candidates, parseErr = parseCandidates(raw, snap)
	if parseErr != nil {
		return nil, &ClassificationError{Attempts: 2, Cause: parseErr}
	}
	return candidates, nil
}

// classify makes the external call with the configured deadline, retrying
// once on transport failure.
func (r *Resolver) classify(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= 2; attempt++ {
		attempts = attempt
		callCtx := ctx
		var cancel context.CancelFunc
		if r.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		}
		raw, err := r.classifier.Classify(callCtx, system, user)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return raw, nil
		}
		lastErr = err
		log.Printf("[intent] classifier call failed (attempt %d): %v", attempt, err)
		if ctx.Err() != nil {
			break
		}
	}
	return "", &ClassificationError{Attempts: attempts, Cause: lastErr}
}

// exactMatch returns the capability whose example utterances contain the
// input text verbatim. With several matches the lexicographically-first
// capability wins so the outcome stays deterministic.
func (r *Resolver) exactMatch(text string, snap *registry.Snapshot) (string, bool) {
	for _, name := range snap.Names() {
		d, _ := snap.Find(name)
		if d.MatchesExample(text) {
			return d.Name, true
		}
	}
	return "", false
}

// paramsSatisfiable reports whether every required parameter of the
// capability can be filled from session memory alone.
func (r *Resolver) paramsSatisfiable(capability string, sess *models.Session, snap *registry.Snapshot) bool {
	desc, err := snap.Find(capability)
	if err != nil {
		return false
	}
	for _, param := range desc.RequiredParams() {
		if sess == nil {
			return false
		}
		if _, ok := memoryValueFor(sess, param); !ok {
			return false
		}
	}
	return true
}

// promote forces the exactly-matched capability to the top of the candidate
// list, keeping any parameters the classifier extracted for it.
func promote(res *Resolution, capability string) {
	for i := range res.Candidates {
		if res.Candidates[i].Capability != capability {
			continue
		}
		cand := res.Candidates[i]
		if cand.Confidence < exactMatchConfidence {
			cand.Confidence = exactMatchConfidence
		}
		res.Candidates = append(res.Candidates[:i], res.Candidates[i+1:]...)
		res.Candidates = append([]models.IntentCandidate{cand}, res.Candidates...)
		return
	}
	res.Candidates = append([]models.IntentCandidate{{
		Capability: capability,
		Parameters: map[string]string{},
		Confidence: exactMatchConfidence,
	}}, res.Candidates...)
}

// backfillFromMemory fills missing required parameters from the session's
// entity memory, so "genera el charter" can reuse last_project_id without
// the user repeating it.
func (r *Resolver) backfillFromMemory(res *Resolution, sess *models.Session, snap *registry.Snapshot) {
	if sess == nil || len(sess.Memory) == 0 {
		return
	}
	for i := range res.Candidates {
		cand := &res.Candidates[i]
		desc, err := snap.Find(cand.Capability)
		if err != nil {
			continue
		}
		for _, param := range desc.RequiredParams() {
			if cand.Parameters[param] != "" {
				continue
			}
			if value, ok := memoryValueFor(sess, param); ok {
				if cand.Parameters == nil {
					cand.Parameters = map[string]string{}
				}
				cand.Parameters[param] = value
			}
		}
	}
}

// memoryValueFor finds a memory entry matching a parameter name: an exact
// key, the "last_<param>" convention handlers use for memory hints, and
// finally reference resolution, which covers keys like "active_project_id"
// that only share tokens with the parameter name.
func memoryValueFor(sess *models.Session, param string) (string, bool) {
	if v, ok := sess.Recall(param); ok {
		return v, true
	}
	if v, ok := sess.Recall("last_" + param); ok {
		return v, true
	}
	if _, v, ok := session.ResolveReference(sess, param); ok {
		return v, true
	}
	return "", false
}

// markAmbiguity flags the resolution when the top two candidates map to
// different capabilities within the configured confidence window and the top
// one is strong enough to act on. Candidates that jointly flag collaboration
// are complementary parts of one request, not competing interpretations, so
// they are never marked ambiguous; the router plans them together instead.
func (r *Resolver) markAmbiguity(res *Resolution) {
	if len(res.Candidates) < 2 {
		return
	}
	first, second := res.Candidates[0], res.Candidates[1]
	if first.Capability == second.Capability {
		return
	}
	if first.RequiresCollaboration && second.RequiresCollaboration {
		return
	}
	if first.Confidence < r.cfg.ConfidenceThreshold {
		return
	}
	if first.Confidence-second.Confidence <= r.cfg.AmbiguityWindow {
		res.Ambiguous = true
	}
}

// candidateWire is the JSON schema the classifier is instructed to emit.
type candidateWire struct {
	Capability            string            `json:"capability"`
	Parameters            map[string]string `json:"parameters"`
	Confidence            float64           `json:"confidence"`
	RequiresCollaboration bool              `json:"requires_collaboration"`
}

// parseCandidates extracts the JSON array from classifier output and
// validates each entry against the catalog snapshot. Entries naming unknown
// capabilities are dropped; confidences are clamped into [0,1]. An output
// with no array, or no valid entries, is a parse failure.
func parseCandidates(raw string, snap *registry.Snapshot) ([]models.IntentCandidate, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in classifier output")
	}

	var wire []candidateWire
	if err := json.Unmarshal([]byte(raw[start:end+1]), &wire); err != nil {
		return nil, fmt.Errorf("decode classifier output: %w", err)
	}

	var candidates []models.IntentCandidate
	for _, w := range wire {
		if _, err := snap.Find(w.Capability); err != nil {
			log.Printf("[intent] dropping candidate for unregistered capability %q", w.Capability)
			continue
		}
		conf := w.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}
		params := w.Parameters
		if params == nil {
			params = map[string]string{}
		}
		candidates = append(candidates, models.IntentCandidate{
			Capability:            w.Capability,
			Parameters:            params,
			Confidence:            conf,
			RequiresCollaboration: w.RequiresCollaboration,
		})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("classifier output contained no valid candidates")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Capability < candidates[j].Capability
	})
	return candidates, nil
}
