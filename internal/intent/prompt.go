package intent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tclaveria/concierge/internal/registry"
	"github.com/tclaveria/concierge/pkg/models"
)

const repairInstruction = `Your previous answer was not valid. Respond with ONLY a JSON array, no prose, no markdown fences. Each element must have the keys "capability", "parameters", "confidence", and "requires_collaboration".`

// buildSystemPrompt renders the capability catalog into classification
// instructions. The classifier may only name capabilities from the catalog.
func buildSystemPrompt(snap *registry.Snapshot) string {
	var b strings.Builder

	b.WriteString("You classify user requests against a capability catalog.\n")
	b.WriteString("Respond with a JSON array of candidate intents, confidence-sorted descending. ")
	b.WriteString("Each element: {\"capability\": string, \"parameters\": {string: string}, \"confidence\": number in [0,1], \"requires_collaboration\": bool}.\n")
	b.WriteString("Set requires_collaboration=true only when the request needs several capabilities together. ")
	b.WriteString("Use only capability names from the catalog. Extract parameter values verbatim from the request.\n")
	b.WriteString("Output the JSON array and nothing else.\n\n")
	b.WriteString("## Capability catalog\n")

	for _, d := range snap.List() {
		fmt.Fprintf(&b, "\n### %s\n%s\n", d.Name, d.Description)
		if len(d.Keywords) > 0 {
			fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(d.Keywords, ", "))
		}
		if len(d.Parameters) > 0 {
			b.WriteString("Parameters:\n")
			for _, p := range d.Parameters {
				req := "optional"
				if p.Required {
					req = "required"
				}
				fmt.Fprintf(&b, "- %s (%s, %s): %s\n", p.Name, p.Type, req, p.Description)
			}
		}
		if len(d.Examples) > 0 {
			b.WriteString("Example requests:\n")
			for _, ex := range d.Examples {
				fmt.Fprintf(&b, "- %q\n", ex)
			}
		}
	}

	return b.String()
}

// buildUserPrompt renders the request plus a bounded window of entity
// memory, so the classifier can resolve references like "that project".
func buildUserPrompt(text string, sess *models.Session, memoryWindow int) string {
	var b strings.Builder

	if sess != nil && len(sess.Memory) > 0 && memoryWindow > 0 {
		b.WriteString("## Session memory\n")
		keys := make([]string, 0, len(sess.Memory))
		for k := range sess.Memory {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > memoryWindow {
			keys = keys[len(keys)-memoryWindow:]
		}
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, sess.Memory[k])
		}
		b.WriteString("\n")
	}

	b.WriteString("## Request\n")
	b.WriteString(text)
	return b.String()
}
