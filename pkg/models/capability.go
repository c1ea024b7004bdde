// Package models defines the core data types shared across the
// orchestration components: capabilities, sessions, turns, intents,
// execution results, and responses.
package models

import (
	"fmt"
	"strings"
)

// ParamType is the declared type of a capability parameter.
type ParamType string

const (
	// ParamString is a free-form string parameter.
	ParamString ParamType = "string"
	// ParamInt is an integer parameter.
	ParamInt ParamType = "int"
	// ParamBool is a boolean parameter.
	ParamBool ParamType = "bool"
)

// ParameterSpec declares a single parameter a capability accepts.
type ParameterSpec struct {
	// Name is the parameter name (e.g. "project_id").
	Name string `json:"name" yaml:"name"`
	// Type is the declared parameter type.
	Type ParamType `json:"type" yaml:"type"`
	// Required indicates the handler cannot run without this parameter.
	Required bool `json:"required" yaml:"required"`
	// Description explains the parameter to the classifier.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CapabilityDescriptor describes a registered handler: what it is called,
// how users tend to ask for it, what parameters it takes, and what memory
// keys it produces. Descriptors are registered at startup and read-only
// at runtime.
type CapabilityDescriptor struct {
	// Name is the unique capability name (e.g. "create_project").
	Name string `json:"name" yaml:"name"`
	// Description is a human-readable summary shown to the classifier.
	Description string `json:"description" yaml:"description"`
	// Examples are utterances that should map to this capability.
	Examples []string `json:"examples,omitempty" yaml:"examples,omitempty"`
	// Keywords are trigger words that hint at this capability.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	// Parameters is the declared parameter schema.
	Parameters []ParameterSpec `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	// Produces lists memory-hint keys this capability emits on success
	// (e.g. "project_id"). Used to order sequential dispatches.
	Produces []string `json:"produces,omitempty" yaml:"produces,omitempty"`
	// Priority breaks ties between equally-confident candidates.
	// Higher wins.
	Priority int `json:"priority" yaml:"priority"`
	// RequiresConfirmation parks a single dispatch of this capability until
	// the user confirms it (used for destructive operations).
	RequiresConfirmation bool `json:"requires_confirmation,omitempty" yaml:"requires_confirmation,omitempty"`
}

// Validate checks the descriptor is well-formed enough to register.
func (d *CapabilityDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("capability name must not be empty")
	}
	if strings.ContainsAny(d.Name, " \t\n") {
		return fmt.Errorf("capability name %q must not contain whitespace", d.Name)
	}
	seen := make(map[string]bool)
	for _, p := range d.Parameters {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("capability %s: parameter name must not be empty", d.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("capability %s: duplicate parameter %q", d.Name, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// RequiredParams returns the names of all required parameters.
func (d *CapabilityDescriptor) RequiredParams() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

// MatchesExample reports whether the input text exactly matches one of the
// registered example utterances, ignoring case and surrounding whitespace.
func (d *CapabilityDescriptor) MatchesExample(text string) bool {
	needle := strings.ToLower(strings.TrimSpace(text))
	for _, ex := range d.Examples {
		if strings.ToLower(strings.TrimSpace(ex)) == needle {
			return true
		}
	}
	return false
}
