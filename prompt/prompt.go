package prompt

import (
	"fmt"

	"github.com/hupe1980/promptmesh/model"
)

// Kind distinguishes plain-text from chat-structured template text.
type Kind string

const (
	// KindText templates resolve to a single prompt string.
	KindText Kind = "TEXT"
	// KindChat templates resolve to the system prompt of a chat exchange.
	KindChat Kind = "CHAT"
)

// Variant is one immutable configuration of a template: target model,
// template text with {{var}} placeholders, the declared input-variable set
// and the inference parameters to use with it.
type Variant struct {
	Name           string                `json:"name"`
	ModelID        string                `json:"model_id"`
	Kind           Kind                  `json:"kind"`
	InputVariables []string              `json:"input_variables"`
	Text           string                `json:"text"`
	Inference      model.InferenceConfig `json:"inference"`
}

// Template is a named, versioned prompt: an ordered append-only variant list
// plus a movable default variant pointer.
type Template struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Variants       []Variant `json:"variants"`
	DefaultVariant string    `json:"default_variant"`
}

// Resolved is the outcome of template resolution.
type Resolved struct {
	Template  string                `json:"template"`
	Variant   string                `json:"variant"`
	Kind      Kind                  `json:"kind"`
	Text      string                `json:"text"`
	ModelID   string                `json:"model_id"`
	Inference model.InferenceConfig `json:"inference"`
}

// DuplicateNameError signals a template or variant name collision.
type DuplicateNameError struct {
	Kind string // "template" or "variant"
	Name string
}

// Error implements the error interface.
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// VariableMismatchError signals that a variant's template text does not
// reference exactly its declared input-variable set.
type VariableMismatchError struct {
	Template   string
	Variant    string
	Declared   []string
	Referenced []string
}

// Error implements the error interface.
func (e *VariableMismatchError) Error() string {
	return fmt.Sprintf("template %q variant %q: declared variables %v do not match referenced placeholders %v",
		e.Template, e.Variant, e.Declared, e.Referenced)
}

// MissingVariableError signals a declared variable absent from the supplied
// variable map at resolution time.
type MissingVariableError struct {
	Template string
	Variant  string
	Variable string
}

// Error implements the error interface.
func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("template %q variant %q: missing variable %q", e.Template, e.Variant, e.Variable)
}

// NotFoundError signals an unknown template or variant name.
type NotFoundError struct {
	Kind string // "template" or "variant"
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}
