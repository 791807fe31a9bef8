package guardrail

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Action is the outcome of a guardrail evaluation.
type Action string

const (
	// ActionPass leaves the text unchanged.
	ActionPass Action = "PASS"
	// ActionBlock terminates the turn with the configured policy message.
	ActionBlock Action = "BLOCK"
	// ActionAnonymize rewrites matched spans and continues processing.
	ActionAnonymize Action = "ANONYMIZE"
)

// Direction selects the evaluation checkpoint.
type Direction string

const (
	// DirectionInput evaluates user input before model invocation.
	DirectionInput Direction = "input"
	// DirectionOutput evaluates the model response before emission.
	DirectionOutput Direction = "output"
)

// Severity grades content-category matches.
type Severity int

const (
	// SeverityNone matches nothing.
	SeverityNone Severity = iota
	// SeverityLow is informational.
	SeverityLow
	// SeverityMedium is the default filter threshold.
	SeverityMedium
	// SeverityHigh always blocks when filtered.
	SeverityHigh
)

// String returns the lowercase label used in policy documents.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "none"
	}
}

// UnmarshalYAML parses a severity label.
func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var label string
	if err := value.Decode(&label); err != nil {
		return err
	}
	switch label {
	case "none", "":
		*s = SeverityNone
	case "low":
		*s = SeverityLow
	case "medium":
		*s = SeverityMedium
	case "high":
		*s = SeverityHigh
	default:
		return fmt.Errorf("unknown severity %q", label)
	}
	return nil
}

// MarshalYAML emits the lowercase severity label.
func (s Severity) MarshalYAML() (interface{}, error) { return s.String(), nil }

// TopicRule denies an entire topic. A rule matches when any of its keywords
// appears in the evaluated text (case-insensitive substring).
type TopicRule struct {
	Name       string   `yaml:"name"`
	Definition string   `yaml:"definition,omitempty"`
	Keywords   []string `yaml:"keywords"`
}

// CategoryFilter assigns a severity to a content category via its term list.
// A match at or above Threshold blocks; the highest-severity matching
// category decides the reported rule.
type CategoryFilter struct {
	Category  string   `yaml:"category"`
	Severity  Severity `yaml:"severity"`
	Threshold Severity `yaml:"threshold"`
	Terms     []string `yaml:"terms"`
}

// PIIAction configures handling of one detected PII entity kind.
// Valid entities are listed in pii.go; valid actions are BLOCK and ANONYMIZE.
type PIIAction struct {
	Entity string `yaml:"entity"`
	Action Action `yaml:"action"`
}

// Policy is a complete guardrail configuration evaluated by a Pipeline.
type Policy struct {
	Name string `yaml:"name"`

	// Stage 1: topic-deny rules.
	DeniedTopics []TopicRule `yaml:"denied_topics,omitempty"`

	// Stage 2: content-category filters.
	ContentFilters []CategoryFilter `yaml:"content_filters,omitempty"`

	// Stage 3: word/phrase block list plus named managed lists ("profanity").
	BlockedWords     []string `yaml:"blocked_words,omitempty"`
	ManagedWordLists []string `yaml:"managed_word_lists,omitempty"`

	// Stage 4: per-entity PII action table.
	PIIActions []PIIAction `yaml:"pii_actions,omitempty"`

	// Stage 5 (output only): grounding/relevance thresholds in [0,1].
	// Zero disables the check.
	GroundingThreshold float64 `yaml:"grounding_threshold,omitempty"`
	RelevanceThreshold float64 `yaml:"relevance_threshold,omitempty"`

	// Substituted response text on BLOCK.
	BlockedInputMessage  string `yaml:"blocked_input_message"`
	BlockedOutputMessage string `yaml:"blocked_output_message"`
}

// BlockedMessage returns the policy message for the given direction.
func (p Policy) BlockedMessage(direction Direction) string {
	if direction == DirectionOutput {
		if p.BlockedOutputMessage != "" {
			return p.BlockedOutputMessage
		}
		return "The response was blocked by the configured guardrail policy."
	}
	if p.BlockedInputMessage != "" {
		return p.BlockedInputMessage
	}
	return "Sorry, I cannot help with that request."
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse guardrail policy: %w", err)
	}
	return &p, nil
}

// LoadPolicy reads and decodes a YAML policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read guardrail policy: %w", err)
	}
	return ParsePolicy(data)
}
