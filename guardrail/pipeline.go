package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hupe1980/promptmesh/logging"
)

// MatchedRule records one rule hit during evaluation.
type MatchedRule struct {
	Stage  string `json:"stage"`  // "topic", "category", "word", "pii", "grounding"
	Rule   string `json:"rule"`   // Rule / entity / category identifier
	Action Action `json:"action"` // Action the rule contributed
}

// Result is the outcome of evaluating one checkpoint.
type Result struct {
	Action        Action        `json:"action"`
	RewrittenText string        `json:"rewritten_text,omitempty"` // Set when Action == ANONYMIZE
	MatchedRules  []MatchedRule `json:"matched_rules,omitempty"`
}

// Blocked is the error-shaped record of a guardrail block. It is a normal
// terminal outcome for a turn, not an exception; the engine substitutes the
// policy message and keeps the conversation usable.
type Blocked struct {
	Direction Direction
	Rule      MatchedRule
}

// Error implements the error interface.
func (b *Blocked) Error() string {
	return fmt.Sprintf("guardrail blocked %s (stage=%s, rule=%s)", b.Direction, b.Rule.Stage, b.Rule.Rule)
}

// Evaluator is the guardrail evaluation capability consumed by the engine.
// groundingContext carries the assembled retrieval context for output checks;
// it is empty when the turn used no retrieval.
type Evaluator interface {
	Evaluate(ctx context.Context, text string, direction Direction, groundingContext string) (*Result, error)
}

// Options configures a Pipeline.
type Options struct {
	Logger logging.Logger
}

// Pipeline evaluates a Policy in fixed precedence order. It is stateless
// after construction and safe for concurrent use.
type Pipeline struct {
	policy Policy
	logger logging.Logger
}

// NewPipeline creates a Pipeline for the given policy.
func NewPipeline(policy Policy, optFns ...func(o *Options)) *Pipeline {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Pipeline{policy: policy, logger: opts.Logger}
}

// Policy returns the evaluated policy.
func (p *Pipeline) Policy() Policy { return p.policy }

// Evaluate implements Evaluator. The first matching stage short-circuits with
// BLOCK; PII anonymization rewrites and continues; the output-only grounding
// stage runs last against the (possibly rewritten) text.
func (p *Pipeline) Evaluate(ctx context.Context, text string, direction Direction, groundingContext string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	lowered := strings.ToLower(text)

	// Stage 1: topic-deny rules.
	for _, topic := range p.policy.DeniedTopics {
		for _, kw := range topic.Keywords {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				return p.block(direction, MatchedRule{Stage: "topic", Rule: topic.Name, Action: ActionBlock}, start), nil
			}
		}
	}

	// Stage 2: content-category filters; the highest-severity matching
	// category decides.
	var worst *CategoryFilter
	for i, filter := range p.policy.ContentFilters {
		if filter.Severity < filter.Threshold {
			continue
		}
		for _, term := range filter.Terms {
			if term != "" && strings.Contains(lowered, strings.ToLower(term)) {
				if worst == nil || filter.Severity > worst.Severity {
					worst = &p.policy.ContentFilters[i]
				}
				break
			}
		}
	}
	if worst != nil {
		return p.block(direction, MatchedRule{Stage: "category", Rule: worst.Category, Action: ActionBlock}, start), nil
	}

	// Stage 3: word/phrase list and managed lists.
	for _, word := range p.blockedWordList() {
		if word != "" && strings.Contains(lowered, strings.ToLower(word)) {
			return p.block(direction, MatchedRule{Stage: "word", Rule: word, Action: ActionBlock}, start), nil
		}
	}

	// Stage 4: PII entity detection. Any span whose entity action is BLOCK
	// wins over ANONYMIZE, including on overlapping spans.
	var matched []MatchedRule
	current := text
	if len(p.policy.PIIActions) > 0 {
		spans := detectPII(text, p.policy.PIIActions)
		if len(spans) > 0 {
			actionFor := map[string]Action{}
			for _, a := range p.policy.PIIActions {
				actionFor[a.Entity] = a.Action
			}
			for _, s := range spans {
				if actionFor[s.entity] == ActionBlock {
					return p.block(direction, MatchedRule{Stage: "pii", Rule: s.entity, Action: ActionBlock}, start), nil
				}
			}
			current = anonymizeSpans(text, spans)
			seen := map[string]bool{}
			for _, s := range spans {
				if !seen[s.entity] {
					seen[s.entity] = true
					matched = append(matched, MatchedRule{Stage: "pii", Rule: s.entity, Action: ActionAnonymize})
				}
			}
		}
	}

	// Stage 5 (output only): grounding/relevance against assembled context.
	if direction == DirectionOutput && groundingContext != "" {
		score := overlapScore(current, groundingContext)
		threshold := p.policy.GroundingThreshold
		if p.policy.RelevanceThreshold > threshold {
			threshold = p.policy.RelevanceThreshold
		}
		if threshold > 0 && score < threshold {
			return p.block(direction, MatchedRule{Stage: "grounding", Rule: fmt.Sprintf("score=%.2f", score), Action: ActionBlock}, start), nil
		}
	}

	if len(matched) > 0 {
		if o, ok := p.logger.(guardrailObserver); ok {
			o.LogGuardrail(string(direction), string(ActionAnonymize), len(matched), time.Since(start))
		} else {
			p.logger.Debug("guardrail.anonymized", "direction", string(direction), "entities", len(matched), "duration_ms", time.Since(start).Milliseconds())
		}
		return &Result{Action: ActionAnonymize, RewrittenText: current, MatchedRules: matched}, nil
	}

	if o, ok := p.logger.(guardrailObserver); ok {
		o.LogGuardrail(string(direction), string(ActionPass), 0, time.Since(start))
	}
	return &Result{Action: ActionPass}, nil
}

// guardrailObserver is the richer checkpoint-logging surface offered by
// logging.MeshLogger. Plain Loggers fall back to generic log lines.
type guardrailObserver interface {
	LogGuardrail(direction, action string, matchedRules int, dur time.Duration)
}

// block builds a BLOCK result and logs the outcome.
func (p *Pipeline) block(direction Direction, rule MatchedRule, start time.Time) *Result {
	if o, ok := p.logger.(guardrailObserver); ok {
		o.LogGuardrail(string(direction), string(ActionBlock), 1, time.Since(start))
	} else {
		p.logger.Warn("guardrail.blocked", "direction", string(direction), "stage", rule.Stage, "rule", rule.Rule, "duration_ms", time.Since(start).Milliseconds())
	}
	return &Result{Action: ActionBlock, MatchedRules: []MatchedRule{rule}}
}

// blockedWordList merges the policy's explicit word list with any referenced
// managed lists. The merge happens in a fresh slice so spare capacity in the
// policy-owned slice is never written through.
func (p *Pipeline) blockedWordList() []string {
	words := make([]string, 0, len(p.policy.BlockedWords))
	words = append(words, p.policy.BlockedWords...)
	for _, name := range p.policy.ManagedWordLists {
		words = append(words, managedLists[name]...)
	}
	return words
}

// managedLists holds the built-in word lists referenced by name from a policy.
// A production deployment would source these from a managed policy service.
var managedLists = map[string][]string{
	"profanity": {"damn it", "goddamn"},
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// overlapScore is the deterministic grounding heuristic: the fraction of
// content tokens (length > 3) of text that also occur in context. Texts with
// no content tokens score 1.
func overlapScore(text, context string) float64 {
	contextTokens := map[string]bool{}
	for _, tok := range tokenRe.FindAllString(strings.ToLower(context), -1) {
		contextTokens[tok] = true
	}

	total := 0
	hits := 0
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(tok) <= 3 {
			continue
		}
		total++
		if contextTokens[tok] {
			hits++
		}
	}

	if total == 0 {
		return 1
	}
	return float64(hits) / float64(total)
}
