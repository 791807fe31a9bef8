package guardrail

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promptmesh/logging"
)

func retirementPolicy() Policy {
	return Policy{
		Name: "advice-policy",
		DeniedTopics: []TopicRule{
			{
				Name:       "Fiduciary Advice",
				Definition: "Providing personalized financial or investment advice.",
				Keywords:   []string{"invest", "retirement", "portfolio"},
			},
		},
		BlockedInputMessage: "I can't help with personalized financial advice.",
	}
}

func TestPipeline_TopicDeny(t *testing.T) {
	p := NewPipeline(retirementPolicy())

	result, err := p.Evaluate(context.Background(), "What stocks should I invest in for my retirement?", DirectionInput, "")
	require.NoError(t, err)

	assert.Equal(t, ActionBlock, result.Action)
	require.Len(t, result.MatchedRules, 1)
	assert.Equal(t, "topic", result.MatchedRules[0].Stage)
	assert.Equal(t, "Fiduciary Advice", result.MatchedRules[0].Rule)
	assert.Equal(t, "I can't help with personalized financial advice.", p.Policy().BlockedMessage(DirectionInput))
}

func TestPipeline_Pass(t *testing.T) {
	p := NewPipeline(retirementPolicy())

	result, err := p.Evaluate(context.Background(), "What is the weather like in Hamburg today?", DirectionInput, "")
	require.NoError(t, err)

	assert.Equal(t, ActionPass, result.Action)
	assert.Empty(t, result.MatchedRules)
}

func TestPipeline_CategoryFilter(t *testing.T) {
	p := NewPipeline(Policy{
		ContentFilters: []CategoryFilter{
			{Category: "violence", Severity: SeverityLow, Threshold: SeverityMedium, Terms: []string{"fight"}},
			{Category: "hate", Severity: SeverityHigh, Threshold: SeverityMedium, Terms: []string{"slur"}},
		},
	})

	// Below threshold: passes.
	result, err := p.Evaluate(context.Background(), "a fight broke out", DirectionInput, "")
	require.NoError(t, err)
	assert.Equal(t, ActionPass, result.Action)

	// At or above threshold: blocked, highest severity category reported.
	result, err = p.Evaluate(context.Background(), "a fight and a slur", DirectionInput, "")
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, result.Action)
	require.Len(t, result.MatchedRules, 1)
	assert.Equal(t, "hate", result.MatchedRules[0].Rule)
}

func TestPipeline_BlockedWords(t *testing.T) {
	p := NewPipeline(Policy{
		BlockedWords:     []string{"free money"},
		ManagedWordLists: []string{"profanity"},
	})

	result, err := p.Evaluate(context.Background(), "Click here for FREE MONEY now", DirectionInput, "")
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, result.Action)
	assert.Equal(t, "word", result.MatchedRules[0].Stage)

	result, err = p.Evaluate(context.Background(), "goddamn printers", DirectionInput, "")
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, result.Action)
}

type checkpointRecorder struct {
	logging.NoOpLogger
	outcomes []string
}

func (r *checkpointRecorder) LogGuardrail(direction, action string, matchedRules int, dur time.Duration) {
	r.outcomes = append(r.outcomes, fmt.Sprintf("%s/%s/%d", direction, action, matchedRules))
}

func TestPipeline_ReportsCheckpointOutcomes(t *testing.T) {
	rec := &checkpointRecorder{}
	p := NewPipeline(retirementPolicy(), func(o *Options) {
		o.Logger = rec
	})

	_, err := p.Evaluate(context.Background(), "How should I invest my savings?", DirectionInput, "")
	require.NoError(t, err)
	_, err = p.Evaluate(context.Background(), "What are your opening hours?", DirectionInput, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"input/BLOCK/1", "input/PASS/0"}, rec.outcomes)
}

func TestPipeline_ManagedListsNeverMutatePolicyWords(t *testing.T) {
	backing := make([]string, 2, 8)
	backing[0] = "free money"
	backing[1] = "sentinel"

	p := NewPipeline(Policy{
		BlockedWords:     backing[:1],
		ManagedWordLists: []string{"profanity"},
	})

	_, err := p.Evaluate(context.Background(), "perfectly clean text", DirectionInput, "")
	require.NoError(t, err)

	// Spare capacity behind the policy slice must stay untouched by the
	// managed-list merge.
	assert.Equal(t, "sentinel", backing[1])
}

func TestPipeline_PIIAnonymize(t *testing.T) {
	p := NewPipeline(Policy{
		PIIActions: []PIIAction{
			{Entity: PIIEmail, Action: ActionAnonymize},
			{Entity: PIIPhone, Action: ActionAnonymize},
		},
	})

	result, err := p.Evaluate(context.Background(), "Reach me at jane@example.com or 555-123-4567.", DirectionInput, "")
	require.NoError(t, err)

	assert.Equal(t, ActionAnonymize, result.Action)
	assert.Equal(t, "Reach me at {EMAIL} or {PHONE}.", result.RewrittenText)
	assert.Len(t, result.MatchedRules, 2)
}

func TestPipeline_PIIBlockWinsOverAnonymize(t *testing.T) {
	p := NewPipeline(Policy{
		PIIActions: []PIIAction{
			{Entity: PIIEmail, Action: ActionAnonymize},
			{Entity: PIISSN, Action: ActionBlock},
		},
	})

	result, err := p.Evaluate(context.Background(), "jane@example.com SSN 123-45-6789", DirectionInput, "")
	require.NoError(t, err)

	assert.Equal(t, ActionBlock, result.Action)
	assert.Equal(t, PIISSN, result.MatchedRules[0].Rule)
	assert.Empty(t, result.RewrittenText)
}

func TestPipeline_GroundingOutputOnly(t *testing.T) {
	p := NewPipeline(Policy{GroundingThreshold: 0.6})

	groundingContext := "The refund policy allows returns within thirty days of purchase."

	// Grounded answer passes.
	result, err := p.Evaluate(context.Background(), "Returns are allowed within thirty days of purchase.", DirectionOutput, groundingContext)
	require.NoError(t, err)
	assert.Equal(t, ActionPass, result.Action)

	// Ungrounded answer is blocked on output.
	result, err = p.Evaluate(context.Background(), "Quantum teleportation enables instantaneous shipping everywhere.", DirectionOutput, groundingContext)
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, result.Action)
	assert.Equal(t, "grounding", result.MatchedRules[0].Stage)

	// The same text on input is never grounding-checked.
	result, err = p.Evaluate(context.Background(), "Quantum teleportation enables instantaneous shipping everywhere.", DirectionInput, groundingContext)
	require.NoError(t, err)
	assert.Equal(t, ActionPass, result.Action)

	// No context means no grounding check.
	result, err = p.Evaluate(context.Background(), "Quantum teleportation enables instantaneous shipping everywhere.", DirectionOutput, "")
	require.NoError(t, err)
	assert.Equal(t, ActionPass, result.Action)
}

func TestPipeline_TopicPrecedesPII(t *testing.T) {
	p := NewPipeline(Policy{
		DeniedTopics: []TopicRule{{Name: "Fiduciary Advice", Keywords: []string{"invest"}}},
		PIIActions:   []PIIAction{{Entity: PIIEmail, Action: ActionAnonymize}},
	})

	result, err := p.Evaluate(context.Background(), "invest tips to jane@example.com", DirectionInput, "")
	require.NoError(t, err)

	assert.Equal(t, ActionBlock, result.Action)
	assert.Equal(t, "topic", result.MatchedRules[0].Stage)
}

func TestParsePolicyYAML(t *testing.T) {
	data := []byte(`
name: support-policy
denied_topics:
  - name: Fiduciary Advice
    definition: Personalized investment advice.
    keywords: [invest, retirement]
content_filters:
  - category: hate
    severity: high
    threshold: medium
    terms: [slur]
blocked_words: [free money]
pii_actions:
  - entity: email
    action: ANONYMIZE
  - entity: ssn
    action: BLOCK
grounding_threshold: 0.55
blocked_input_message: "Sorry, I can't help with that request."
`)

	policy, err := ParsePolicy(data)
	require.NoError(t, err)

	assert.Equal(t, "support-policy", policy.Name)
	require.Len(t, policy.DeniedTopics, 1)
	assert.Equal(t, []string{"invest", "retirement"}, policy.DeniedTopics[0].Keywords)
	require.Len(t, policy.ContentFilters, 1)
	assert.Equal(t, SeverityHigh, policy.ContentFilters[0].Severity)
	assert.Equal(t, SeverityMedium, policy.ContentFilters[0].Threshold)
	require.Len(t, policy.PIIActions, 2)
	assert.Equal(t, ActionBlock, policy.PIIActions[1].Action)
	assert.InDelta(t, 0.55, policy.GroundingThreshold, 1e-9)
	assert.Equal(t, "Sorry, I can't help with that request.", policy.BlockedMessage(DirectionInput))
	assert.NotEmpty(t, policy.BlockedMessage(DirectionOutput))
}
