package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promptmesh/core"
)

func textMsg(role, text string) core.Message {
	return core.Message{Role: role, Parts: []core.Part{core.TextPart{Text: text}}}
}

func TestPruneWindow_NoPruningUnderBudget(t *testing.T) {
	msgs := []core.Message{
		textMsg(core.RoleUser, strings.Repeat("a", 40)),
		textMsg(core.RoleAssistant, strings.Repeat("b", 40)),
	}

	window, estimate, err := pruneWindow("c1", msgs, 0, 100, 2)
	require.NoError(t, err)
	assert.Len(t, window, 2)
	assert.Equal(t, 20, estimate)
}

func TestPruneWindow_DropsOldestFirst(t *testing.T) {
	msgs := []core.Message{
		textMsg(core.RoleUser, strings.Repeat("a", 40)),      // 10 tokens
		textMsg(core.RoleAssistant, strings.Repeat("b", 40)), // 10 tokens
		textMsg(core.RoleUser, strings.Repeat("c", 40)),      // 10 tokens
	}

	window, estimate, err := pruneWindow("c1", msgs, 0, 20, 1)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, core.RoleAssistant, window[0].Role)
	assert.Equal(t, 20, estimate)
}

func TestPruneWindow_NeverDropsLatestUserMessage(t *testing.T) {
	msgs := []core.Message{
		textMsg(core.RoleUser, strings.Repeat("a", 400)), // 100 tokens, over budget alone
	}

	_, _, err := pruneWindow("c1", msgs, 0, 10, 1)

	var overflow *ContextOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, "c1", overflow.ConversationID)
	assert.Equal(t, 100, overflow.Estimate)
	assert.Equal(t, 10, overflow.Budget)
}

func TestPruneWindow_ToolPairDropsAsUnit(t *testing.T) {
	toolUse := core.Message{Role: core.RoleAssistant, Parts: []core.Part{
		core.ToolUsePart{ToolUse: core.ToolUse{ID: "c1", Name: "lookup", Input: strings.Repeat("x", 40)}},
	}}
	toolResult := core.NewToolResultMessage(core.ToolResult{CallID: "c1", Name: "lookup", Content: strings.Repeat("y", 40)})

	msgs := []core.Message{
		textMsg(core.RoleUser, strings.Repeat("a", 40)),
		toolUse,
		toolResult,
		textMsg(core.RoleAssistant, strings.Repeat("b", 40)),
		textMsg(core.RoleUser, strings.Repeat("c", 40)),
	}

	total := windowTokens(msgs)
	// A budget just below total forces pruning; the first drop removes the
	// lone user message, the next drop must take use and result together.
	budget := total - messageTokens(msgs[0]) - 1

	window, _, err := pruneWindow("c1", msgs, 0, budget, 1)
	require.NoError(t, err)

	for _, m := range window {
		if m.HasToolUse() {
			t.Fatalf("tool-use message survived without its result pair being checked")
		}
		assert.NotEqual(t, core.RoleTool, m.Role)
	}
	require.Len(t, window, 2)
	assert.Equal(t, core.RoleAssistant, window[0].Role)
	assert.Equal(t, core.RoleUser, window[1].Role)
}

func TestPruneWindow_ReservedCostCountsAgainstBudget(t *testing.T) {
	msgs := []core.Message{
		textMsg(core.RoleUser, strings.Repeat("a", 40)),      // 10 tokens
		textMsg(core.RoleAssistant, strings.Repeat("b", 40)), // 10 tokens
		textMsg(core.RoleUser, strings.Repeat("c", 40)),      // 10 tokens
	}

	// The three messages alone fit the budget; the reserved system-prompt
	// cost forces the two oldest out.
	window, estimate, err := pruneWindow("c1", msgs, 25, 40, 1)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, core.RoleUser, window[0].Role)
	assert.Equal(t, 35, estimate)
}

func TestPruneWindow_ReservedAloneOverflows(t *testing.T) {
	msgs := []core.Message{
		textMsg(core.RoleUser, strings.Repeat("a", 40)), // 10 tokens
	}

	_, _, err := pruneWindow("c1", msgs, 100, 50, 1)

	var overflow *ContextOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, 110, overflow.Estimate)
	assert.Equal(t, 50, overflow.Budget)
}

func TestPruneWindow_RetainedFloor(t *testing.T) {
	msgs := []core.Message{
		textMsg(core.RoleUser, strings.Repeat("a", 40)),
		textMsg(core.RoleAssistant, strings.Repeat("b", 400)), // 100 tokens
		textMsg(core.RoleUser, strings.Repeat("c", 40)),
	}

	// The big assistant message sits inside the retained floor of 2.
	_, _, err := pruneWindow("c1", msgs, 0, 50, 2)

	var overflow *ContextOverflowError
	require.ErrorAs(t, err, &overflow)
}
