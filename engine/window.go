package engine

import (
	"encoding/json"

	"github.com/hupe1980/promptmesh/core"
	"github.com/hupe1980/promptmesh/internal/util"
)

// messageTokens estimates the token cost of one transcript message.
func messageTokens(msg core.Message) int {
	n := 0
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case core.TextPart:
			n += util.EstimateTokens(part.Text)
		case core.ToolUsePart:
			n += util.EstimateTokens(part.ToolUse.Name) + util.EstimateTokens(part.ToolUse.Input)
		case core.ToolResultPart:
			n += util.EstimateTokens(part.ToolResult.Name)
			if part.ToolResult.Error != "" {
				n += util.EstimateTokens(part.ToolResult.Error)
			}
			if part.ToolResult.Content != nil {
				if b, err := json.Marshal(part.ToolResult.Content); err == nil {
					n += util.EstimateTokens(string(b))
				}
			}
		}
	}
	return n
}

// windowTokens estimates the token cost of a message window.
func windowTokens(msgs []core.Message) int {
	n := 0
	for _, m := range msgs {
		n += messageTokens(m)
	}
	return n
}

// lastUserIndex returns the index of the newest user message, or -1.
func lastUserIndex(msgs []core.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleUser {
			return i
		}
	}
	return -1
}

// pruneWindow fits msgs into budget by dropping the oldest messages first.
// The persisted transcript is untouched; only the request window shrinks.
// reserved is the fixed upfront cost of the request outside the message
// window (system prompt including any merged retrieval context) and counts
// against the budget but can never be pruned.
//
// Protected from pruning:
//   - the latest user message and everything after it
//   - the newest minRetained messages
//   - half of a tool-use / tool-result pair (pairs drop as a unit)
//
// Returns the retained window and its token estimate. If the estimate still
// exceeds the budget once only protected messages remain, pruning fails with
// ContextOverflowError.
func pruneWindow(conversationID string, msgs []core.Message, reserved, budget, minRetained int) ([]core.Message, int, error) {
	estimate := reserved + windowTokens(msgs)
	if budget <= 0 || estimate <= budget {
		return msgs, estimate, nil
	}

	protected := len(msgs) - minRetained
	if li := lastUserIndex(msgs); li >= 0 && li < protected {
		protected = li
	}
	if protected < 0 {
		protected = 0
	}

	start := 0
	for estimate > budget && start < protected {
		unit := 1
		if msgs[start].HasToolUse() && start+1 < len(msgs) && msgs[start+1].Role == core.RoleTool {
			unit = 2
		}
		if start+unit > protected {
			break
		}
		for i := 0; i < unit; i++ {
			estimate -= messageTokens(msgs[start])
			start++
		}
	}

	if estimate > budget {
		return nil, estimate, &ContextOverflowError{ConversationID: conversationID, Estimate: estimate, Budget: budget}
	}

	return msgs[start:], estimate, nil
}
