package engine

import (
	"context"
	"time"

	"github.com/hupe1980/promptmesh/core"
	"github.com/hupe1980/promptmesh/guardrail"
	"github.com/hupe1980/promptmesh/internal/util"
	"github.com/hupe1980/promptmesh/model"
)

// fallbackToolLimitMessage is appended when a turn exhausts its tool budget.
const fallbackToolLimitMessage = "I wasn't able to complete the requested actions within the allowed number of tool steps. Please try rephrasing or narrowing your request."

// runTurn drives one user turn through the state machine. It always settles
// req by closing both channels; turn-terminal failures are sent on req.errs
// and surfaced as error events.
func (e *Engine) runTurn(ctx context.Context, conversationID string, req *turnRequest) {
	start := time.Now()
	var (
		turnErr    error
		modelCalls int
		toolCalls  int
	)

	defer func() {
		// Log before settling the channels so callers observing the turn's
		// completion also observe its log record.
		if o, ok := e.logger.(turnObserver); ok {
			o.LogTurn(req.turnID, modelCalls, toolCalls, time.Since(start), turnErr == nil, turnErr)
		} else {
			e.logger.Debug("turn.finished",
				"conversation_id", conversationID,
				"turn_id", req.turnID,
				"duration_ms", time.Since(start).Milliseconds(),
				"success", turnErr == nil,
			)
		}
		if turnErr != nil {
			req.errs <- turnErr
		}
		close(req.events)
		close(req.errs)
	}()

	emit := func(ev core.Event) {
		select {
		case req.events <- ev:
		case <-ctx.Done():
		}
	}

	setState := func(state string) {
		_ = e.store.SetState(conversationID, state)
		emit(core.NewStateEvent(conversationID, req.turnID, state))
	}

	fail := func(code string, err error) {
		emit(core.NewErrorEvent(conversationID, req.turnID, code, err.Error()))
		_ = e.store.SetState(conversationID, core.StateAwaitingUserInput)
		turnErr = err
	}

	cancelled := func() {
		emit(core.NewErrorEvent(conversationID, req.turnID, ErrCodeCancelled, "turn cancelled"))
		_ = e.store.SetStatus(conversationID, core.ConversationTerminated)
		turnErr = context.Cause(ctx)
		if turnErr == nil {
			turnErr = context.Canceled
		}
	}

	// Input checkpoint.
	setState(core.StateGuardrailInput)

	text := req.text
	if e.guard != nil {
		result, err := e.guard.Evaluate(ctx, text, guardrail.DirectionInput, "")
		if err != nil {
			if ctx.Err() != nil {
				cancelled()
				return
			}
			fail(ErrCodeGuardrailError, err)
			return
		}

		switch result.Action {
		case guardrail.ActionBlock:
			// The turn ends without any model call; the conversation stays
			// active with the policy message as the assistant reply.
			blockedErr := &guardrail.Blocked{Direction: guardrail.DirectionInput, Rule: firstMatchedRule(result)}
			emit(core.NewErrorEvent(conversationID, req.turnID, ErrCodeGuardrailBlocked, blockedErr.Error()))
			_ = e.store.Append(conversationID, core.NewUserMessage(req.text))
			blocked := core.NewAssistantMessage(e.blockedMessage(guardrail.DirectionInput))
			_ = e.store.Append(conversationID, blocked)
			e.finishTurn(conversationID, req, emit, blocked, nil)
			return
		case guardrail.ActionAnonymize:
			text = result.RewrittenText
		}
	}

	_ = e.store.Append(conversationID, core.NewUserMessage(text))

	// Retrieval merge. A failing retriever degrades to an ungrounded turn
	// rather than failing it.
	var (
		groundingText string
		citations     []core.Citation
	)
	if e.assembler != nil {
		assembled, err := e.assembler.Assemble(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				cancelled()
				return
			}
			e.logger.Warn("retrieval.failed", "conversation_id", conversationID, "error", err)
		} else if !assembled.Empty() {
			groundingText = assembled.Text
			citations = assembled.Citations
		}
	}

	systemPrompt, err := e.resolveSystemPrompt()
	if err != nil {
		fail(ErrCodePromptError, err)
		return
	}
	if groundingText != "" {
		systemPrompt += "\n\nUse the following retrieved context when answering:\n\n" + groundingText
	}

	// The system prompt (with merged context) occupies the window too.
	reserved := util.EstimateTokens(systemPrompt)

	toolDefs := e.toolDefinitions()
	toolChoice := model.ToolChoiceNone
	if len(toolDefs) > 0 {
		toolChoice = model.ToolChoiceAuto
	}

	iterations := 0
	for {
		conv, err := e.store.Get(conversationID)
		if err != nil {
			fail(ErrCodeModelError, err)
			return
		}

		window, estimate, err := pruneWindow(conversationID, conv.Messages, reserved, e.config.MaxContextTokens, e.config.MinRetainedMessages)
		if err != nil {
			fail(ErrCodeContextOverflow, err)
			return
		}
		_ = e.store.SetTokenEstimate(conversationID, estimate)

		setState(core.StateModelInvoking)

		invokeStart := time.Now()
		resp, err := e.model.Invoke(ctx, model.Request{
			SystemPrompt: systemPrompt,
			Messages:     window,
			Inference:    e.inference,
			Tools:        toolDefs,
			ToolChoice:   toolChoice,
		})
		modelCalls++
		if o, ok := e.logger.(modelCallObserver); ok {
			tokens := 0
			if resp != nil && resp.Usage != nil {
				tokens = resp.Usage.TotalTokens
			}
			o.LogModelCall(e.model.Info().Name, tokens, time.Since(invokeStart), err == nil, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				cancelled()
				return
			}
			fail(ErrCodeModelError, err)
			return
		}
		if ctx.Err() != nil {
			cancelled()
			return
		}

		uses := resp.Message.ToolUses()
		if len(uses) == 0 {
			e.finalize(ctx, conversationID, req, emit, setState, fail, cancelled, resp.Message.Text(), groundingText, citations)
			return
		}

		// Tool round. The bound counts completed model/tool cycles; the
		// request that would start cycle MaxToolIterations+1 trips the limit.
		if iterations >= e.config.MaxToolIterations {
			limitErr := &ToolLoopLimitExceeded{ConversationID: conversationID, TurnID: req.turnID, Limit: e.config.MaxToolIterations}
			e.logger.Warn("turn.tool_limit", "conversation_id", conversationID, "turn_id", req.turnID, "limit", e.config.MaxToolIterations)

			fallback := core.NewAssistantMessage(fallbackToolLimitMessage)
			_ = e.store.Append(conversationID, fallback)

			emit(core.NewErrorEvent(conversationID, req.turnID, ErrCodeToolLoopLimit, limitErr.Error()))
			e.finishTurn(conversationID, req, emit, fallback, nil)
			turnErr = limitErr
			return
		}
		iterations++

		_ = e.store.Append(conversationID, resp.Message)
		emit(core.NewMessageEvent(conversationID, req.turnID, core.RoleAssistant, resp.Message))

		setState(core.StateToolRequested)
		setState(core.StateToolExecuting)

		toolCalls += len(uses)
		results := e.dispatchTools(ctx, uses)
		resultMsg := core.NewToolResultMessage(results...)
		_ = e.store.Append(conversationID, resultMsg)
		emit(core.NewMessageEvent(conversationID, req.turnID, core.RoleTool, resultMsg))

		if ctx.Err() != nil {
			// Cancelled results are already part of the transcript.
			cancelled()
			return
		}
	}
}

// finalize runs the output checkpoint and completes the turn.
func (e *Engine) finalize(
	ctx context.Context,
	conversationID string,
	req *turnRequest,
	emit func(core.Event),
	setState func(string),
	fail func(string, error),
	cancelled func(),
	text, groundingText string,
	citations []core.Citation,
) {
	setState(core.StateGuardrailOutput)

	if e.guard != nil {
		result, err := e.guard.Evaluate(ctx, text, guardrail.DirectionOutput, groundingText)
		if err != nil {
			if ctx.Err() != nil {
				cancelled()
				return
			}
			fail(ErrCodeGuardrailError, err)
			return
		}

		switch result.Action {
		case guardrail.ActionBlock:
			blockedErr := &guardrail.Blocked{Direction: guardrail.DirectionOutput, Rule: firstMatchedRule(result)}
			emit(core.NewErrorEvent(conversationID, req.turnID, ErrCodeGuardrailBlocked, blockedErr.Error()))
			text = e.blockedMessage(guardrail.DirectionOutput)
			citations = nil
		case guardrail.ActionAnonymize:
			text = result.RewrittenText
		}
	}

	final := core.NewAssistantMessage(text)
	_ = e.store.Append(conversationID, final)

	if conv, err := e.store.Get(conversationID); err == nil {
		_ = e.store.SetTokenEstimate(conversationID, windowTokens(conv.Messages))
	}

	e.finishTurn(conversationID, req, emit, final, citations)
}

// modelCallObserver and turnObserver are the richer logging surfaces offered
// by logging.MeshLogger. Plain Loggers fall back to generic log lines.
type modelCallObserver interface {
	LogModelCall(model string, tokens int, dur time.Duration, success bool, err error)
}

type turnObserver interface {
	LogTurn(turnID string, modelCalls, toolCalls int, dur time.Duration, success bool, err error)
}

// firstMatchedRule extracts the deciding rule from a block result.
func firstMatchedRule(result *guardrail.Result) guardrail.MatchedRule {
	if len(result.MatchedRules) > 0 {
		return result.MatchedRules[0]
	}
	return guardrail.MatchedRule{}
}

// finishTurn emits the closing message event and returns the conversation to
// the idle state.
func (e *Engine) finishTurn(conversationID string, req *turnRequest, emit func(core.Event), msg core.Message, citations []core.Citation) {
	ev := core.NewMessageEvent(conversationID, req.turnID, core.RoleAssistant, msg)
	ev.Citations = citations
	complete := true
	ev.TurnComplete = &complete
	emit(ev)

	_ = e.store.SetState(conversationID, core.StateAwaitingUserInput)
}

// dispatchTools runs a batch of requested calls and converts the outcomes to
// transcript results in request order.
func (e *Engine) dispatchTools(ctx context.Context, uses []core.ToolUse) []core.ToolResult {
	results := make([]core.ToolResult, len(uses))

	if e.dispatcher == nil {
		for i, u := range uses {
			results[i] = core.ToolResult{CallID: u.ID, Name: u.Name, Error: "no tool dispatcher configured"}
		}
		return results
	}

	for i, r := range e.dispatcher.DispatchAll(ctx, uses) {
		results[i] = core.ToolResult{CallID: r.CallID, Name: r.Name, Content: r.Content, Error: r.Error}
	}
	return results
}

// blockedMessage returns the policy message for a blocked checkpoint.
func (e *Engine) blockedMessage(direction guardrail.Direction) string {
	if p, ok := e.guard.(interface{ Policy() guardrail.Policy }); ok {
		return p.Policy().BlockedMessage(direction)
	}
	return guardrail.Policy{}.BlockedMessage(direction)
}
