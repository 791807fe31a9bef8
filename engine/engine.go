package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/promptmesh/conversation"
	"github.com/hupe1980/promptmesh/core"
	"github.com/hupe1980/promptmesh/guardrail"
	"github.com/hupe1980/promptmesh/logging"
	"github.com/hupe1980/promptmesh/model"
	"github.com/hupe1980/promptmesh/prompt"
	"github.com/hupe1980/promptmesh/retrieval"
	"github.com/hupe1980/promptmesh/tool"
)

// Config defines tuning parameters for the engine's turn processing.
type Config struct {
	// MaxToolIterations bounds model/tool round-trips within one turn.
	MaxToolIterations int

	// MaxContextTokens is the token budget for the window sent to the model.
	// 0 disables enforcement.
	MaxContextTokens int

	// MinRetainedMessages is the pruning floor: the newest messages that are
	// never dropped from the request window.
	MinRetainedMessages int

	// QueueCapacity bounds user messages waiting per conversation while a
	// turn is in flight.
	QueueCapacity int

	// EventBufferSize sets the per-turn event channel buffer.
	EventBufferSize int
}

// DefaultConfig provides production-ready defaults.
var DefaultConfig = Config{
	MaxToolIterations:   5,
	MaxContextTokens:    8192,
	MinRetainedMessages: 2,
	QueueCapacity:       16,
	EventBufferSize:     100,
}

// TemplateRef selects a registered prompt template for the system prompt.
// Variant "" resolves the template's current default variant at turn time.
type TemplateRef struct {
	Name      string
	Variant   string
	Variables map[string]string
}

// Options configures an Engine. All collaborators except the model are
// optional; missing ones disable the corresponding turn phase.
type Options struct {
	// Config holds operational parameters. Defaults to DefaultConfig.
	Config Config

	// Store persists conversations. Defaults to the in-memory store.
	Store core.ConversationStore

	// Registry resolves the system prompt template when Template is set.
	Registry *prompt.Registry

	// Template selects the system prompt template from Registry.
	Template *TemplateRef

	// SystemPrompt is the static system prompt used when Template is nil.
	SystemPrompt string

	// Guardrail evaluates input and output checkpoints. Nil disables both.
	Guardrail guardrail.Evaluator

	// Assembler merges retrieval context into the prompt. Nil disables
	// retrieval.
	Assembler *retrieval.Assembler

	// Dispatcher executes tool calls requested by the model. Nil means tool
	// requests fail as error results.
	Dispatcher *tool.Dispatcher

	// Inference overrides passed on every model invocation.
	Inference model.InferenceConfig

	// Retry configures the model retry wrapper.
	Retry []func(o *model.RetryOptions)

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine coordinates conversations against a model. It is safe for
// concurrent use; each conversation is driven by its own actor goroutine and
// turns within a conversation never overlap.
type Engine struct {
	model        model.Model
	store        core.ConversationStore
	registry     *prompt.Registry
	template     *TemplateRef
	systemPrompt string
	guard        guardrail.Evaluator
	assembler    *retrieval.Assembler
	dispatcher   *tool.Dispatcher
	inference    model.InferenceConfig
	config       Config
	logger       logging.Logger

	mu     sync.RWMutex
	actors map[string]*actor
	closed bool
}

// New creates an Engine around the given model. The model is wrapped with
// bounded retries for transient invocation failures.
func New(m model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Store:  conversation.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		model:        model.NewRetryable(m, opts.Retry...),
		store:        opts.Store,
		registry:     opts.Registry,
		template:     opts.Template,
		systemPrompt: opts.SystemPrompt,
		guard:        opts.Guardrail,
		assembler:    opts.Assembler,
		dispatcher:   opts.Dispatcher,
		inference:    opts.Inference,
		config:       opts.Config,
		logger:       opts.Logger,
		actors:       make(map[string]*actor),
	}
}

// StartConversation creates a new conversation and its actor, returning the
// conversation id.
func (e *Engine) StartConversation(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := core.NewID()
	if _, err := e.store.Create(id); err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", fmt.Errorf("engine is closed")
	}

	a := newActor(e, id)
	e.actors[id] = a
	go a.run()

	e.logger.Info("conversation.started", "conversation_id", id)

	return id, nil
}

// PostUserMessage submits a user turn. It returns the turn id plus channels
// streaming the turn's events and terminal error. The turn runs on the
// conversation's actor; if a turn is already in flight the message queues
// FIFO, and a full queue rejects with QueueFullError.
func (e *Engine) PostUserMessage(ctx context.Context, conversationID, text string) (string, <-chan core.Event, <-chan error, error) {
	a, err := e.actor(conversationID)
	if err != nil {
		return "", nil, nil, err
	}

	conv, err := e.store.Get(conversationID)
	if err != nil {
		return "", nil, nil, err
	}
	if !conv.IsActive() {
		return "", nil, nil, fmt.Errorf("conversation %s is terminated", conversationID)
	}

	req := &turnRequest{
		turnID: core.NewID(),
		text:   text,
		ctx:    ctx,
		events: make(chan core.Event, e.config.EventBufferSize),
		errs:   make(chan error, 1),
	}

	select {
	case a.queue <- req:
	default:
		return "", nil, nil, &QueueFullError{ConversationID: conversationID, Capacity: e.config.QueueCapacity}
	}

	return req.turnID, req.events, req.errs, nil
}

// PostUserMessageSync submits a user turn and blocks until it settles,
// returning the final assistant message and its citations.
func (e *Engine) PostUserMessageSync(ctx context.Context, conversationID, text string) (*core.Message, []core.Citation, error) {
	_, events, errs, err := e.PostUserMessage(ctx, conversationID, text)
	if err != nil {
		return nil, nil, err
	}

	var (
		final     *core.Message
		citations []core.Citation
	)
	for ev := range events {
		if ev.Message != nil && ev.Message.Role == core.RoleAssistant {
			final = ev.Message
			citations = ev.Citations
		}
	}

	if err := <-errs; err != nil {
		return final, citations, err
	}
	if final == nil {
		return nil, nil, fmt.Errorf("turn produced no assistant message")
	}

	return final, citations, nil
}

// GetConversationState returns a snapshot (clone) of the conversation.
func (e *Engine) GetConversationState(conversationID string) (*core.Conversation, error) {
	return e.store.Get(conversationID)
}

// CloseConversation cancels any in-flight turn, drains queued turns as
// cancelled and marks the conversation terminated. Idempotent.
func (e *Engine) CloseConversation(conversationID string) error {
	e.mu.Lock()
	a, ok := e.actors[conversationID]
	if ok {
		delete(e.actors, conversationID)
	}
	e.mu.Unlock()

	if ok {
		a.stop()
	}

	if err := e.store.SetStatus(conversationID, core.ConversationTerminated); err != nil {
		return err
	}

	e.logger.Info("conversation.closed", "conversation_id", conversationID)

	return nil
}

// Close terminates every active conversation.
func (e *Engine) Close() {
	e.mu.Lock()
	actors := make([]*actor, 0, len(e.actors))
	ids := make([]string, 0, len(e.actors))
	for id, a := range e.actors {
		actors = append(actors, a)
		ids = append(ids, id)
	}
	e.actors = make(map[string]*actor)
	e.closed = true
	e.mu.Unlock()

	for i, a := range actors {
		a.stop()
		_ = e.store.SetStatus(ids[i], core.ConversationTerminated)
	}
}

func (e *Engine) actor(conversationID string) (*actor, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.actors[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s not found", conversationID)
	}
	return a, nil
}

// resolveSystemPrompt returns the system prompt for the next model call,
// resolving the configured template per turn so default-variant moves take
// effect immediately.
func (e *Engine) resolveSystemPrompt() (string, error) {
	if e.template == nil || e.registry == nil {
		return e.systemPrompt, nil
	}

	resolved, err := e.registry.Resolve(e.template.Name, e.template.Variant, e.template.Variables)
	if err != nil {
		return "", err
	}
	return resolved.Text, nil
}

// toolDefinitions maps registered tool specs into the model request shape.
func (e *Engine) toolDefinitions() []model.ToolDefinition {
	if e.dispatcher == nil {
		return nil
	}

	specs := e.dispatcher.Specs()
	defs := make([]model.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, model.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema,
		})
	}
	return defs
}
