// Package promptmesh provides a high-level façade over the conversation
// engine and its collaborators (prompt registry, guardrail pipeline,
// retrieval assembler, tool dispatcher) enabling rapid construction of
// guarded, grounded, tool-using LLM applications. Most applications interact
// with this package by:
//  1. Creating a PromptMesh via New() with a model implementation
//  2. Registering prompt templates and tools
//  3. Starting conversations and posting user messages (async or sync)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// and usage ergonomics concise. All defaults are safe for local development
// and testing; production deployments typically supply a durable
// conversation store, a real vector index and a structured logger.
package promptmesh

import (
	"context"

	"github.com/hupe1980/promptmesh/core"
	"github.com/hupe1980/promptmesh/engine"
	"github.com/hupe1980/promptmesh/guardrail"
	"github.com/hupe1980/promptmesh/logging"
	"github.com/hupe1980/promptmesh/model"
	"github.com/hupe1980/promptmesh/prompt"
	"github.com/hupe1980/promptmesh/retrieval"
	"github.com/hupe1980/promptmesh/tool"
)

// Options configures the PromptMesh instance.
type Options struct {
	// EngineConfig holds turn-processing parameters (tool iteration bound,
	// context-window budget, queue sizes).
	EngineConfig engine.Config

	// Store persists conversations. Defaults to the in-memory store.
	Store core.ConversationStore

	// SystemPrompt is a static system prompt. Ignored when Template is set.
	SystemPrompt string

	// Template selects a registered prompt template for the system prompt.
	Template *engine.TemplateRef

	// GuardrailPolicy enables the input/output guardrail checkpoints.
	GuardrailPolicy *guardrail.Policy

	// Embedder and Retriever together enable retrieval grounding.
	Embedder  core.Embedder
	Retriever core.Retriever

	// RetrievalTopK and RetrievalTokenBudget tune the context assembler.
	// Zero values keep the assembler defaults.
	RetrievalTopK        int
	RetrievalTokenBudget int

	// Inference overrides passed on every model invocation.
	Inference model.InferenceConfig

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// PromptMesh is the high-level façade aggregating the engine and its
// collaborators.
type PromptMesh struct {
	registry   *prompt.Registry
	dispatcher *tool.Dispatcher
	engine     *engine.Engine
}

// New creates a new PromptMesh instance around the given model. Unset
// collaborators fall back to in-memory / disabled defaults.
func New(m model.Model, optFns ...func(o *Options)) *PromptMesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	registry := prompt.NewRegistry()
	dispatcher := tool.NewDispatcher(func(o *tool.DispatcherOptions) {
		o.Logger = opts.Logger
	})

	var assembler *retrieval.Assembler
	if opts.Embedder != nil && opts.Retriever != nil {
		assembler = retrieval.NewAssembler(opts.Embedder, opts.Retriever, func(o *retrieval.AssemblerOptions) {
			if opts.RetrievalTopK > 0 {
				o.TopK = opts.RetrievalTopK
			}
			if opts.RetrievalTokenBudget > 0 {
				o.TokenBudget = opts.RetrievalTokenBudget
			}
			o.Logger = opts.Logger
		})
	}

	var guard guardrail.Evaluator
	if opts.GuardrailPolicy != nil {
		guard = guardrail.NewPipeline(*opts.GuardrailPolicy, func(o *guardrail.Options) {
			o.Logger = opts.Logger
		})
	}

	eng := engine.New(m, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		if opts.Store != nil {
			o.Store = opts.Store
		}
		o.Registry = registry
		o.Template = opts.Template
		o.SystemPrompt = opts.SystemPrompt
		o.Guardrail = guard
		o.Assembler = assembler
		o.Dispatcher = dispatcher
		o.Inference = opts.Inference
		o.Logger = opts.Logger
	})

	return &PromptMesh{
		registry:   registry,
		dispatcher: dispatcher,
		engine:     eng,
	}
}

// Templates exposes the prompt template registry.
func (p *PromptMesh) Templates() *prompt.Registry { return p.registry }

// CreateTemplate registers a new prompt template.
func (p *PromptMesh) CreateTemplate(name, description string, variants []prompt.Variant, defaultVariant string) error {
	return p.registry.Create(name, description, variants, defaultVariant)
}

// ResolveTemplate resolves a template variant with the given variables.
func (p *PromptMesh) ResolveTemplate(name, variant string, variables map[string]string) (*prompt.Resolved, error) {
	return p.registry.Resolve(name, variant, variables)
}

// RegisterTool makes a tool available to every conversation.
func (p *PromptMesh) RegisterTool(t tool.Tool) error { return p.dispatcher.Register(t) }

// StartConversation creates a new conversation returning its id.
func (p *PromptMesh) StartConversation(ctx context.Context) (string, error) {
	return p.engine.StartConversation(ctx)
}

// PostUserMessage submits a user turn asynchronously returning the turn id
// plus event and error channels.
func (p *PromptMesh) PostUserMessage(ctx context.Context, conversationID, text string) (string, <-chan core.Event, <-chan error, error) {
	return p.engine.PostUserMessage(ctx, conversationID, text)
}

// PostUserMessageSync submits a user turn and blocks until the final
// assistant message is available.
func (p *PromptMesh) PostUserMessageSync(ctx context.Context, conversationID, text string) (*core.Message, []core.Citation, error) {
	return p.engine.PostUserMessageSync(ctx, conversationID, text)
}

// GetConversationState returns a snapshot of the conversation.
func (p *PromptMesh) GetConversationState(conversationID string) (*core.Conversation, error) {
	return p.engine.GetConversationState(conversationID)
}

// CloseConversation cancels in-flight work and terminates the conversation.
func (p *PromptMesh) CloseConversation(conversationID string) error {
	return p.engine.CloseConversation(conversationID)
}

// Close terminates every active conversation.
func (p *PromptMesh) Close() { p.engine.Close() }
