package engine

import (
	"context"

	"github.com/hupe1980/promptmesh/core"
)

// turnRequest is one queued user turn with its result channels.
type turnRequest struct {
	turnID string
	text   string
	ctx    context.Context
	events chan core.Event
	errs   chan error
}

// actor owns a single conversation. All turns for the conversation run on
// its goroutine, guaranteeing strictly one in-flight turn; the queue gives
// FIFO ordering for messages arriving mid-turn.
type actor struct {
	engine         *Engine
	conversationID string
	queue          chan *turnRequest
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
}

func newActor(e *Engine, conversationID string) *actor {
	ctx, cancel := context.WithCancel(context.Background())
	return &actor{
		engine:         e,
		conversationID: conversationID,
		queue:          make(chan *turnRequest, e.config.QueueCapacity),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

func (a *actor) run() {
	defer close(a.done)

	for {
		select {
		case <-a.ctx.Done():
			a.drain()
			return
		case req := <-a.queue:
			a.process(req)
		}
	}
}

// process runs one turn under a context that honors both the actor lifetime
// and the caller's submit context.
func (a *actor) process(req *turnRequest) {
	turnCtx, cancel := context.WithCancel(a.ctx)
	defer cancel()

	if req.ctx != nil {
		stop := context.AfterFunc(req.ctx, cancel)
		defer stop()
	}

	a.engine.runTurn(turnCtx, a.conversationID, req)
}

// drain settles queued turns that will never run.
func (a *actor) drain() {
	for {
		select {
		case req := <-a.queue:
			req.events <- core.NewErrorEvent(a.conversationID, req.turnID, ErrCodeCancelled, "conversation closed before the turn started")
			close(req.events)
			req.errs <- context.Canceled
			close(req.errs)
		default:
			return
		}
	}
}

// stop cancels the actor and waits for its goroutine to exit.
func (a *actor) stop() {
	a.cancel()
	<-a.done
}
