package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/xeipuuv/gojsonschema"

	"github.com/hupe1980/promptmesh/core"
	"github.com/hupe1980/promptmesh/logging"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// MaxParallel bounds concurrent calls within one DispatchAll batch.
	// Values < 1 mean no explicit limit.
	MaxParallel int
	// CallTimeout is the per-attempt deadline for a single tool call.
	CallTimeout time.Duration
	// MaxAttempts bounds retries for timeouts and transient failures.
	MaxAttempts int
	// RetryDelay is the base backoff between attempts (doubled per retry).
	RetryDelay time.Duration
	// Logger for call diagnostics.
	Logger logging.Logger
}

// Dispatcher routes tool calls to registered tools. Input is validated
// against the tool's JSON schema before execution; handler failures,
// timeouts and panics are captured as structured error Results and never
// raised to the caller.
//
// Concurrency: registration is mutex protected; Invoke and DispatchAll are
// safe for concurrent use.
type Dispatcher struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*gojsonschema.Schema
	opts     DispatcherOptions
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{
		MaxParallel: 4,
		CallTimeout: 30 * time.Second,
		MaxAttempts: 2,
		RetryDelay:  250 * time.Millisecond,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Dispatcher{
		tools:    make(map[string]Tool),
		compiled: make(map[string]*gojsonschema.Schema),
		opts:     opts,
	}
}

// Register adds a tool. Registering a duplicate name or an invalid input
// schema fails.
func (d *Dispatcher) Register(t Tool) error {
	spec := t.Spec()
	if spec.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tools[spec.Name]; exists {
		return fmt.Errorf("tool %s is already registered", spec.Name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(spec.InputSchema))
	if err != nil {
		return fmt.Errorf("invalid input schema for tool %s: %w", spec.Name, err)
	}

	d.tools[spec.Name] = t
	d.compiled[spec.Name] = schema

	return nil
}

// Specs returns the registered tool specs in unspecified order.
func (d *Dispatcher) Specs() []Spec {
	d.mu.RLock()
	defer d.mu.RUnlock()

	specs := make([]Spec, 0, len(d.tools))
	for _, t := range d.tools {
		specs = append(specs, t.Spec())
	}
	return specs
}

// Invoke executes a single tool call and always returns a Result. Lookup and
// validation failures are terminal; timeouts and transient handler errors are
// retried up to MaxAttempts with doubling backoff.
func (d *Dispatcher) Invoke(ctx context.Context, call core.ToolUse) *Result {
	start := time.Now()

	d.mu.RLock()
	t, exists := d.tools[call.Name]
	schema := d.compiled[call.Name]
	d.mu.RUnlock()

	if !exists {
		return d.fail(call, start, 0, StatusError, (&NotFoundError{Name: call.Name}).Error())
	}

	input := map[string]any{}
	if call.Input != "" {
		if err := json.Unmarshal([]byte(call.Input), &input); err != nil {
			return d.fail(call, start, 0, StatusError, fmt.Sprintf("invalid input JSON for tool %s: %v", call.Name, err))
		}
	}

	if result, err := schema.Validate(gojsonschema.NewGoLoader(input)); err != nil {
		return d.fail(call, start, 0, StatusError, fmt.Sprintf("schema validation failed for tool %s: %v", call.Name, err))
	} else if !result.Valid() {
		causes := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			causes = append(causes, desc.String())
		}
		return d.fail(call, start, 0, StatusError, (&SchemaValidationError{Tool: call.Name, Causes: causes}).Error())
	}

	maxAttempts := d.opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		lastStatus = StatusError
		lastErr    string
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return d.fail(call, start, attempt-1, StatusCancelled, ctx.Err().Error())
		}

		content, err := d.callOnce(ctx, t, input)
		if err == nil {
			duration := time.Since(start)
			if o, ok := d.opts.Logger.(toolCallObserver); ok {
				o.LogToolCall(call.Name, attempt, duration, true, nil)
			} else {
				d.opts.Logger.Debug("tool.call", "tool", call.Name, "attempts", attempt, "duration_ms", duration.Milliseconds(), "status", string(StatusDone))
			}
			return &Result{
				CallID:   call.ID,
				Name:     call.Name,
				Status:   StatusDone,
				Content:  content,
				Attempts: attempt,
				Duration: duration,
			}
		}

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			lastStatus, lastErr = StatusTimeout, (&TimeoutError{Tool: call.Name, Timeout: d.opts.CallTimeout}).Error()
		case ctx.Err() != nil:
			return d.fail(call, start, attempt, StatusCancelled, ctx.Err().Error())
		case IsTransient(err):
			lastStatus, lastErr = StatusError, err.Error()
		default:
			// Terminal handler failure, no retry.
			return d.fail(call, start, attempt, StatusError, err.Error())
		}

		if attempt < maxAttempts {
			if !sleepCtx(ctx, d.opts.RetryDelay<<(attempt-1)) {
				return d.fail(call, start, attempt, StatusCancelled, ctx.Err().Error())
			}
		}
	}

	return d.fail(call, start, maxAttempts, lastStatus, lastErr)
}

// DispatchAll executes a batch of calls concurrently and returns one Result
// per call in the original request order. It blocks until every call has
// settled (barrier join).
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []core.ToolUse) []*Result {
	if len(calls) == 0 {
		return nil
	}

	if len(calls) == 1 {
		return []*Result{d.Invoke(ctx, calls[0])}
	}

	results := make([]*Result, len(calls))

	p := pool.New()
	if d.opts.MaxParallel > 0 {
		p = p.WithMaxGoroutines(d.opts.MaxParallel)
	}

	for i, call := range calls {
		i, call := i, call
		p.Go(func() {
			results[i] = d.Invoke(ctx, call)
		})
	}
	p.Wait()

	return results
}

// callOnce runs one attempt under the per-call timeout, recovering panics.
func (d *Dispatcher) callOnce(ctx context.Context, t Tool, input map[string]any) (content any, err error) {
	callCtx := ctx
	if d.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.opts.CallTimeout)
		defer cancel()
	}

	type outcome struct {
		content any
		err     error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		c, e := t.Call(callCtx, input)
		done <- outcome{content: c, err: e}
	}()

	select {
	case o := <-done:
		return o.content, o.err
	case <-callCtx.Done():
		if ctx.Err() == nil && callCtx.Err() == context.DeadlineExceeded {
			return nil, context.DeadlineExceeded
		}
		return nil, callCtx.Err()
	}
}

// toolCallObserver is the richer call-logging surface offered by
// logging.MeshLogger. Plain Loggers fall back to generic log lines.
type toolCallObserver interface {
	LogToolCall(tool string, attempts int, dur time.Duration, success bool, err error)
}

func (d *Dispatcher) fail(call core.ToolUse, start time.Time, attempts int, status Status, msg string) *Result {
	duration := time.Since(start)
	if o, ok := d.opts.Logger.(toolCallObserver); ok {
		o.LogToolCall(call.Name, attempts, duration, false, errors.New(msg))
	} else {
		d.opts.Logger.Warn("tool.call", "tool", call.Name, "attempts", attempts, "duration_ms", duration.Milliseconds(), "status", string(status), "error", msg)
	}
	return &Result{
		CallID:   call.ID,
		Name:     call.Name,
		Status:   status,
		Error:    msg,
		Attempts: attempts,
		Duration: duration,
	}
}

// sleepCtx sleeps for d or until ctx is done; it reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
