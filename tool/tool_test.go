package tool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/promptmesh/core"
	"github.com/hupe1980/promptmesh/logging"
)

type weatherArgs struct {
	Location string `json:"location" description:"City name"`
	Unit     string `json:"unit,omitempty" description:"Temperature unit"`
}

func weatherTool() *FunctionTool {
	return NewFunctionToolFromStruct("get_weather", "Get the current weather for a location", weatherArgs{},
		func(_ context.Context, input map[string]any) (any, error) {
			return map[string]any{
				"location":    input["location"],
				"temperature": 21,
				"condition":   "sunny",
			}, nil
		})
}

func TestFunctionToolFromStruct_Schema(t *testing.T) {
	spec := weatherTool().Spec()

	assert.Equal(t, "get_weather", spec.Name)

	props, ok := spec.InputSchema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "location")
	assert.Contains(t, props, "unit")
}

func TestDispatcher_InvokeSuccess(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(weatherTool()))

	result := d.Invoke(context.Background(), core.ToolUse{ID: "call-1", Name: "get_weather", Input: `{"location":"Hamburg"}`})

	require.True(t, result.OK())
	assert.Equal(t, "call-1", result.CallID)
	assert.Equal(t, 1, result.Attempts)

	content, ok := result.Content.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Hamburg", content["location"])
}

func TestDispatcher_SchemaValidation(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(weatherTool()))

	result := d.Invoke(context.Background(), core.ToolUse{ID: "call-1", Name: "get_weather", Input: `{"unit":"celsius"}`})

	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Error, "location")
	assert.Equal(t, 0, result.Attempts)
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := NewDispatcher()

	result := d.Invoke(context.Background(), core.ToolUse{ID: "call-1", Name: "missing", Input: `{}`})

	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Error, "not registered")
}

func TestDispatcher_DuplicateRegistration(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(weatherTool()))
	assert.Error(t, d.Register(weatherTool()))
}

func TestDispatcher_TransientRetry(t *testing.T) {
	var calls int32
	flaky := NewFunctionTool("flaky", "Fails once then succeeds", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return nil, MarkTransient(errors.New("upstream unavailable"))
			}
			return "ok", nil
		})

	d := NewDispatcher(func(o *DispatcherOptions) {
		o.MaxAttempts = 3
		o.RetryDelay = time.Millisecond
	})
	require.NoError(t, d.Register(flaky))

	result := d.Invoke(context.Background(), core.ToolUse{ID: "c", Name: "flaky", Input: `{}`})

	require.True(t, result.OK())
	assert.Equal(t, 2, result.Attempts)
}

func TestDispatcher_TerminalErrorNotRetried(t *testing.T) {
	var calls int32
	failing := NewFunctionTool("failing", "Always fails", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("bad request")
		})

	d := NewDispatcher(func(o *DispatcherOptions) {
		o.MaxAttempts = 3
		o.RetryDelay = time.Millisecond
	})
	require.NoError(t, d.Register(failing))

	result := d.Invoke(context.Background(), core.ToolUse{ID: "c", Name: "failing", Input: `{}`})

	assert.Equal(t, StatusError, result.Status)
	assert.Equal(t, "bad request", result.Error)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDispatcher_Timeout(t *testing.T) {
	slow := NewFunctionTool("slow", "Sleeps past the deadline", map[string]any{"type": "object"},
		func(ctx context.Context, _ map[string]any) (any, error) {
			select {
			case <-time.After(time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})

	d := NewDispatcher(func(o *DispatcherOptions) {
		o.CallTimeout = 20 * time.Millisecond
		o.MaxAttempts = 2
		o.RetryDelay = time.Millisecond
	})
	require.NoError(t, d.Register(slow))

	result := d.Invoke(context.Background(), core.ToolUse{ID: "c", Name: "slow", Input: `{}`})

	assert.Equal(t, StatusTimeout, result.Status)
	assert.Equal(t, 2, result.Attempts)
	assert.Contains(t, result.Error, "timed out")
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	panicky := NewFunctionTool("panicky", "Panics", map[string]any{"type": "object"},
		func(_ context.Context, _ map[string]any) (any, error) {
			panic("boom")
		})

	d := NewDispatcher()
	require.NoError(t, d.Register(panicky))

	result := d.Invoke(context.Background(), core.ToolUse{ID: "c", Name: "panicky", Input: `{}`})

	assert.Equal(t, StatusError, result.Status)
	assert.Contains(t, result.Error, "panicked")
}

func TestDispatcher_DispatchAllPreservesOrder(t *testing.T) {
	d := NewDispatcher(func(o *DispatcherOptions) {
		o.MaxParallel = 3
	})

	// The first call is the slowest so completion order inverts request order.
	for i, delay := range []time.Duration{60 * time.Millisecond, 30 * time.Millisecond, 0} {
		name := fmt.Sprintf("tool_%d", i)
		delay := delay
		tl := NewFunctionTool(name, "Delayed echo", map[string]any{"type": "object"},
			func(_ context.Context, _ map[string]any) (any, error) {
				time.Sleep(delay)
				return name, nil
			})
		require.NoError(t, d.Register(tl))
	}

	calls := []core.ToolUse{
		{ID: "a", Name: "tool_0", Input: `{}`},
		{ID: "b", Name: "tool_1", Input: `{}`},
		{ID: "c", Name: "tool_2", Input: `{}`},
	}

	results := d.DispatchAll(context.Background(), calls)

	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].CallID)
	assert.Equal(t, "b", results[1].CallID)
	assert.Equal(t, "c", results[2].CallID)
	for i, r := range results {
		require.True(t, r.OK())
		assert.Equal(t, fmt.Sprintf("tool_%d", i), r.Content)
	}
}

type callRecorder struct {
	logging.NoOpLogger
	calls []string
}

func (r *callRecorder) LogToolCall(tool string, attempts int, dur time.Duration, success bool, err error) {
	r.calls = append(r.calls, fmt.Sprintf("%s/%d/%t", tool, attempts, success))
}

func TestDispatcher_ReportsCallOutcomes(t *testing.T) {
	rec := &callRecorder{}
	d := NewDispatcher(func(o *DispatcherOptions) {
		o.Logger = rec
	})
	require.NoError(t, d.Register(weatherTool()))

	d.Invoke(context.Background(), core.ToolUse{ID: "call-1", Name: "get_weather", Input: `{"location":"Hamburg"}`})
	d.Invoke(context.Background(), core.ToolUse{ID: "call-2", Name: "missing", Input: `{}`})

	assert.Equal(t, []string{"get_weather/1/true", "missing/0/false"}, rec.calls)
}

func TestDispatcher_CancelledContext(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(weatherTool()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := d.Invoke(ctx, core.ToolUse{ID: "c", Name: "get_weather", Input: `{"location":"Hamburg"}`})

	assert.Equal(t, StatusCancelled, result.Status)
}
