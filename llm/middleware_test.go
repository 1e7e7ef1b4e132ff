package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubProvider struct {
	fn func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

func (s *stubProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return s.fn(ctx, req)
}

func (s *stubProvider) HealthCheck(context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}

func (s *stubProvider) Name() string { return "stub" }

type recordedCall struct {
	provider, model, status string
	prompt, completion      int
}

type fakeCollector struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeCollector) RecordLLMRequest(provider, model, status string, _ time.Duration, prompt, completion int, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{provider, model, status, prompt, completion})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chain := NewChain(mark("a")).Use(mark("b"))
	assert.Equal(t, 2, chain.Len())

	h := chain.Then(func(context.Context, *ChatRequest) (*ChatResponse, error) {
		order = append(order, "handler")
		return &ChatResponse{}, nil
	})
	_, err := h(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "handler"}, order)
}

func TestWrap(t *testing.T) {
	base := &stubProvider{fn: func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{Model: "m", Usage: ChatUsage{PromptTokens: 3, CompletionTokens: 4}}, nil
	}}
	assert.Same(t, Provider(base), Wrap(base, nil))

	collector := &fakeCollector{}
	p := Wrap(base, NewChain(LoggingMiddleware(zaptest.NewLogger(t)), MetricsMiddleware("stub", collector)))
	assert.Equal(t, "stub", p.Name())

	_, err := p.Completion(context.Background(), &ChatRequest{Model: "req-model"})
	require.NoError(t, err)
	require.Len(t, collector.calls, 1)
	assert.Equal(t, recordedCall{"stub", "m", "success", 3, 4}, collector.calls[0])
}

func TestMetricsMiddleware_Error(t *testing.T) {
	collector := &fakeCollector{}
	h := MetricsMiddleware("stub", collector)(func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return nil, errors.New("boom")
	})
	_, err := h(context.Background(), &ChatRequest{Model: "req-model"})
	require.Error(t, err)
	assert.Equal(t, recordedCall{"stub", "req-model", "error", 0, 0}, collector.calls[0])
}

func TestTimeoutMiddleware(t *testing.T) {
	h := TimeoutMiddleware(10 * time.Millisecond)(func(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := h(context.Background(), &ChatRequest{})
	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrUpstreamTimeout, llmErr.Code)

	passthrough := TimeoutMiddleware(0)(func(context.Context, *ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{ID: "ok"}, nil
	})
	resp, err := passthrough(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.ID)
}

func TestRecoveryMiddleware(t *testing.T) {
	var recovered any
	h := RecoveryMiddleware(func(v any) { recovered = v })(func(context.Context, *ChatRequest) (*ChatResponse, error) {
		panic("kaboom")
	})
	_, err := h(context.Background(), &ChatRequest{})
	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "kaboom", recovered)
	assert.Contains(t, err.Error(), "kaboom")
}
