package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes a request and returns a response.
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware wraps a handler with additional functionality.
type Middleware func(next Handler) Handler

// Chain represents a middleware chain.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps a handler with all middleware.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// =============================================================================
// 🔗 Provider 包装
// =============================================================================

type wrappedProvider struct {
	Provider
	handler Handler
}

// Wrap 返回一个 Completion 经过中间件链的 Provider，其余方法透传
func Wrap(p Provider, chain *Chain) Provider {
	if chain == nil || chain.Len() == 0 {
		return p
	}
	return &wrappedProvider{Provider: p, handler: chain.Then(p.Completion)}
}

func (w *wrappedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return w.handler(ctx, req)
}

// =============================================================================
// 🧩 内置中间件
// =============================================================================

// LoggingMiddleware logs request/response details.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			logger.Debug("llm request",
				zap.String("trace_id", req.TraceID),
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)))

			resp, err := next(ctx, req)

			duration := time.Since(start)
			if err != nil {
				logger.Warn("llm request failed",
					zap.String("trace_id", req.TraceID),
					zap.Duration("duration", duration),
					zap.Error(err))
			} else {
				logger.Debug("llm response",
					zap.String("trace_id", req.TraceID),
					zap.String("model", resp.Model),
					zap.Int("tokens", resp.Usage.TotalTokens),
					zap.Duration("duration", duration))
			}

			return resp, err
		}
	}
}

// TimeoutMiddleware adds timeout to requests.
// 超时以 ErrUpstreamTimeout 返回。
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			if timeout <= 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			resp, err := next(ctx, req)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, &Error{
					Code:       ErrUpstreamTimeout,
					Message:    fmt.Sprintf("completion timed out after %s: %v", timeout, err),
					HTTPStatus: 504,
					Retryable:  true,
				}
			}
			return resp, err
		}
	}
}

// RecoveryMiddleware recovers from panics.
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					err = &PanicError{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}

// PanicError represents a recovered panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

// MetricsMiddleware collects request metrics.
func MetricsMiddleware(provider string, collector MetricsCollector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			status := "success"
			if err != nil {
				status = "error"
			}
			model := req.Model
			var prompt, completion int
			if resp != nil {
				if resp.Model != "" {
					model = resp.Model
				}
				prompt = resp.Usage.PromptTokens
				completion = resp.Usage.CompletionTokens
			}
			collector.RecordLLMRequest(provider, model, status, duration, prompt, completion, 0)

			return resp, err
		}
	}
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, cost float64)
}
