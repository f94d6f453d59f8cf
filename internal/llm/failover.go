package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Kirito123l/emission-agent/pkg/models"
)

// FailoverClient keeps exactly two transports to the same provider — one
// through a configured proxy, one direct — and fails over between them
// within a single call on connection-class errors only. The transport
// that last succeeded becomes sticky: subsequent calls try it first,
// since a connection problem with one route tends to persist.
type FailoverClient struct {
	logger *slog.Logger

	mu        sync.Mutex
	primary   transport
	secondary transport

	onFailover func(from, to string)
}

// NewFailoverClient wires a primary (proxy) and secondary (direct)
// transport. secondary may be nil if no proxy is configured, in which
// case FailoverClient behaves as a thin pass-through with no failover.
func NewFailoverClient(logger *slog.Logger, primary, secondary transport) *FailoverClient {
	return &FailoverClient{logger: logger, primary: primary, secondary: secondary}
}

// OnFailover registers a callback invoked every time a call falls back
// from one transport to the other and that transport becomes preferred.
// Intended for wiring an observability.Observer without this package
// depending on it directly.
func (c *FailoverClient) OnFailover(fn func(from, to string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailover = fn
}

func (c *FailoverClient) Chat(ctx context.Context, messages []models.ChatMessage, system string) (*Response, error) {
	return c.call(ctx, func(t transport) (*Response, error) {
		return t.Chat(ctx, messages, system)
	})
}

func (c *FailoverClient) ChatWithTools(ctx context.Context, messages []models.ChatMessage, system string, tools []models.ToolDescriptor) (*Response, error) {
	return c.call(ctx, func(t transport) (*Response, error) {
		return t.ChatWithTools(ctx, messages, system, tools)
	})
}

func (c *FailoverClient) call(ctx context.Context, do func(transport) (*Response, error)) (*Response, error) {
	c.mu.Lock()
	first, second := c.primary, c.secondary
	c.mu.Unlock()

	if first == nil {
		return nil, fmt.Errorf("llm failover: no transport configured")
	}

	resp, err := do(first)
	if err == nil {
		return resp, nil
	}
	if second == nil || !isConnectionError(err) {
		return nil, err
	}

	c.logger.Warn("llm transport connection failure, failing over",
		"failed_transport", first.name(), "fallback_transport", second.name(), "error", err)

	resp, fallbackErr := do(second)
	if fallbackErr != nil {
		return nil, fmt.Errorf("llm failover: both transports failed: primary=%w secondary=%v", err, fallbackErr)
	}

	// second succeeded: it becomes the preferred transport for subsequent calls.
	c.mu.Lock()
	c.primary, c.secondary = second, first
	onFailover := c.onFailover
	c.mu.Unlock()
	c.logger.Info("llm transport failover succeeded; preferred transport switched", "transport", second.name())
	if onFailover != nil {
		onFailover(first.name(), second.name())
	}

	return resp, nil
}
