package indexer

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/domain"
)

// Handler consumes domain index events.
type Handler interface {
	Handle(ctx context.Context, event domain.IndexEvent) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event domain.IndexEvent) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event domain.IndexEvent) error {
	return f(ctx, event)
}

// Registry broadcasts each event to an ordered set of handlers. One
// handler's failure never stops the others from seeing the same event.
type Registry struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger}
}

// Register appends a handler. Handlers run in registration order.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, h)
}

// Dispatch delivers the event to every registered handler, collecting
// per-handler failures independently and returning them joined.
func (r *Registry) Dispatch(ctx context.Context, event domain.IndexEvent) error {
	r.mu.RLock()
	handlers := make([]Handler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.RUnlock()

	var errs []error
	for i, h := range handlers {
		if err := h.Handle(ctx, event); err != nil {
			r.logger.Error("index handler failed",
				zap.Int("handler", i),
				zap.String("event_type", string(event.Type)),
				zap.String("entity_id", event.EntityID),
				zap.String("workspace_id", event.WorkspaceID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
