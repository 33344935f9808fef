package search

import (
	"context"
	"time"

	"github.com/knowledge-network/knsearch/internal/domain"
	domsearch "github.com/knowledge-network/knsearch/internal/domain/search"
)

// Permissions is the external authorization collaborator.
type Permissions interface {
	GetUserPermissions(ctx context.Context, userID, workspaceID string) (domain.UserPermissions, error)
	GetUserCollections(ctx context.Context, userID, workspaceID string) ([]string, error)
	CheckWorkspaceAccess(ctx context.Context, userID, workspaceID string) (bool, error)
}

// Analytics is the query-log sink. Failures are logged, never surfaced.
type Analytics interface {
	Record(ctx context.Context, rec domsearch.QueryRecord) error
}

// ResultCache is the cache surface the orchestrator needs.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	SetTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string)
	ClearWorkspace(ctx context.Context, workspaceID string)
}

// Guard wraps engine calls with the circuit-breaker discipline.
type Guard interface {
	Execute(ctx context.Context, op func(ctx context.Context) error) error
}

// Recorder receives per-operation latency samples.
type Recorder interface {
	Record(op string, d time.Duration, ok bool)
}

// EventDispatcher delivers index events to the registered handlers.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event domain.IndexEvent) error
}
