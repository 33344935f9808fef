package indexer

import (
	"context"

	"github.com/knowledge-network/knsearch/internal/domain"
	"github.com/knowledge-network/knsearch/internal/engine"
)

// Projector derives the index document for an entity. A nil document with a
// nil error means the entity no longer exists and the id is skipped.
type Projector interface {
	Project(ctx context.Context, entityID string) (*domain.IndexDocument, error)
}

// EntityEnumerator expands scoped reindex events into entity id lists.
// A full-workspace sweep is also the crash-recovery mechanism: in-flight
// batch events are not persisted.
type EntityEnumerator interface {
	ListByCollection(ctx context.Context, workspaceID, collectionID string) ([]string, error)
	ListByTag(ctx context.Context, workspaceID, tagID string) ([]string, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]string, error)
}

// BulkClient is the engine surface the indexer needs.
type BulkClient interface {
	Bulk(ctx context.Context, actions []engine.BulkAction) (*engine.BulkResponse, error)
	Delete(ctx context.Context, index, id string) error
}

// Guard wraps engine calls with the circuit-breaker discipline.
type Guard interface {
	Execute(ctx context.Context, op func(ctx context.Context) error) error
}

// CacheInvalidator clears cached search results after a mutation so stale
// result pages are never served across a write.
type CacheInvalidator interface {
	ClearWorkspace(ctx context.Context, workspaceID string)
}
