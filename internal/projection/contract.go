package projection

import (
	"context"
	"time"

	"github.com/knowledge-network/knsearch/internal/domain"
)

// Entity is the normalized knowledge document as the store holds it.
type Entity struct {
	ID           string
	WorkspaceID  string
	Title        string
	Content      string
	Excerpt      string
	Status       domain.Status
	AuthorID     string
	CollectionID string
	Metadata     map[string]string
	ViewCount    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthorRow is the author lookup result.
type AuthorRow struct {
	ID          string
	DisplayName string
}

// CollectionRow is one link of the collection ancestry chain.
type CollectionRow struct {
	ID       string
	Name     string
	ParentID string
}

// EntityStore supplies the per-id lookups projection needs. Implementations
// return domain.ErrNotFound for missing rows.
type EntityStore interface {
	GetEntity(ctx context.Context, id string) (*Entity, error)
	GetAuthor(ctx context.Context, id string) (*AuthorRow, error)
	GetCollection(ctx context.Context, id string) (*CollectionRow, error)
	GetTags(ctx context.Context, entityID string) ([]domain.Tag, error)
	GetFacets(ctx context.Context, entityID string) ([]domain.Facet, error)
}
