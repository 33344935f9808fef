package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/domain"
	"github.com/knowledge-network/knsearch/internal/projection"
)

// EntityStoreConfig holds the entity store client settings.
type EntityStoreConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// EntityStoreClient reads entities, authors, collections, tags and facets
// from the platform entity store. It backs both projection lookups and the
// reindex enumerations.
type EntityStoreClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewEntityStoreClient creates an entity store client.
func NewEntityStoreClient(cfg EntityStoreConfig) *EntityStoreClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityStoreClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type entityResponse struct {
	ID           string            `json:"id"`
	WorkspaceID  string            `json:"workspaceId"`
	Title        string            `json:"title"`
	Content      string            `json:"content"`
	Excerpt      string            `json:"excerpt"`
	Status       string            `json:"status"`
	AuthorID     string            `json:"authorId"`
	CollectionID string            `json:"collectionId"`
	Metadata     map[string]string `json:"metadata"`
	ViewCount    int64             `json:"viewCount"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// GetEntity returns one entity by id, domain.ErrNotFound when missing.
func (c *EntityStoreClient) GetEntity(ctx context.Context, id string) (*projection.Entity, error) {
	var out entityResponse
	if err := c.get(ctx, "/v1/entities/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &projection.Entity{
		ID:           out.ID,
		WorkspaceID:  out.WorkspaceID,
		Title:        out.Title,
		Content:      out.Content,
		Excerpt:      out.Excerpt,
		Status:       domain.Status(out.Status),
		AuthorID:     out.AuthorID,
		CollectionID: out.CollectionID,
		Metadata:     out.Metadata,
		ViewCount:    out.ViewCount,
		CreatedAt:    out.CreatedAt,
		UpdatedAt:    out.UpdatedAt,
	}, nil
}

// GetAuthor returns one author row by id.
func (c *EntityStoreClient) GetAuthor(ctx context.Context, id string) (*projection.AuthorRow, error) {
	var out struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	}
	if err := c.get(ctx, "/v1/authors/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &projection.AuthorRow{ID: out.ID, DisplayName: out.DisplayName}, nil
}

// GetCollection returns one collection row by id.
func (c *EntityStoreClient) GetCollection(ctx context.Context, id string) (*projection.CollectionRow, error) {
	var out struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		ParentID string `json:"parentId"`
	}
	if err := c.get(ctx, "/v1/collections/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &projection.CollectionRow{ID: out.ID, Name: out.Name, ParentID: out.ParentID}, nil
}

// GetTags returns the tags attached to an entity.
func (c *EntityStoreClient) GetTags(ctx context.Context, entityID string) ([]domain.Tag, error) {
	var out []domain.Tag
	if err := c.get(ctx, "/v1/entities/"+url.PathEscape(entityID)+"/tags", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFacets returns the typed facets attached to an entity.
func (c *EntityStoreClient) GetFacets(ctx context.Context, entityID string) ([]domain.Facet, error) {
	var out []domain.Facet
	if err := c.get(ctx, "/v1/entities/"+url.PathEscape(entityID)+"/facets", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByCollection enumerates entity ids in one collection.
func (c *EntityStoreClient) ListByCollection(ctx context.Context, workspaceID, collectionID string) ([]string, error) {
	return c.list(ctx, workspaceID, url.Values{"collectionId": {collectionID}})
}

// ListByTag enumerates entity ids carrying one tag.
func (c *EntityStoreClient) ListByTag(ctx context.Context, workspaceID, tagID string) ([]string, error) {
	return c.list(ctx, workspaceID, url.Values{"tagId": {tagID}})
}

// ListByWorkspace enumerates every entity id in the workspace.
func (c *EntityStoreClient) ListByWorkspace(ctx context.Context, workspaceID string) ([]string, error) {
	return c.list(ctx, workspaceID, nil)
}

func (c *EntityStoreClient) list(ctx context.Context, workspaceID string, query url.Values) ([]string, error) {
	path := "/v1/workspaces/" + url.PathEscape(workspaceID) + "/entity-ids"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out struct {
		IDs []string `json:"ids"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

func (c *EntityStoreClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build entity store request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("entity store request %s: %w", path, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("entity store %s: %w", path, domain.ErrNotFound)
	case res.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		c.logger.Warn("entity store error",
			zap.Int("status", res.StatusCode),
			zap.String("path", path),
		)
		return fmt.Errorf("entity store returned %d: %s", res.StatusCode, string(body))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode entity store response: %w", err)
	}
	return nil
}
