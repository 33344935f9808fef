// Package projection derives the flat, engine-resident IndexDocument from
// the normalized domain store. Every reindex regenerates the whole
// document; nothing is patched in place.
package projection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/knowledge-network/knsearch/internal/domain"
)

// maxAncestryDepth bounds the collection parent walk so a corrupted parent
// link cannot loop forever.
const maxAncestryDepth = 128

// Service assembles index documents from store rows.
type Service struct {
	store EntityStore
}

// New creates a projection service.
func New(store EntityStore) *Service {
	return &Service{store: store}
}

// Project builds the index document for an entity. A missing entity yields
// (nil, nil): it may have been deleted between event emission and batch
// processing, which callers treat as a benign skip.
func (s *Service) Project(ctx context.Context, entityID string) (*domain.IndexDocument, error) {
	entity, err := s.store.GetEntity(ctx, entityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entity %s: %w", entityID, err)
	}

	author, err := s.store.GetAuthor(ctx, entity.AuthorID)
	if err != nil {
		return nil, fmt.Errorf("get author %s: %w", entity.AuthorID, err)
	}

	collection, err := s.collectionWithPath(ctx, entity.CollectionID)
	if err != nil {
		return nil, err
	}

	tags, err := s.store.GetTags(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("get tags for %s: %w", entityID, err)
	}

	facets, err := s.store.GetFacets(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("get facets for %s: %w", entityID, err)
	}

	return &domain.IndexDocument{
		ID:          entity.ID,
		WorkspaceID: entity.WorkspaceID,
		Title:       entity.Title,
		Content:     entity.Content,
		Excerpt:     entity.Excerpt,
		Status:      entity.Status,
		Author:      domain.Author{ID: author.ID, DisplayName: author.DisplayName},
		Collection:  collection,
		Tags:        tags,
		Metadata:    entity.Metadata,
		Facets:      facets,
		ViewCount:   entity.ViewCount,
		CreatedAt:   entity.CreatedAt,
		UpdatedAt:   entity.UpdatedAt,
	}, nil
}

// collectionWithPath resolves the leaf collection and its slash-joined
// ancestry path, walked leaf to root. The walk is capped and stops silently
// on a cycle or missing link; the path built so far is kept.
func (s *Service) collectionWithPath(ctx context.Context, collectionID string) (*domain.Collection, error) {
	if collectionID == "" {
		return nil, nil
	}

	leaf, err := s.store.GetCollection(ctx, collectionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get collection %s: %w", collectionID, err)
	}

	names := []string{leaf.Name}
	visited := map[string]struct{}{leaf.ID: {}}
	parentID := leaf.ParentID

	for i := 0; i < maxAncestryDepth && parentID != ""; i++ {
		if _, seen := visited[parentID]; seen {
			break
		}
		parent, err := s.store.GetCollection(ctx, parentID)
		if err != nil {
			// Missing ancestor: keep the path walked so far.
			break
		}
		visited[parent.ID] = struct{}{}
		names = append([]string{parent.Name}, names...)
		parentID = parent.ParentID
	}

	return &domain.Collection{
		ID:   leaf.ID,
		Name: leaf.Name,
		Path: "/" + strings.Join(names, "/"),
	}, nil
}
