// Package search orchestrates every query: cache fast path, permission
// filtering, query construction, breaker-guarded engine call, typed
// transform, cache write, and async analytics.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/domain"
	domsearch "github.com/knowledge-network/knsearch/internal/domain/search"
	"github.com/knowledge-network/knsearch/internal/engine"
	"github.com/knowledge-network/knsearch/internal/engine/query"
	"github.com/knowledge-network/knsearch/internal/monitor"
)

// Config holds orchestrator settings.
type Config struct {
	// Index is the engine index all documents live in.
	Index string
	// ResultTTL is how long search responses stay cached.
	ResultTTL time.Duration
	// AnalyticsTimeout bounds the fire-and-forget analytics write.
	AnalyticsTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ResultTTL <= 0 {
		c.ResultTTL = 5 * time.Minute
	}
	if c.AnalyticsTimeout <= 0 {
		c.AnalyticsTimeout = 5 * time.Second
	}
}

// Service is the search orchestrator.
type Service struct {
	cfg       Config
	eng       engine.Client
	guard     Guard
	cache     ResultCache
	perms     Permissions
	analytics Analytics
	events    EventDispatcher
	mon       Recorder
	logger    *zap.Logger
}

// New creates a search service.
func New(
	cfg Config,
	eng engine.Client,
	guard Guard,
	cache ResultCache,
	perms Permissions,
	analytics Analytics,
	events EventDispatcher,
	mon Recorder,
	logger *zap.Logger,
) *Service {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		eng:       eng,
		guard:     guard,
		cache:     cache,
		perms:     perms,
		analytics: analytics,
		events:    events,
		mon:       mon,
		logger:    logger,
	}
}

// Search executes one search request for the caller.
func (s *Service) Search(ctx context.Context, req *domsearch.Request, callerID string) (*domsearch.Response, error) {
	start := time.Now()
	resp, err := s.search(ctx, req, callerID, start)
	s.record(monitor.OpSearch, start, err)
	return resp, err
}

func (s *Service) search(
	ctx context.Context, req *domsearch.Request, callerID string, start time.Time,
) (*domsearch.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Normalize()

	key := cacheKey(req, callerID)

	// Cached results bypass the breaker entirely: a degraded backend must
	// not prevent cache hits from being served. Debug responses carry
	// ephemeral explain data and skip the cache both ways.
	if !req.IncludeDebug {
		if data, ok := s.cache.Get(ctx, key); ok {
			var cached domsearch.Response
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.FromCache = true
				return &cached, nil
			}
			s.logger.Warn("dropping undecodable cache entry", zap.String("key", key))
		}
	}

	permFilters, emptyResult, err := s.permissionFilters(ctx, req, callerID)
	if err != nil {
		return nil, err
	}
	if emptyResult {
		// Caller-requested collections are disjoint from the allow-list;
		// nothing can match, skip the engine round-trip.
		return &domsearch.Response{Hits: []domsearch.Hit{}, Took: time.Since(start)}, nil
	}

	body := query.BuildBody(req, permFilters)

	var raw *engine.Response
	err = s.guard.Execute(ctx, func(ctx context.Context) error {
		var engErr error
		raw, engErr = s.eng.Search(ctx, s.cfg.Index, body)
		return engErr
	})
	if err != nil {
		return nil, fmt.Errorf("search workspace %s: %w", req.WorkspaceID, err)
	}

	resp := transform(raw, req, time.Since(start))
	if req.IncludeDebug {
		resp.Debug = map[string]any{
			"engineTookMs": raw.TookMS,
			"query":        body,
		}
	} else {
		if data, mErr := json.Marshal(resp); mErr == nil {
			s.cache.SetTagged(ctx, key, data, s.cfg.ResultTTL, []string{workspaceTag(req.WorkspaceID)})
		}
	}

	s.logQuery(req, callerID, resp.Total, time.Since(start))
	return resp, nil
}

// permissionFilters asks the authorization collaborator for the caller's
// constraints and translates them into engine filter clauses. These are
// appended after the caller's own filters and are never overridable: a
// caller-supplied filter can only narrow access, never widen it.
func (s *Service) permissionFilters(
	ctx context.Context, req *domsearch.Request, callerID string,
) (filters []map[string]any, emptyResult bool, err error) {
	ok, err := s.perms.CheckWorkspaceAccess(ctx, callerID, req.WorkspaceID)
	if err != nil {
		return nil, false, fmt.Errorf("check workspace access: %w", err)
	}
	if !ok {
		return nil, false, fmt.Errorf("caller %s, workspace %s: %w", callerID, req.WorkspaceID, domain.ErrWorkspaceAccessDenied)
	}

	perms, err := s.perms.GetUserPermissions(ctx, callerID, req.WorkspaceID)
	if err != nil {
		return nil, false, fmt.Errorf("get user permissions: %w", err)
	}
	if perms.Role == domain.RoleViewer {
		filters = append(filters, map[string]any{
			"term": map[string]any{"status": domain.StatusPublished},
		})
	}

	allowed, err := s.perms.GetUserCollections(ctx, callerID, req.WorkspaceID)
	if err != nil {
		return nil, false, fmt.Errorf("get user collections: %w", err)
	}
	if restricted(allowed) {
		if len(req.Filters.Collections) > 0 && disjoint(req.Filters.Collections, allowed) {
			return nil, true, nil
		}
		filters = append(filters, map[string]any{
			"terms": map[string]any{"collection.id": allowed},
		})
	}

	return filters, false, nil
}

func restricted(collections []string) bool {
	for _, c := range collections {
		if c == domain.WildcardCollection {
			return false
		}
	}
	return true
}

func disjoint(requested, allowed []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, c := range allowed {
		set[c] = struct{}{}
	}
	for _, c := range requested {
		if _, ok := set[c]; ok {
			return false
		}
	}
	return true
}

// logQuery emits the analytics record without blocking the search call.
// Analytics failures are logged, never surfaced.
func (s *Service) logQuery(req *domsearch.Request, callerID string, results int64, took time.Duration) {
	if s.analytics == nil {
		return
	}
	rec := domsearch.QueryRecord{
		ID:          uuid.NewString(),
		CallerID:    callerID,
		WorkspaceID: req.WorkspaceID,
		Query:       req.Query,
		Filters:     req.Filters,
		ResultCount: results,
		Took:        took,
		At:          time.Now(),
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("analytics sink panicked", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.AnalyticsTimeout)
		defer cancel()
		if err := s.analytics.Record(ctx, rec); err != nil {
			s.logger.Warn("analytics record failed", zap.String("record_id", rec.ID), zap.Error(err))
		}
	}()
}

// Index requests reindexing of one entity and makes the write visible by
// clearing the workspace's cached results.
func (s *Service) Index(ctx context.Context, workspaceID, entityID string) error {
	start := time.Now()
	err := s.dispatch(ctx, domain.IndexEvent{
		Type:        domain.EventUpsert,
		EntityID:    entityID,
		WorkspaceID: workspaceID,
		Timestamp:   start,
	})
	s.cache.ClearWorkspace(ctx, workspaceID)
	s.record(monitor.OpIndex, start, err)
	return err
}

// BulkIndex requests reindexing of many entities of one workspace.
func (s *Service) BulkIndex(ctx context.Context, workspaceID string, entityIDs []string) error {
	start := time.Now()
	var err error
	for _, id := range entityIDs {
		if dErr := s.dispatch(ctx, domain.IndexEvent{
			Type:        domain.EventUpsert,
			EntityID:    id,
			WorkspaceID: workspaceID,
			Timestamp:   start,
		}); dErr != nil && err == nil {
			err = dErr
		}
	}
	s.cache.ClearWorkspace(ctx, workspaceID)
	s.record(monitor.OpBulkIndex, start, err)
	return err
}

// Delete removes an entity from the index immediately.
func (s *Service) Delete(ctx context.Context, workspaceID, entityID string) error {
	start := time.Now()
	err := s.dispatch(ctx, domain.IndexEvent{
		Type:        domain.EventDelete,
		EntityID:    entityID,
		WorkspaceID: workspaceID,
		Timestamp:   start,
	})
	s.cache.ClearWorkspace(ctx, workspaceID)
	s.record(monitor.OpDelete, start, err)
	return err
}

// ReindexWorkspace triggers the full-workspace sweep, the system's recovery
// mechanism after a crash during a previous batch.
func (s *Service) ReindexWorkspace(ctx context.Context, workspaceID string) error {
	start := time.Now()
	err := s.dispatch(ctx, domain.IndexEvent{
		Type:        domain.EventReindexWorkspace,
		WorkspaceID: workspaceID,
		Timestamp:   start,
	})
	s.record(monitor.OpBulkIndex, start, err)
	return err
}

func (s *Service) dispatch(ctx context.Context, event domain.IndexEvent) error {
	if err := s.events.Dispatch(ctx, event); err != nil {
		return fmt.Errorf("dispatch %s for %s: %w", event.Type, event.EntityID, err)
	}
	return nil
}

func (s *Service) record(op string, start time.Time, err error) {
	if s.mon != nil {
		s.mon.Record(op, time.Since(start), err == nil)
	}
}
