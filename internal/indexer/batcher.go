// Package indexer turns a stream of fine-grained domain change events into
// efficient, eventually-consistent bulk updates to the search engine.
// Upserts are coalesced per (workspace, entity) inside a debounce window;
// deletes bypass batching because a deleted document staying searchable is
// a privacy problem, not just staleness.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/domain"
	"github.com/knowledge-network/knsearch/internal/engine"
)

// Defaults for the batching window.
const (
	DefaultDebounceWindow = 100 * time.Millisecond
	DefaultMaxBatchSize   = 500
)

// Config holds batching parameters.
type Config struct {
	// Index is the engine index all documents live in.
	Index string
	// DebounceWindow is how long enqueues are coalesced before a flush.
	DebounceWindow time.Duration
	// MaxBatchSize forces an immediate flush when the pending map reaches
	// it; this is the pipeline's only backpressure valve.
	MaxBatchSize int
}

func (c *Config) applyDefaults() {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = DefaultDebounceWindow
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
}

// FlushError reports one workspace's failed bulk application. Failures are
// isolated per workspace: one workspace's error never blocks the others.
type FlushError struct {
	WorkspaceID string
	Err         error
}

// ErrorHandler receives per-workspace flush failures.
type ErrorHandler func(FlushError)

// Batcher implements Handler with debounced, coalescing batch indexing.
type Batcher struct {
	cfg       Config
	projector Projector
	enum      EntityEnumerator
	eng       BulkClient
	guard     Guard
	cache     CacheInvalidator
	logger    *zap.Logger

	onError    ErrorHandler
	queueDepth prometheus.Gauge
	flushTotal *prometheus.CounterVec

	mu             sync.Mutex
	pending        map[domain.EventKey]domain.IndexEvent
	timer          *time.Timer
	flushScheduled bool
	closed         bool

	inflight sync.WaitGroup
}

// Compile-time check: Batcher implements Handler.
var _ Handler = (*Batcher)(nil)

// NewBatcher creates a batching index event handler.
func NewBatcher(
	cfg Config,
	projector Projector,
	enum EntityEnumerator,
	eng BulkClient,
	guard Guard,
	cache CacheInvalidator,
	logger *zap.Logger,
) *Batcher {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{
		cfg:       cfg,
		projector: projector,
		enum:      enum,
		eng:       eng,
		guard:     guard,
		cache:     cache,
		logger:    logger,
		pending:   make(map[domain.EventKey]domain.IndexEvent),
	}
}

// WithErrorHandler registers a callback for per-workspace flush failures.
func (b *Batcher) WithErrorHandler(f ErrorHandler) *Batcher {
	b.onError = f
	return b
}

// WithMetrics attaches queue-depth and flush counters. flushTotal carries a
// "status" label (ok/partial/error). Either may be nil.
func (b *Batcher) WithMetrics(queueDepth prometheus.Gauge, flushTotal *prometheus.CounterVec) *Batcher {
	b.queueDepth = queueDepth
	b.flushTotal = flushTotal
	return b
}

// Handle routes one domain event into the pipeline.
func (b *Batcher) Handle(ctx context.Context, event domain.IndexEvent) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("%w: unknown event type %q", domain.ErrInvalidRequest, event.Type)
	}
	if event.WorkspaceID == "" {
		return fmt.Errorf("%w: event without workspace", domain.ErrInvalidRequest)
	}

	switch event.Type {
	case domain.EventUpsert:
		return b.enqueue(event)
	case domain.EventDelete:
		return b.deleteNow(ctx, event)
	case domain.EventReindexCollection, domain.EventReindexTag, domain.EventReindexWorkspace:
		return b.reindex(ctx, event)
	}
	return nil
}

// enqueue inserts the event into the pending map, last write wins per
// (workspace, entity) key. Reaching MaxBatchSize forces an immediate
// flush instead of waiting for the debounce timer.
func (b *Batcher) enqueue(event domain.IndexEvent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("indexer shut down, dropping event for %s", event.EntityID)
	}

	b.pending[event.Key()] = event
	b.setQueueDepth(len(b.pending))

	if len(b.pending) >= b.cfg.MaxBatchSize {
		batch := b.takeLocked()
		b.mu.Unlock()
		b.spawnFlush(batch)
		return nil
	}

	b.armTimerLocked()
	b.mu.Unlock()
	return nil
}

// deleteNow applies a delete immediately, before any pending flush. A
// queued upsert for the same key is discarded so a later flush cannot
// resurrect the document.
func (b *Batcher) deleteNow(ctx context.Context, event domain.IndexEvent) error {
	b.mu.Lock()
	delete(b.pending, event.Key())
	b.setQueueDepth(len(b.pending))
	b.mu.Unlock()

	err := b.guard.Execute(ctx, func(ctx context.Context) error {
		return b.eng.Delete(ctx, b.cfg.Index, event.EntityID)
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", event.EntityID, err)
	}

	b.cache.ClearWorkspace(ctx, event.WorkspaceID)
	return nil
}

// reindex expands a scoped reindex into upsert events through the normal
// batching path.
func (b *Batcher) reindex(ctx context.Context, event domain.IndexEvent) error {
	var (
		ids []string
		err error
	)
	switch event.Type {
	case domain.EventReindexCollection:
		ids, err = b.enum.ListByCollection(ctx, event.WorkspaceID, event.EntityID)
	case domain.EventReindexTag:
		ids, err = b.enum.ListByTag(ctx, event.WorkspaceID, event.EntityID)
	case domain.EventReindexWorkspace:
		ids, err = b.enum.ListByWorkspace(ctx, event.WorkspaceID)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("enumerate %s scope %s: %w", event.Type, event.EntityID, err)
	}

	b.logger.Info("reindex scope expanded",
		zap.String("type", string(event.Type)),
		zap.String("scope", event.EntityID),
		zap.String("workspace_id", event.WorkspaceID),
		zap.Int("entities", len(ids)),
	)

	for _, id := range ids {
		upsert := domain.IndexEvent{
			Type:        domain.EventUpsert,
			EntityID:    id,
			WorkspaceID: event.WorkspaceID,
			Timestamp:   event.Timestamp,
		}
		if err := b.enqueue(upsert); err != nil {
			return err
		}
	}
	return nil
}

// Flush synchronously drains the pending map and applies it.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	b.flush(ctx, batch)
}

// Shutdown stops the timer and drains the queue. No event is silently
// dropped on a graceful shutdown.
func (b *Batcher) Shutdown(ctx context.Context) {
	b.mu.Lock()
	b.closed = true
	batch := b.takeLocked()
	b.mu.Unlock()

	b.flush(ctx, batch)
	b.inflight.Wait()
}

// takeLocked atomically takes and clears the pending map and disarms the
// debounce timer. Callers hold the lock.
func (b *Batcher) takeLocked() map[domain.EventKey]domain.IndexEvent {
	batch := b.pending
	b.pending = make(map[domain.EventKey]domain.IndexEvent)
	b.setQueueDepth(0)
	if b.timer != nil {
		b.timer.Stop()
	}
	b.flushScheduled = false
	return batch
}

// armTimerLocked (re)starts the debounce timer. "Is a flush scheduled" is
// explicit state, not an ambient side effect. Callers hold the lock.
func (b *Batcher) armTimerLocked() {
	if b.flushScheduled {
		b.timer.Reset(b.cfg.DebounceWindow)
		return
	}
	b.flushScheduled = true
	if b.timer == nil {
		b.timer = time.AfterFunc(b.cfg.DebounceWindow, b.onTimer)
		return
	}
	b.timer.Reset(b.cfg.DebounceWindow)
}

func (b *Batcher) onTimer() {
	b.mu.Lock()
	batch := b.takeLocked()
	b.mu.Unlock()
	b.spawnFlush(batch)
}

// spawnFlush runs a flush concurrently with new enqueues; the pending map
// was already swapped out atomically.
func (b *Batcher) spawnFlush(batch map[domain.EventKey]domain.IndexEvent) {
	if len(batch) == 0 {
		return
	}
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.flush(context.Background(), batch)
	}()
}

// flush groups the batch by workspace, projects surviving upserts, and
// issues one bulk call per workspace through the breaker. Per-workspace
// failures are reported and never block the other workspaces.
func (b *Batcher) flush(ctx context.Context, batch map[domain.EventKey]domain.IndexEvent) {
	if len(batch) == 0 {
		return
	}

	byWorkspace := make(map[string][]domain.IndexEvent)
	for _, event := range batch {
		byWorkspace[event.WorkspaceID] = append(byWorkspace[event.WorkspaceID], event)
	}

	for workspaceID, events := range byWorkspace {
		if err := b.flushWorkspace(ctx, workspaceID, events); err != nil {
			b.countFlush("error")
			b.report(FlushError{WorkspaceID: workspaceID, Err: err})
			continue
		}
		b.cache.ClearWorkspace(ctx, workspaceID)
	}
}

func (b *Batcher) flushWorkspace(ctx context.Context, workspaceID string, events []domain.IndexEvent) error {
	actions := make([]engine.BulkAction, 0, len(events))
	for _, event := range events {
		doc, err := b.projector.Project(ctx, event.EntityID)
		if err != nil {
			return fmt.Errorf("project %s: %w", event.EntityID, err)
		}
		if doc == nil {
			// Deleted between event emission and flush; fine to ignore.
			continue
		}
		actions = append(actions, engine.BulkAction{
			Type:     engine.BulkIndex,
			Index:    b.cfg.Index,
			ID:       doc.ID,
			Document: doc,
		})
	}
	if len(actions) == 0 {
		b.countFlush("ok")
		return nil
	}

	var resp *engine.BulkResponse
	err := b.guard.Execute(ctx, func(ctx context.Context) error {
		var bulkErr error
		resp, bulkErr = b.eng.Bulk(ctx, actions)
		return bulkErr
	})
	if err != nil {
		return fmt.Errorf("bulk %d docs: %w", len(actions), err)
	}

	if failed := resp.FailedItems(); len(failed) > 0 {
		b.countFlush("partial")
		ids := make([]string, len(failed))
		for i, item := range failed {
			ids[i] = item.ID
		}
		b.report(FlushError{
			WorkspaceID: workspaceID,
			Err:         fmt.Errorf("%w: %d of %d items: %v", domain.ErrBulkPartialFailure, len(failed), len(actions), ids),
		})
		return nil
	}

	b.countFlush("ok")
	b.logger.Debug("batch applied",
		zap.String("workspace_id", workspaceID),
		zap.Int("docs", len(actions)),
	)
	return nil
}

func (b *Batcher) report(fe FlushError) {
	b.logger.Error("batch flush failed",
		zap.String("workspace_id", fe.WorkspaceID),
		zap.Error(fe.Err),
	)
	if b.onError != nil {
		b.onError(fe)
	}
}

func (b *Batcher) setQueueDepth(n int) {
	if b.queueDepth != nil {
		b.queueDepth.Set(float64(n))
	}
}

func (b *Batcher) countFlush(status string) {
	if b.flushTotal != nil {
		b.flushTotal.WithLabelValues(status).Inc()
	}
}

// PendingCount returns the current queue depth.
func (b *Batcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
