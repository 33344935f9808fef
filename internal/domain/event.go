package domain

import "time"

// EventType classifies an index event.
type EventType string

// Index event types. Upserts are coalesced and batched; deletes apply
// immediately; reindex events expand into upserts for every affected entity.
const (
	EventUpsert            EventType = "UPSERT"
	EventDelete            EventType = "DELETE"
	EventReindexCollection EventType = "REINDEX_COLLECTION"
	EventReindexTag        EventType = "REINDEX_TAG"
	EventReindexWorkspace  EventType = "REINDEX_WORKSPACE"
)

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	switch t {
	case EventUpsert, EventDelete, EventReindexCollection, EventReindexTag, EventReindexWorkspace:
		return true
	}
	return false
}

// IndexEvent is a domain change notification consumed by the indexing
// pipeline. For reindex events EntityID names the collection, tag, or
// workspace being reindexed. Events are not persisted: an in-flight batch
// lost to a crash is recovered by a workspace reindex sweep.
type IndexEvent struct {
	Type        EventType
	EntityID    string
	WorkspaceID string
	Timestamp   time.Time
	Metadata    map[string]string
}

// Key returns the coalescing key: the latest pending event per
// (workspace, entity) pair wins inside a debounce window.
func (e IndexEvent) Key() EventKey {
	return EventKey{WorkspaceID: e.WorkspaceID, EntityID: e.EntityID}
}

// EventKey identifies a pending batch slot.
type EventKey struct {
	WorkspaceID string
	EntityID    string
}
