package domain

import "time"

// Status is the publication state of a knowledge document.
type Status string

// Document statuses.
const (
	StatusDraft     Status = "DRAFT"
	StatusReview    Status = "REVIEW"
	StatusPublished Status = "PUBLISHED"
	StatusArchived  Status = "ARCHIVED"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// FacetType is the value type of a typed metadata facet.
type FacetType string

// Facet value types.
const (
	FacetString  FacetType = "STRING"
	FacetNumber  FacetType = "NUMBER"
	FacetDate    FacetType = "DATE"
	FacetBoolean FacetType = "BOOLEAN"
)

// Facet is one typed metadata attribute of a document. Exactly one value
// field is populated, matching Type.
type Facet struct {
	KeyPath      string     `json:"keyPath"`
	Type         FacetType  `json:"type"`
	StringValue  *string    `json:"stringValue,omitempty"`
	NumberValue  *float64   `json:"numberValue,omitempty"`
	DateValue    *time.Time `json:"dateValue,omitempty"`
	BooleanValue *bool      `json:"booleanValue,omitempty"`
}

// Author is the embedded author projection.
type Author struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Collection is the embedded collection projection. Path is the
// slash-joined ancestry from root to leaf.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Tag is the embedded tag projection.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// IndexDocument is the denormalized, engine-resident projection of a
// knowledge document. It is owned entirely by the projection layer: every
// reindex replaces the whole document, nothing is patched in place.
type IndexDocument struct {
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspaceId"`
	Title       string            `json:"title"`
	Content     string            `json:"content"`
	Excerpt     string            `json:"excerpt,omitempty"`
	Status      Status            `json:"status"`
	Author      Author            `json:"author"`
	Collection  *Collection       `json:"collection,omitempty"`
	Tags        []Tag             `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Facets      []Facet           `json:"facets,omitempty"`
	ViewCount   int64             `json:"viewCount"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}
