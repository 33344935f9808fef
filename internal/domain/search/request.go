// Package search holds the request/response contract of the search
// orchestrator. Requests are normalized so that two equal requests
// marshal to identical bytes, which makes cache keys deterministic.
package search

import (
	"fmt"
	"sort"
	"time"

	"github.com/knowledge-network/knsearch/internal/domain"
)

// Pagination limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxQueryLength  = 4096
)

// SortOrder is the direction of a sort clause.
type SortOrder string

// Sort directions.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortFieldRelevance sorts by engine score with recency as tiebreaker.
const SortFieldRelevance = "relevance"

// DateRange bounds document creation time. Either side may be zero.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Filters narrow search eligibility without affecting relevance score.
type Filters struct {
	Collections []string          `json:"collections,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Authors     []string          `json:"authors,omitempty"`
	Status      []domain.Status   `json:"status,omitempty"`
	DateRange   DateRange         `json:"dateRange,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sort declares the result ordering. A document-id tiebreaker is always
// appended by the query builder regardless of the chosen field.
type Sort struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// Page is 1-based pagination.
type Page struct {
	Number int `json:"number"`
	Size   int `json:"size"`
}

// Request is a structured search request. WorkspaceID is the tenancy
// boundary: no request may cross workspaces.
type Request struct {
	Query        string  `json:"query"`
	WorkspaceID  string  `json:"workspaceId"`
	Filters      Filters `json:"filters"`
	Sort         Sort    `json:"sort"`
	Page         Page    `json:"page"`
	Facets       bool    `json:"facets"`
	Highlight    bool    `json:"highlight"`
	IncludeDebug bool    `json:"includeDebug"`
}

// NewRequest validates and normalizes a search request.
// An empty query is allowed and degrades to match-all browsing.
func NewRequest(query, workspaceID string) (Request, error) {
	r := Request{Query: query, WorkspaceID: workspaceID}
	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	r.Normalize()
	return r, nil
}

// Validate checks structural invariants.
func (r *Request) Validate() error {
	if r.WorkspaceID == "" {
		return fmt.Errorf("%w: workspaceId is required", domain.ErrInvalidRequest)
	}
	if len(r.Query) > MaxQueryLength {
		return fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidRequest, MaxQueryLength)
	}
	for _, s := range r.Filters.Status {
		if !s.IsValid() {
			return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, s)
		}
	}
	if r.Sort.Order != "" && r.Sort.Order != SortAsc && r.Sort.Order != SortDesc {
		return fmt.Errorf("%w: sort order must be asc or desc", domain.ErrInvalidRequest)
	}
	if r.Page.Number < 0 || r.Page.Size < 0 {
		return fmt.Errorf("%w: negative pagination", domain.ErrInvalidRequest)
	}
	return nil
}

// Normalize applies defaults and sorts filter slices so that equal
// requests marshal to identical JSON.
func (r *Request) Normalize() {
	if r.Sort.Field == "" {
		r.Sort.Field = SortFieldRelevance
	}
	if r.Sort.Order == "" {
		if r.Sort.Field == SortFieldRelevance {
			r.Sort.Order = SortDesc
		} else {
			r.Sort.Order = SortAsc
		}
	}
	if r.Page.Number <= 0 {
		r.Page.Number = 1
	}
	if r.Page.Size <= 0 {
		r.Page.Size = DefaultPageSize
	}
	if r.Page.Size > MaxPageSize {
		r.Page.Size = MaxPageSize
	}
	sort.Strings(r.Filters.Collections)
	sort.Strings(r.Filters.Tags)
	sort.Strings(r.Filters.Authors)
	sort.Slice(r.Filters.Status, func(i, j int) bool {
		return r.Filters.Status[i] < r.Filters.Status[j]
	})
}

// From returns the 0-based offset for the engine call.
func (r *Request) From() int { return (r.Page.Number - 1) * r.Page.Size }
