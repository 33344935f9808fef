package search

import (
	"time"

	"github.com/knowledge-network/knsearch/internal/domain"
)

// Hit is one scored result.
type Hit struct {
	Document   domain.IndexDocument `json:"document"`
	Score      float64              `json:"score"`
	Highlights map[string][]string  `json:"highlights,omitempty"`
}

// FacetBucket is one value bucket of a facet aggregation.
type FacetBucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Facets groups the bucket aggregations returned with a search.
type Facets struct {
	Collections []FacetBucket `json:"collections,omitempty"`
	Tags        []FacetBucket `json:"tags,omitempty"`
	Authors     []FacetBucket `json:"authors,omitempty"`
	Status      []FacetBucket `json:"status,omitempty"`
}

// Response is the typed search result handed back to callers.
type Response struct {
	Hits      []Hit          `json:"hits"`
	Total     int64          `json:"total"`
	Facets    *Facets        `json:"facets,omitempty"`
	Took      time.Duration  `json:"took"`
	Debug     map[string]any `json:"debug,omitempty"`
	FromCache bool           `json:"fromCache,omitempty"`
}
