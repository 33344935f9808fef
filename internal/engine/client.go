// Package engine is the typed client boundary to the external
// document-search engine. The engine accepts a JSON bool/filter/aggregation
// query and returns scored hits; responses are parsed into strict internal
// types immediately so nothing downstream touches loose JSON.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/knowledge-network/knsearch/internal/domain"
)

// RefreshMode controls when an index write becomes visible to search.
// The consistency window is an explicit knob, not a hidden assumption.
type RefreshMode string

// Refresh modes, passed through to the engine on every mutating call.
const (
	RefreshWaitFor RefreshMode = "wait_for"
	RefreshTrue    RefreshMode = "true"
	RefreshFalse   RefreshMode = "false"
)

// IsValid reports whether m is a known refresh mode.
func (m RefreshMode) IsValid() bool {
	switch m {
	case RefreshWaitFor, RefreshTrue, RefreshFalse:
		return true
	}
	return false
}

// Client is the engine contract consumed by the orchestrator and indexer.
type Client interface {
	Search(ctx context.Context, index string, body map[string]any) (*Response, error)
	Bulk(ctx context.Context, actions []BulkAction) (*BulkResponse, error)
	Delete(ctx context.Context, index, id string) error
	Ping(ctx context.Context) error
}

// Hit is one scored document with optional highlight fragments.
type Hit struct {
	Document  domain.IndexDocument
	Score     float64
	Highlight map[string][]string
}

// Bucket is one key/count pair of a terms or histogram aggregation.
type Bucket struct {
	Key         any    `json:"key"`
	KeyAsString string `json:"key_as_string"`
	DocCount    int64  `json:"doc_count"`
}

// KeyString returns the bucket key as a string.
func (b Bucket) KeyString() string {
	if b.KeyAsString != "" {
		return b.KeyAsString
	}
	switch k := b.Key.(type) {
	case string:
		return k
	case float64:
		return fmt.Sprintf("%g", k)
	default:
		return fmt.Sprintf("%v", k)
	}
}

// Aggregation holds either term/histogram buckets or numeric stats.
type Aggregation struct {
	Buckets []Bucket `json:"buckets"`
	Count   int64    `json:"count"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Avg     float64  `json:"avg"`
	Sum     float64  `json:"sum"`
}

// Response is a parsed search response.
type Response struct {
	Hits         []Hit
	Total        int64
	Aggregations map[string]Aggregation
	TookMS       int64
}

// BulkActionType selects the bulk operation per item.
type BulkActionType string

// Bulk action types.
const (
	BulkIndex  BulkActionType = "index"
	BulkDelete BulkActionType = "delete"
)

// BulkAction is one item of a bulk request. Document is nil for deletes.
type BulkAction struct {
	Type     BulkActionType
	Index    string
	ID       string
	Document *domain.IndexDocument
}

// BulkItem is the per-item outcome of a bulk call.
type BulkItem struct {
	ID     string
	Status int
	Error  string
}

// Failed reports whether the item was rejected by the engine.
func (i BulkItem) Failed() bool { return i.Status >= 300 || i.Error != "" }

// BulkResponse is a parsed bulk response.
type BulkResponse struct {
	Errors bool
	Items  []BulkItem
}

// FailedItems returns the rejected items of the bulk call.
func (r *BulkResponse) FailedItems() []BulkItem {
	var failed []BulkItem
	for _, item := range r.Items {
		if item.Failed() {
			failed = append(failed, item)
		}
	}
	return failed
}

// wire shapes, internal to the boundary parser

type wireResponse struct {
	Hits         []wireHit                  `json:"hits"`
	Total        int64                      `json:"total"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
	Took         int64                      `json:"took"`
}

type wireHit struct {
	Source    json.RawMessage     `json:"_source"`
	Score     float64             `json:"_score"`
	Highlight map[string][]string `json:"highlight"`
}

// parseResponse validates the raw engine payload into the typed Response.
func parseResponse(data []byte) (*Response, error) {
	var raw wireResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	resp := &Response{
		Total:  raw.Total,
		TookMS: raw.Took,
		Hits:   make([]Hit, 0, len(raw.Hits)),
	}

	for i, h := range raw.Hits {
		var doc domain.IndexDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, fmt.Errorf("decode hit %d source: %w", i, err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("hit %d: document without id", i)
		}
		resp.Hits = append(resp.Hits, Hit{Document: doc, Score: h.Score, Highlight: h.Highlight})
	}

	if len(raw.Aggregations) > 0 {
		resp.Aggregations = make(map[string]Aggregation, len(raw.Aggregations))
		for name, payload := range raw.Aggregations {
			var agg Aggregation
			if err := json.Unmarshal(payload, &agg); err != nil {
				return nil, fmt.Errorf("decode aggregation %q: %w", name, err)
			}
			resp.Aggregations[name] = agg
		}
	}

	return resp, nil
}
