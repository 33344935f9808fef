package search

import (
	"time"

	domsearch "github.com/knowledge-network/knsearch/internal/domain/search"
	"github.com/knowledge-network/knsearch/internal/engine"
)

// transform converts the parsed engine response into the caller-facing
// response shape. Facets are attached only when the caller asked for them,
// even though the engine always computes them.
func transform(raw *engine.Response, req *domsearch.Request, took time.Duration) *domsearch.Response {
	hits := make([]domsearch.Hit, len(raw.Hits))
	for i, h := range raw.Hits {
		hits[i] = domsearch.Hit{
			Document:   h.Document,
			Score:      h.Score,
			Highlights: h.Highlight,
		}
	}

	resp := &domsearch.Response{
		Hits:  hits,
		Total: raw.Total,
		Took:  took,
	}
	if req.Facets {
		resp.Facets = facetsFromAggregations(raw.Aggregations)
	}
	return resp
}

func facetsFromAggregations(aggs map[string]engine.Aggregation) *domsearch.Facets {
	if len(aggs) == 0 {
		return nil
	}
	return &domsearch.Facets{
		Collections: buckets(aggs, "collections"),
		Tags:        buckets(aggs, "tags"),
		Authors:     buckets(aggs, "authors"),
		Status:      buckets(aggs, "status"),
	}
}

func buckets(aggs map[string]engine.Aggregation, name string) []domsearch.FacetBucket {
	agg, ok := aggs[name]
	if !ok || len(agg.Buckets) == 0 {
		return nil
	}
	out := make([]domsearch.FacetBucket, len(agg.Buckets))
	for i, b := range agg.Buckets {
		out[i] = domsearch.FacetBucket{Key: b.KeyString(), Count: b.DocCount}
	}
	return out
}
