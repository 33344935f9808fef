// Package query translates structured search requests into the engine's
// JSON query language. Everything here is pure: no state, no I/O.
package query

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/knowledge-network/knsearch/internal/domain/search"
)

// boostedFields are the scored full-text fields with their relevance boosts.
var boostedFields = []string{
	"title^3",
	"content",
	"excerpt^2",
	"tags.name^1.5",
	"author.displayName",
}

// phraseBoost lifts exact-phrase matches against the body text.
const phraseBoost = 2.0

// Aggregation bucket size caps.
const (
	collectionsAggSize = 50
	tagsAggSize        = 100
	authorsAggSize     = 50
	statusAggSize      = 10
)

var (
	booleanOperatorRe = regexp.MustCompile(`\b(AND|OR|NOT)\b`)
	notOperatorRe     = regexp.MustCompile(`\bNOT\s+`)
)

// BuildBody assembles the full engine request body. permFilters are the
// non-negotiable permission clauses; they are appended after the caller's
// filters and can never be overridden by them.
func BuildBody(req *search.Request, permFilters []map[string]any) map[string]any {
	body := map[string]any{
		"query": BuildQuery(req, permFilters),
		"aggs":  BuildAggregations(),
		"sort":  BuildSort(req.Sort),
		"from":  req.From(),
		"size":  req.Page.Size,
	}
	if req.Highlight {
		body["highlight"] = BuildHighlight(req)
	}
	if req.IncludeDebug {
		body["explain"] = true
	}
	return body
}

// BuildQuery produces the bool query: scored clauses in must/should,
// eligibility clauses in filter. Filters never affect relevance.
func BuildQuery(req *search.Request, permFilters []map[string]any) map[string]any {
	boolQuery := map[string]any{
		"must":   scoringClauses(req.Query),
		"filter": filterClauses(req, permFilters),
	}
	if should := phraseClause(req.Query); should != nil {
		boolQuery["should"] = []map[string]any{should}
	}
	return map[string]any{"bool": boolQuery}
}

// scoringClauses builds the scored part of the query. A blank query
// degrades to match-all so unfiltered browse views work without errors.
func scoringClauses(text string) []map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return []map[string]any{{"match_all": map[string]any{}}}
	}

	if booleanOperatorRe.MatchString(text) {
		return []map[string]any{{
			"query_string": map[string]any{
				"query":  translateBoolean(text),
				"fields": boostedFields,
			},
		}}
	}

	return []map[string]any{{
		"multi_match": map[string]any{
			"query":          text,
			"fields":         boostedFields,
			"type":           "best_fields",
			"fuzziness":      "AUTO",
			"prefix_length":  2,
			"max_expansions": 50,
		},
	}}
}

// phraseClause adds a boosted exact-phrase match against the body for
// relevance lift. Boolean-expression and blank queries get none.
func phraseClause(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" || booleanOperatorRe.MatchString(text) {
		return nil
	}
	return map[string]any{
		"match_phrase": map[string]any{
			"content": map[string]any{"query": text, "boost": phraseBoost},
		},
	}
}

// translateBoolean rewrites the whole-word NOT operator into the engine's
// unary negation prefix. AND and OR pass through unchanged.
func translateBoolean(text string) string {
	return notOperatorRe.ReplaceAllString(text, "!")
}

// filterClauses emits every eligibility clause: the workspace boundary
// first, then caller filters, then permission filters last.
func filterClauses(req *search.Request, permFilters []map[string]any) []map[string]any {
	clauses := []map[string]any{
		{"term": map[string]any{"workspaceId": req.WorkspaceID}},
	}

	f := req.Filters
	if len(f.Collections) > 0 {
		clauses = append(clauses, map[string]any{
			"terms": map[string]any{"collection.id": f.Collections},
		})
	}
	if len(f.Tags) > 0 {
		clauses = append(clauses, map[string]any{
			"nested": map[string]any{
				"path":  "tags",
				"query": map[string]any{"terms": map[string]any{"tags.id": f.Tags}},
			},
		})
	}
	if len(f.Authors) > 0 {
		clauses = append(clauses, map[string]any{
			"terms": map[string]any{"author.id": f.Authors},
		})
	}
	if len(f.Status) > 0 {
		clauses = append(clauses, map[string]any{
			"terms": map[string]any{"status": f.Status},
		})
	}
	if !f.DateRange.IsZero() {
		clauses = append(clauses, dateRangeClause(f.DateRange))
	}
	clauses = append(clauses, metadataClauses(f.Metadata)...)

	return append(clauses, permFilters...)
}

func dateRangeClause(r search.DateRange) map[string]any {
	bounds := map[string]any{}
	if !r.From.IsZero() {
		bounds["gte"] = r.From.Format(time.RFC3339)
	}
	if !r.To.IsZero() {
		bounds["lte"] = r.To.Format(time.RFC3339)
	}
	return map[string]any{"range": map[string]any{"createdAt": bounds}}
}

// metadataClauses emits one nested facet-equality clause per metadata key,
// in key order so equal requests build identical bodies.
func metadataClauses(metadata map[string]string) []map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, map[string]any{
			"nested": map[string]any{
				"path": "facets",
				"query": map[string]any{
					"bool": map[string]any{
						"must": []map[string]any{
							{"term": map[string]any{"facets.keyPath": k}},
							{"term": map[string]any{"facets.stringValue": metadata[k]}},
						},
					},
				},
			},
		})
	}
	return clauses
}

// BuildAggregations always offers the full facet set regardless of what the
// caller asked for: the extra buckets are cheap and keep cached responses
// interchangeable.
func BuildAggregations() map[string]any {
	return map[string]any{
		"collections": map[string]any{
			"terms": map[string]any{"field": "collection.id", "size": collectionsAggSize},
		},
		"tags": map[string]any{
			"terms": map[string]any{"field": "tags.id", "size": tagsAggSize},
		},
		"authors": map[string]any{
			"terms": map[string]any{"field": "author.id", "size": authorsAggSize},
		},
		"status": map[string]any{
			"terms": map[string]any{"field": "status", "size": statusAggSize},
		},
		"created_daily": map[string]any{
			"date_histogram": map[string]any{"field": "createdAt", "calendar_interval": "day"},
		},
		"view_stats": map[string]any{
			"stats": map[string]any{"field": "viewCount"},
		},
	}
}

// BuildHighlight configures fragment-based highlighting. The title is
// highlighted whole; tag names only when the request filters on tags.
func BuildHighlight(req *search.Request) map[string]any {
	fields := map[string]any{
		"title":   map[string]any{"number_of_fragments": 0},
		"content": map[string]any{"fragment_size": 150, "number_of_fragments": 3},
		"excerpt": map[string]any{"fragment_size": 200, "number_of_fragments": 1},
	}
	if len(req.Filters.Tags) > 0 {
		fields["tags.name"] = map[string]any{}
	}
	return map[string]any{
		"pre_tags":  []string{"<mark>"},
		"post_tags": []string{"</mark>"},
		"fields":    fields,
	}
}

// BuildSort emits the sort clause. A document-id tiebreaker is always
// appended last so pagination stays deterministic under equal sort keys.
func BuildSort(s search.Sort) []map[string]any {
	idTiebreak := map[string]any{"id": map[string]any{"order": "asc"}}

	if s.Field == "" || s.Field == search.SortFieldRelevance {
		return []map[string]any{
			{"_score": map[string]any{"order": "desc"}},
			{"updatedAt": map[string]any{"order": "desc"}},
			idTiebreak,
		}
	}

	order := string(s.Order)
	if order == "" {
		order = "asc"
	}
	return []map[string]any{
		{s.Field: map[string]any{"order": order}},
		idTiebreak,
	}
}
