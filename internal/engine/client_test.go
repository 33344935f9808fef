package engine

import (
	"strings"
	"testing"
)

func TestParseResponse_FullPayload(t *testing.T) {
	data := []byte(`{
		"took": 12,
		"total": 2,
		"hits": [
			{"_source": {"id": "d1", "workspaceId": "w1", "title": "first"}, "_score": 2.5,
			 "highlight": {"content": ["a <mark>b</mark> c"]}},
			{"_source": {"id": "d2", "workspaceId": "w1", "title": "second"}, "_score": 1.0}
		],
		"aggregations": {
			"collections": {"buckets": [{"key": "col-1", "doc_count": 5}]},
			"view_stats": {"count": 2, "min": 1, "max": 9, "avg": 5, "sum": 10}
		}
	}`)

	resp, err := parseResponse(data)
	if err != nil {
		t.Fatal(err)
	}

	if resp.Total != 2 || resp.TookMS != 12 {
		t.Errorf("total=%d took=%d", resp.Total, resp.TookMS)
	}
	if len(resp.Hits) != 2 {
		t.Fatalf("hits: %d, want 2", len(resp.Hits))
	}
	if resp.Hits[0].Document.ID != "d1" || resp.Hits[0].Score != 2.5 {
		t.Errorf("hit 0: %+v", resp.Hits[0])
	}
	if got := resp.Hits[0].Highlight["content"]; len(got) != 1 || !strings.Contains(got[0], "<mark>") {
		t.Errorf("highlight: %v", got)
	}

	coll := resp.Aggregations["collections"]
	if len(coll.Buckets) != 1 || coll.Buckets[0].KeyString() != "col-1" || coll.Buckets[0].DocCount != 5 {
		t.Errorf("collections agg: %+v", coll)
	}
	if stats := resp.Aggregations["view_stats"]; stats.Sum != 10 {
		t.Errorf("view stats: %+v", stats)
	}
}

func TestParseResponse_DocumentWithoutIDRejected(t *testing.T) {
	data := []byte(`{"hits": [{"_source": {"title": "no id"}, "_score": 1}], "total": 1}`)

	_, err := parseResponse(data)
	if err == nil {
		t.Fatal("document without id must be rejected at the boundary")
	}
}

func TestParseResponse_MalformedJSON(t *testing.T) {
	if _, err := parseResponse([]byte(`{"hits": [`)); err == nil {
		t.Fatal("malformed payload must error")
	}
}

func TestBucket_KeyString(t *testing.T) {
	tests := []struct {
		bucket Bucket
		want   string
	}{
		{Bucket{Key: "str"}, "str"},
		{Bucket{Key: float64(42)}, "42"},
		{Bucket{Key: float64(1700000000000), KeyAsString: "2023-11-14"}, "2023-11-14"},
	}
	for _, tc := range tests {
		if got := tc.bucket.KeyString(); got != tc.want {
			t.Errorf("KeyString(%+v) = %q, want %q", tc.bucket, got, tc.want)
		}
	}
}

func TestBulkResponse_FailedItems(t *testing.T) {
	resp := BulkResponse{
		Errors: true,
		Items: []BulkItem{
			{ID: "a", Status: 200},
			{ID: "b", Status: 429},
			{ID: "c", Status: 201, Error: "version conflict"},
		},
	}

	failed := resp.FailedItems()
	if len(failed) != 2 {
		t.Fatalf("failed: %d, want 2", len(failed))
	}
	if failed[0].ID != "b" || failed[1].ID != "c" {
		t.Errorf("failed ids: %v", failed)
	}
}

func TestRefreshMode_IsValid(t *testing.T) {
	for _, m := range []RefreshMode{RefreshWaitFor, RefreshTrue, RefreshFalse} {
		if !m.IsValid() {
			t.Errorf("%q should be valid", m)
		}
	}
	if RefreshMode("eventually").IsValid() {
		t.Error("unknown mode accepted")
	}
}
