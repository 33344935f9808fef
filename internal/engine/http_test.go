package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/knowledge-network/knsearch/internal/domain"
)

func TestHTTPClient_Search(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"hits": [{"_source": {"id": "d1", "workspaceId": "w1"}, "_score": 1}], "total": 1}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	resp, err := c.Search(context.Background(), "knowledge", map[string]any{"size": 10})
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/knowledge/_search" {
		t.Errorf("path: %s", gotPath)
	}
	if gotBody["size"] != float64(10) {
		t.Errorf("body: %v", gotBody)
	}
	if resp.Total != 1 || resp.Hits[0].Document.ID != "d1" {
		t.Errorf("resp: %+v", resp)
	}
}

func TestHTTPClient_Bulk_AlternatingPayload(t *testing.T) {
	var gotQuery string
	var payload []json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &payload)
		_, _ = w.Write([]byte(`{"errors": false, "items": []}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL, Refresh: RefreshTrue})
	doc := &domain.IndexDocument{ID: "d1", WorkspaceID: "w1"}
	actions := []BulkAction{
		{Type: BulkIndex, Index: "knowledge", ID: "d1", Document: doc},
		{Type: BulkDelete, Index: "knowledge", ID: "d2"},
	}

	resp, err := c.Bulk(context.Background(), actions)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.FailedItems()) != 0 {
		t.Errorf("failed items: %v", resp.FailedItems())
	}

	if gotQuery != "refresh=true" {
		t.Errorf("query: %s", gotQuery)
	}
	// index action + its document + delete action, no document for deletes
	if len(payload) != 3 {
		t.Fatalf("payload entries: %d, want 3", len(payload))
	}

	var action map[string]map[string]string
	if err := json.Unmarshal(payload[0], &action); err != nil {
		t.Fatal(err)
	}
	if action["index"]["_id"] != "d1" {
		t.Errorf("first action: %v", action)
	}
	if err := json.Unmarshal(payload[2], &action); err != nil {
		t.Fatal(err)
	}
	if action["delete"]["_id"] != "d2" {
		t.Errorf("third action: %v", action)
	}
}

func TestHTTPClient_Bulk_EmptyIsANoOp(t *testing.T) {
	c := NewHTTPClient(HTTPConfig{BaseURL: "http://127.0.0.1:1"}) // nothing listens here
	resp, err := c.Bulk(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 0 {
		t.Errorf("items: %v", resp.Items)
	}
}

func TestHTTPClient_Delete(t *testing.T) {
	var gotMethod, gotPath, gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	if err := c.Delete(context.Background(), "knowledge", "d1"); err != nil {
		t.Fatal(err)
	}

	if gotMethod != http.MethodDelete || gotPath != "/knowledge/_doc/d1" {
		t.Errorf("%s %s", gotMethod, gotPath)
	}
	if gotQuery != "refresh=wait_for" {
		t.Errorf("query: %s, want default refresh", gotQuery)
	}
}

func TestHTTPClient_ErrorStatusMapsToEngineUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPConfig{BaseURL: srv.URL})
	_, err := c.Search(context.Background(), "knowledge", map[string]any{})
	if !errors.Is(err, domain.ErrEngineUnavailable) {
		t.Fatalf("got %v, want engine unavailable", err)
	}
}

func TestHTTPClient_ConnectionFailureMapsToEngineUnavailable(t *testing.T) {
	c := NewHTTPClient(HTTPConfig{BaseURL: "http://127.0.0.1:1"})
	if err := c.Ping(context.Background()); !errors.Is(err, domain.ErrEngineUnavailable) {
		t.Fatalf("got %v, want engine unavailable", err)
	}
}
