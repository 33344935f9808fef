package search

import (
	"errors"
	"strings"
	"testing"

	"github.com/knowledge-network/knsearch/internal/domain"
)

func TestValidate_RequiresWorkspace(t *testing.T) {
	r := Request{Query: "q"}
	if err := r.Validate(); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("got %v, want invalid request", err)
	}
}

func TestValidate_EmptyQueryIsAllowed(t *testing.T) {
	r := Request{WorkspaceID: "w1"}
	if err := r.Validate(); err != nil {
		t.Fatalf("empty query must be valid (browse mode): %v", err)
	}
}

func TestValidate_QueryLengthCap(t *testing.T) {
	r := Request{WorkspaceID: "w1", Query: strings.Repeat("x", MaxQueryLength+1)}
	if err := r.Validate(); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("got %v, want invalid request", err)
	}
}

func TestValidate_UnknownStatus(t *testing.T) {
	r := Request{WorkspaceID: "w1"}
	r.Filters.Status = []domain.Status{"SHREDDED"}
	if err := r.Validate(); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("got %v, want invalid request", err)
	}
}

func TestValidate_SortOrder(t *testing.T) {
	r := Request{WorkspaceID: "w1", Sort: Sort{Order: "sideways"}}
	if err := r.Validate(); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("got %v, want invalid request", err)
	}

	r.Sort.Order = SortAsc
	if err := r.Validate(); err != nil {
		t.Fatalf("asc rejected: %v", err)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	r := Request{WorkspaceID: "w1"}
	r.Normalize()

	if r.Sort.Field != SortFieldRelevance || r.Sort.Order != SortDesc {
		t.Errorf("sort: %+v, want relevance desc", r.Sort)
	}
	if r.Page.Number != 1 || r.Page.Size != DefaultPageSize {
		t.Errorf("page: %+v", r.Page)
	}
}

func TestNormalize_FieldSortDefaultsAscending(t *testing.T) {
	r := Request{WorkspaceID: "w1", Sort: Sort{Field: "createdAt"}}
	r.Normalize()

	if r.Sort.Order != SortAsc {
		t.Errorf("order: %s, want asc", r.Sort.Order)
	}
}

func TestNormalize_ClampsPageSize(t *testing.T) {
	r := Request{WorkspaceID: "w1", Page: Page{Number: 2, Size: 10_000}}
	r.Normalize()

	if r.Page.Size != MaxPageSize {
		t.Errorf("size: %d, want clamped to %d", r.Page.Size, MaxPageSize)
	}
}

func TestNormalize_SortsFilterSlices(t *testing.T) {
	r := Request{WorkspaceID: "w1"}
	r.Filters.Collections = []string{"b", "a"}
	r.Filters.Tags = []string{"z", "y"}
	r.Normalize()

	if r.Filters.Collections[0] != "a" || r.Filters.Tags[0] != "y" {
		t.Errorf("filters not sorted: %+v", r.Filters)
	}
}

func TestFrom_Offset(t *testing.T) {
	r := Request{WorkspaceID: "w1", Page: Page{Number: 3, Size: 25}}
	if got := r.From(); got != 50 {
		t.Errorf("from: %d, want 50", got)
	}
}
