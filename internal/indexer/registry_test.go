package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/knowledge-network/knsearch/internal/domain"
)

func TestDispatch_AllHandlersSeeTheEvent(t *testing.T) {
	r := NewRegistry(nil)

	var order []string
	r.Register(HandlerFunc(func(context.Context, domain.IndexEvent) error {
		order = append(order, "first")
		return nil
	}))
	r.Register(HandlerFunc(func(context.Context, domain.IndexEvent) error {
		order = append(order, "second")
		return nil
	}))

	ev := domain.IndexEvent{Type: domain.EventUpsert, EntityID: "e1", WorkspaceID: "w1"}
	if err := r.Dispatch(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("handler order: %v", order)
	}
}

func TestDispatch_FailureDoesNotStopOtherHandlers(t *testing.T) {
	r := NewRegistry(nil)
	boom := errors.New("boom")

	var reached bool
	r.Register(HandlerFunc(func(context.Context, domain.IndexEvent) error {
		return boom
	}))
	r.Register(HandlerFunc(func(context.Context, domain.IndexEvent) error {
		reached = true
		return nil
	}))

	err := r.Dispatch(context.Background(), domain.IndexEvent{Type: domain.EventUpsert, WorkspaceID: "w1"})
	if !errors.Is(err, boom) {
		t.Fatalf("dispatch error: %v, want boom", err)
	}
	if !reached {
		t.Fatal("second handler never ran")
	}
}

func TestDispatch_NoHandlersIsANoOp(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Dispatch(context.Background(), domain.IndexEvent{Type: domain.EventUpsert, WorkspaceID: "w1"}); err != nil {
		t.Fatal(err)
	}
}
