package engine

import (
	"context"
	"testing"

	"github.com/StarkFactory/arc-reactor-sub012/pkg/arc"
)

func TestInProcessMemoryStoreSaveGetRemove(t *testing.T) {
	s := NewInProcessMemoryStore()
	ctx := context.Background()

	got, err := s.Get(ctx, "sess-1")
	if err != nil || len(got) != 0 {
		t.Fatalf("Get on missing session = (%v, %v), want empty/nil err", got, err)
	}

	msgs := []arc.Message{{Role: arc.RoleUser, Content: "hi"}}
	if err := s.Save(ctx, "user-1", "sess-1", msgs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err = s.Get(ctx, "sess-1")
	if err != nil || len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("Get after Save = (%+v, %v)", got, err)
	}

	list, err := s.ListSessions(ctx)
	if err != nil || len(list) != 1 || list[0] != "sess-1" {
		t.Fatalf("ListSessions = (%v, %v)", list, err)
	}

	if err := s.Remove(ctx, "sess-1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got, _ = s.Get(ctx, "sess-1")
	if len(got) != 0 {
		t.Errorf("expected empty history after Remove, got %+v", got)
	}
}

func TestInProcessMemoryStoreGetReturnsACopy(t *testing.T) {
	s := NewInProcessMemoryStore()
	ctx := context.Background()
	_ = s.Save(ctx, "u", "sess-1", []arc.Message{{Role: arc.RoleUser, Content: "original"}})

	got, _ := s.Get(ctx, "sess-1")
	got[0].Content = "mutated"

	fresh, _ := s.Get(ctx, "sess-1")
	if fresh[0].Content != "original" {
		t.Error("Get must return a defensive copy, not a shared slice backing array")
	}
}
