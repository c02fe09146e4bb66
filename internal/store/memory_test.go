package store

import (
	"context"
	"testing"

	logx "gozo/pkg/logx"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := OpenMemory()
	ctx := context.Background()

	if err := s.Put(ctx, "a", Record{FireAt: 100, ReplySubject: "r.a"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	entries, err := s.Iterate(ctx)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "a" {
		t.Fatalf("unexpected entries: %v", entries)
	}

	// Put is create-or-overwrite.
	if err := s.Put(ctx, "a", Record{FireAt: 200, ReplySubject: "r.a2"}); err != nil {
		t.Fatalf("overwrite put: %v", err)
	}
	entries, _ = s.Iterate(ctx)
	if len(entries) != 1 || entries[0].Record.FireAt != 200 {
		t.Fatalf("overwrite did not replace: %v", entries)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, _ = s.Iterate(ctx)
	if len(entries) != 0 {
		t.Fatalf("expected empty store after delete, got %v", entries)
	}
}

func TestMemoryStoreDeleteAbsentIsNotAnError(t *testing.T) {
	s := OpenMemory()
	if err := s.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("deleting an absent key must be a no-op, got %v", err)
	}
}

func TestOpenDisabledReturnsNilStore(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: ""}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("Open with disabled driver: %v", err)
	}
	if s != nil {
		t.Fatal("expected a nil Store when durability is disabled")
	}

	s, err = Open(context.Background(), Config{Driver: "none"}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("Open with 'none' driver: %v", err)
	}
	if s != nil {
		t.Fatal("expected a nil Store for driver 'none'")
	}
}

func TestOpenMemoryDriver(t *testing.T) {
	s, err := Open(context.Background(), Config{Driver: "memory"}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("Open memory driver: %v", err)
	}
	if s == nil {
		t.Fatal("expected a Store for driver 'memory'")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "bogus"}, nil, logx.Nop()); err == nil {
		t.Fatal("expected an error for an unknown driver")
	}
}

func TestOpenJetstreamRequiresConnection(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "jetstream"}, nil, logx.Nop()); err == nil {
		t.Fatal("expected an error when the jetstream driver has no bus connection")
	}
}
