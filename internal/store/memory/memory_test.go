package memory

import (
	"context"
	"errors"
	"testing"

	"medipos/backend/internal/store"
)

func TestMediumRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := New(0)

	if _, ok, err := m.Load(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%t err=%v", ok, err)
	}
	if err := m.Save(ctx, "k", []byte(`[1,2]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := m.Load(ctx, "k")
	if err != nil || !ok || string(got) != `[1,2]` {
		t.Fatalf("unexpected load result %q ok=%t err=%v", got, ok, err)
	}
	if err := m.Remove(ctx, "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if m.Used() != 0 {
		t.Fatalf("expected zero bytes used after remove, got %d", m.Used())
	}
}

func TestMediumQuotaRejectsOversizedWrite(t *testing.T) {
	ctx := context.Background()
	m := New(10)

	if err := m.Save(ctx, "a", []byte("12345")); err != nil {
		t.Fatalf("save a: %v", err)
	}
	err := m.Save(ctx, "b", []byte("1234567"))
	if !errors.Is(err, store.ErrStorageFull) {
		t.Fatalf("expected ErrStorageFull, got %v", err)
	}
	if _, ok, _ := m.Load(ctx, "b"); ok {
		t.Fatalf("rejected write must not be visible")
	}

	// Replacing an existing key only counts the difference.
	if err := m.Save(ctx, "a", []byte("1234567890")); err != nil {
		t.Fatalf("expected in-place replacement to fit, got %v", err)
	}
}
