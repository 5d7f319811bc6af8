package memory

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/parlancehq/parlance/pkg/kvstore"
)

func TestGetSetDelete(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, kvstore.ErrNotFound) {
		t.Fatalf("Get missing: want ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("value: want v1, got %q", got)
	}

	// Overwrite.
	if err := s.Set(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, _ = s.Get(ctx, "k")
	if string(got) != "v2" {
		t.Errorf("value after overwrite: want v2, got %q", got)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, kvstore.ErrNotFound) {
		t.Errorf("Get after delete: want ErrNotFound, got %v", err)
	}
	// Deleting a missing key is fine.
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestValuesAreCopied(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	in := []byte("original")
	s.Set(ctx, "k", in)
	in[0] = 'X'

	got, _ := s.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored value aliased caller slice: got %q", got)
	}

	got[0] = 'Y'
	again, _ := s.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("returned value aliased store state: got %q", again)
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	s.Set(ctx, "progress/u1/es", []byte("a"))
	s.Set(ctx, "progress/u1/ja", []byte("b"))
	s.Set(ctx, "history/u1", []byte("c"))

	keys, err := s.List(ctx, "progress/u1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(keys)
	want := []string{"progress/u1/es", "progress/u1/ja"}
	if len(keys) != len(want) {
		t.Fatalf("keys: want %v, got %v", want, keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d]: want %s, got %s", i, want[i], keys[i])
		}
	}
}
