package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/archonhq/archon/internal/log"
)

// The validation paths run before any database call, so a nil Querier is
// safe for these tests. The SQL paths are covered by integration tests
// against a real pgvector instance.

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	store := New(nil, 3, log.NewNop())

	err := store.Upsert(context.Background(), []Record{
		{ID: "ok", Embedding: []float32{1, 2, 3}},
		{ID: "bad", Embedding: []float32{1, 2}},
	})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Upsert() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestUpsertRejectsEmptyID(t *testing.T) {
	store := New(nil, 3, log.NewNop())

	err := store.Upsert(context.Background(), []Record{
		{ID: "", Embedding: []float32{1, 2, 3}},
	})
	if !errors.Is(err, ErrEmptyID) {
		t.Fatalf("Upsert() error = %v, want ErrEmptyID", err)
	}
}

func TestQueryRejectsDimensionMismatch(t *testing.T) {
	store := New(nil, 768, log.NewNop())

	if _, err := store.Query(context.Background(), []float32{1, 2, 3}, 5, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Query() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestQueryRejectsInvalidK(t *testing.T) {
	store := New(nil, 3, log.NewNop())

	if _, err := store.Query(context.Background(), []float32{1, 2, 3}, 0, nil); err == nil {
		t.Fatal("Query() with k=0 should fail")
	}
}

func TestDeleteEmptyIsNoop(t *testing.T) {
	store := New(nil, 3, log.NewNop())

	// Must not touch the database at all
	if err := store.Delete(context.Background(), nil); err != nil {
		t.Fatalf("Delete(nil) error: %v", err)
	}
}

func TestDimensions(t *testing.T) {
	store := New(nil, 768, log.NewNop())
	if store.Dimensions() != 768 {
		t.Errorf("Dimensions() = %d, want 768", store.Dimensions())
	}
}
