package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wricardo/memory-match-game/game/service"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := OpenDatabase(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	store, err := NewGormStore(db)
	if err != nil {
		t.Fatalf("NewGormStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGormStore(t *testing.T) {
	storeContract(t, func(t *testing.T) service.SessionStore { return newTestGormStore(t) })
}

func TestGormStoreRoundTripsNestedState(t *testing.T) {
	store := newTestGormStore(t)
	ctx := context.Background()

	sess := createTestSession("nested", "p")
	sess.Level.Values = []string{"x", "y"}
	sess.Cards[1].Matched = true
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, "nested")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Cards[1].Matched || len(got.Level.Values) != 2 || len(got.Rules.Streak.Tiers) != 1 {
		t.Errorf("Nested state lost: %+v", got)
	}
	if got.FlippedIndices == nil {
		t.Error("Expected empty flipped indices, got nil")
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("CreatedAt changed: %v vs %v", got.CreatedAt, sess.CreatedAt)
	}
}
