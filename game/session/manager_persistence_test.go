package session

import (
	"context"
	"testing"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

func TestManagerWithFilePersistence(t *testing.T) {
	storeContract(t, func(t *testing.T) service.SessionStore {
		fp, err := NewFilePersistence(t.TempDir())
		if err != nil {
			t.Fatalf("NewFilePersistence failed: %v", err)
		}
		return NewManagerWithPersistence(fp)
	})
}

func TestManagerRestoresAfterRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fp, _ := NewFilePersistence(dir)
	first := NewManagerWithPersistence(fp)
	sess := createTestSession("keep", "p")
	first.Create(ctx, sess)
	finish(sess, engine.StatusWin)
	if err := first.Update(ctx, sess); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	first.Create(ctx, createTestSession("running", "p"))

	fp2, _ := NewFilePersistence(dir)
	second := NewManagerWithPersistence(fp2)
	if err := second.LoadPersistedSessions(); err != nil {
		t.Fatalf("LoadPersistedSessions failed: %v", err)
	}
	if second.Count() != 2 {
		t.Errorf("Expected 2 restored sessions, got %d", second.Count())
	}

	got, err := second.Get(ctx, "keep")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != engine.StatusWin || got.Version != 2 {
		t.Errorf("Unexpected restored session status=%s version=%d", got.Status, got.Version)
	}
	p, _ := second.Player(ctx, "p")
	if p.ConsecutiveWins != 1 {
		t.Errorf("Expected restored streak 1, got %d", p.ConsecutiveWins)
	}
}

func TestManagerLazyLoadAfterArchive(t *testing.T) {
	ctx := context.Background()
	fp, _ := NewFilePersistence(t.TempDir())
	m := NewManagerWithPersistence(fp)

	sess := createTestSession("lazy", "p")
	m.Create(ctx, sess)
	m.Delete("lazy")
	fp.Save(sess)

	got, err := m.Get(ctx, "lazy")
	if err != nil {
		t.Fatalf("Expected lazy load from disk, got %v", err)
	}
	if got.ID != "lazy" {
		t.Errorf("Unexpected session %s", got.ID)
	}
}

func TestSaveAllSessions(t *testing.T) {
	ctx := context.Background()
	fp, _ := NewFilePersistence(t.TempDir())
	m := NewManagerWithPersistence(fp)
	m.Create(ctx, createTestSession("one", "p"))
	m.Create(ctx, createTestSession("two", "q"))

	if err := m.SaveAllSessions(); err != nil {
		t.Fatalf("SaveAllSessions failed: %v", err)
	}
	ids, _ := fp.ListAll()
	if len(ids) != 2 {
		t.Errorf("Expected 2 files, got %v", ids)
	}
	players, _ := fp.LoadPlayers()
	if len(players) != 2 {
		t.Errorf("Expected 2 players, got %d", len(players))
	}
}
