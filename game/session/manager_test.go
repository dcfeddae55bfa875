package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

func createTestSession(id, player string) *engine.Session {
	now := time.Now().UTC()
	return &engine.Session{
		ID:       id,
		PlayerID: player,
		Level: engine.Level{
			ID: "easy", Name: "Easy", Pairs: 2, TimeLimit: 60,
			PointsReward: 10, PointsPenalty: 2, Difficulty: true, Active: true,
		},
		Rules: engine.DefaultSettings().Rules(),
		Cards: []engine.Card{
			{Index: 0, Value: "a"}, {Index: 1, Value: "b"},
			{Index: 2, Value: "a"}, {Index: 3, Value: "b"},
		},
		Status:         engine.StatusPlaying,
		FlippedIndices: []int{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// finish marks the copy terminal the way the engine would
func finish(s *engine.Session, status engine.Status) {
	now := time.Now().UTC()
	s.Status = status
	s.CompletedAt = &now
	s.UpdatedAt = now
}

// storeContract runs the behavior every service.SessionStore must share
func storeContract(t *testing.T, newStore func(t *testing.T) service.SessionStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		sess := createTestSession("s1", "p@example.com")
		if err := store.Create(ctx, sess); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if sess.Version != 1 {
			t.Errorf("Expected version 1, got %d", sess.Version)
		}

		got, err := store.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.PlayerID != "p@example.com" || len(got.Cards) != 4 || got.Level.ID != "easy" {
			t.Errorf("Unexpected session %+v", got)
		}

		got.Score = 999
		again, _ := store.Get(ctx, "s1")
		if again.Score == 999 {
			t.Error("Get must return an independent copy")
		}
	})

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(ctx, "nope"); !errors.Is(err, engine.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("stale update conflicts", func(t *testing.T) {
		store := newStore(t)
		if err := store.Create(ctx, createTestSession("s1", "p")); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		a, _ := store.Get(ctx, "s1")
		b, _ := store.Get(ctx, "s1")

		a.Moves = 1
		if err := store.Update(ctx, a); err != nil {
			t.Fatalf("first update failed: %v", err)
		}
		if a.Version != 2 {
			t.Errorf("Expected version 2, got %d", a.Version)
		}

		b.Moves = 5
		if err := store.Update(ctx, b); !errors.Is(err, engine.ErrSessionConflict) {
			t.Fatalf("Expected ErrSessionConflict, got %v", err)
		}
		got, _ := store.Get(ctx, "s1")
		if got.Moves != 1 {
			t.Errorf("Conflicting write leaked: moves=%d", got.Moves)
		}
	})

	t.Run("streak follows terminal writes", func(t *testing.T) {
		store := newStore(t)
		for i, status := range []engine.Status{engine.StatusWin, engine.StatusWin, engine.StatusLose} {
			id := fmt.Sprintf("g%d", i)
			sess := createTestSession(id, "streaker")
			if err := store.Create(ctx, sess); err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			wantStart := []int{0, 1, 2}[i]
			if sess.ConsecutiveWins != wantStart {
				t.Errorf("game %d: expected streak %d at start, got %d", i, wantStart, sess.ConsecutiveWins)
			}
			finish(sess, status)
			if err := store.Update(ctx, sess); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
		}
		p, err := store.Player(ctx, "streaker")
		if err != nil {
			t.Fatalf("Player failed: %v", err)
		}
		if p.ConsecutiveWins != 0 || p.Wins != 2 || p.Losses != 1 {
			t.Errorf("Unexpected player record %+v", p)
		}
	})

	t.Run("second terminal write does not move streak", func(t *testing.T) {
		store := newStore(t)
		sess := createTestSession("s1", "p")
		store.Create(ctx, sess)
		finish(sess, engine.StatusWin)
		if err := store.Update(ctx, sess); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		sess.Score = 42
		if err := store.Update(ctx, sess); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		p, _ := store.Player(ctx, "p")
		if p.ConsecutiveWins != 1 || p.Wins != 1 {
			t.Errorf("Expected a single win, got %+v", p)
		}
	})

	t.Run("flip duration follows streak", func(t *testing.T) {
		store := newStore(t)
		for i := 0; i < 3; i++ {
			sess := createTestSession(fmt.Sprintf("w%d", i), "fast")
			store.Create(ctx, sess)
			finish(sess, engine.StatusWin)
			store.Update(ctx, sess)
		}
		sess := createTestSession("next", "fast")
		store.Create(ctx, sess)
		if sess.FlipDuration != engine.FlipDurationFor(sess.Level, 3) {
			t.Errorf("Expected flip duration for streak 3, got %v", sess.FlipDuration)
		}
	})

	t.Run("list playing and stats", func(t *testing.T) {
		store := newStore(t)
		store.Create(ctx, createTestSession("a", "p1"))
		b := createTestSession("b", "p2")
		store.Create(ctx, b)
		finish(b, engine.StatusLose)
		store.Update(ctx, b)

		playing, err := store.ListPlaying(ctx)
		if err != nil {
			t.Fatalf("ListPlaying failed: %v", err)
		}
		if len(playing) != 1 || playing[0].ID != "a" {
			t.Errorf("Expected only session a, got %d sessions", len(playing))
		}

		st, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if st.TotalSessions != 2 || st.PlayingSessions != 1 || st.Losses != 1 || st.Players != 2 {
			t.Errorf("Unexpected stats %+v", st)
		}
	})

	t.Run("concurrent finishes count once", func(t *testing.T) {
		store := newStore(t)
		sess := createTestSession("race", "racer")
		if err := store.Create(ctx, sess); err != nil {
			t.Fatalf("Create failed: %v", err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, err := store.Get(ctx, "race")
				if err != nil {
					t.Errorf("Get failed: %v", err)
					return
				}
				finish(c, engine.StatusWin)
				if err := store.Update(ctx, c); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, engine.ErrSessionConflict) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		p, _ := store.Player(ctx, "racer")
		if p.Wins != 1 {
			t.Errorf("Expected exactly one counted win, got %d", p.Wins)
		}
		if wins < 1 {
			t.Error("Expected at least one successful update")
		}
	})
}

func TestManager(t *testing.T) {
	storeContract(t, func(t *testing.T) service.SessionStore { return NewManager() })
}

func TestManagerCreateDuplicate(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	if err := m.Create(ctx, createTestSession("dup", "p")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Create(ctx, createTestSession("dup", "p")); !errors.Is(err, ErrSessionAlreadyExists) {
		t.Errorf("Expected ErrSessionAlreadyExists, got %v", err)
	}
}

func TestManagerGeneratesID(t *testing.T) {
	m := NewManager()
	sess := createTestSession("", "p")
	if err := m.Create(context.Background(), sess); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.ID == "" {
		t.Error("Expected generated id")
	}
}

func TestManagerArchiveCompleted(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	old := createTestSession("old", "p")
	m.Create(ctx, old)
	finish(old, engine.StatusWin)
	past := time.Now().Add(-48 * time.Hour)
	old.CompletedAt = &past
	m.Update(ctx, old)

	m.Create(ctx, createTestSession("live", "p"))

	if n := m.ArchiveCompleted(24 * time.Hour); n != 1 {
		t.Errorf("Expected 1 archived session, got %d", n)
	}
	if m.Count() != 1 {
		t.Errorf("Expected 1 remaining session, got %d", m.Count())
	}
}

func TestManagerDelete(t *testing.T) {
	m := NewManager()
	m.Create(context.Background(), createTestSession("x", "p"))
	if err := m.Delete("x"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := m.Delete("x"); !errors.Is(err, engine.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}
