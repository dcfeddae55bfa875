package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

var (
	ErrSessionAlreadyExists = errors.New("session already exists")
	ErrInvalidSessionID     = errors.New("invalid session ID")
)

var (
	_ service.SessionStore = (*Manager)(nil)
	_ service.Archiver     = (*Manager)(nil)
)

// Manager is the in-memory session store. Sessions are stored as private
// copies; every read hands out a clone and every write is a version-checked swap.
type Manager struct {
	sessions    map[string]*engine.Session
	players     map[string]*engine.PlayerRecord
	persistence SessionPersistence
	mu          sync.RWMutex
}

// NewManager creates a new session manager
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*engine.Session),
		players:  make(map[string]*engine.PlayerRecord),
	}
}

// NewManagerWithPersistence creates a new session manager with write-through persistence
func NewManagerWithPersistence(persistence SessionPersistence) *Manager {
	m := NewManager()
	m.persistence = persistence
	return m
}

// Create stores a new session, stamping it with the player's current streak
func (m *Manager) Create(ctx context.Context, sess *engine.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[sess.ID]; exists {
		return ErrSessionAlreadyExists
	}

	player := m.playerLocked(sess.PlayerID, sess.CreatedAt)
	sess.SetStreak(player.ConsecutiveWins)
	sess.Version = 1
	m.sessions[sess.ID] = sess.Clone()

	m.persistLocked(sess, false)
	return nil
}

// Get returns a copy of the session, falling back to persistence on a cache miss
func (m *Manager) Get(ctx context.Context, id string) (*engine.Session, error) {
	m.mu.RLock()
	sess, exists := m.sessions[id]
	m.mu.RUnlock()
	if exists {
		return sess.Clone(), nil
	}

	if m.persistence != nil && m.persistence.Exists(id) {
		loaded, err := m.persistence.Load(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted session: %w", err)
		}

		m.mu.Lock()
		if cur, ok := m.sessions[id]; ok {
			loaded = cur
		} else {
			m.sessions[id] = loaded
		}
		m.mu.Unlock()
		return loaded.Clone(), nil
	}

	return nil, engine.ErrSessionNotFound
}

// Update swaps in sess if its version matches the stored one. The first
// terminal write also moves the player's streak, under the same lock.
func (m *Manager) Update(ctx context.Context, sess *engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.sessions[sess.ID]
	if !exists {
		return engine.ErrSessionNotFound
	}
	if cur.Version != sess.Version {
		return fmt.Errorf("%w: session %s is at version %d, write based on %d",
			engine.ErrSessionConflict, sess.ID, cur.Version, sess.Version)
	}

	finished := cur.Status == engine.StatusPlaying && sess.Status.Terminal()
	if finished {
		m.playerLocked(sess.PlayerID, sess.UpdatedAt).Apply(sess.Status, sess.UpdatedAt)
	}

	sess.Version++
	m.sessions[sess.ID] = sess.Clone()

	m.persistLocked(sess, finished)
	return nil
}

// ListPlaying returns copies of every running session
func (m *Manager) ListPlaying(ctx context.Context) ([]*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*engine.Session, 0)
	for _, sess := range m.sessions {
		if sess.Status == engine.StatusPlaying {
			result = append(result, sess.Clone())
		}
	}
	return result, nil
}

// List returns copies of all sessions ordered by creation time
func (m *Manager) List() []*engine.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*engine.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		result = append(result, sess.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// Player returns the player's record; unknown players have a zero streak
func (m *Manager) Player(ctx context.Context, playerID string) (*engine.PlayerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.players[playerID]; ok {
		c := *p
		return &c, nil
	}
	return &engine.PlayerRecord{PlayerID: playerID}, nil
}

// Stats counts sessions by status
func (m *Manager) Stats(ctx context.Context) (*service.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &service.Stats{TotalSessions: len(m.sessions), Players: len(m.players)}
	for _, sess := range m.sessions {
		switch sess.Status {
		case engine.StatusPlaying:
			st.PlayingSessions++
		case engine.StatusWin:
			st.Wins++
		case engine.StatusLose:
			st.Losses++
		}
	}
	return st, nil
}

// Delete removes a session from memory and persistence
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, inMemory := m.sessions[id]
	delete(m.sessions, id)

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted session: %w", err)
		}
		return nil
	}
	if !inMemory {
		return engine.ErrSessionNotFound
	}
	return nil
}

// ArchiveCompleted drops finished sessions older than olderThan from memory.
// Persisted copies stay on disk and are reloaded on demand.
func (m *Manager) ArchiveCompleted(olderThan time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for id, sess := range m.sessions {
		if sess.Status.Terminal() && sess.CompletedAt != nil && sess.CompletedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of sessions held in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// LoadPersistedSessions loads all persisted sessions and player records into memory
func (m *Manager) LoadPersistedSessions() error {
	if m.persistence == nil {
		return nil
	}

	players, err := m.persistence.LoadPlayers()
	if err != nil {
		return fmt.Errorf("failed to load players: %w", err)
	}
	sessionIDs, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted sessions: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range players {
		if p != nil && p.PlayerID != "" {
			m.players[p.PlayerID] = p
		}
	}

	loadedCount := 0
	for _, id := range sessionIDs {
		if _, exists := m.sessions[id]; exists {
			continue
		}
		sess, err := m.persistence.Load(id)
		if err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("failed to load persisted session")
			continue
		}
		m.sessions[id] = sess
		loadedCount++
	}

	if loadedCount > 0 {
		log.Info().Int("sessions", loadedCount).Int("players", len(players)).Msg("loaded persisted sessions")
	}
	return nil
}

// SaveAllSessions saves all in-memory sessions and player records to persistence
func (m *Manager) SaveAllSessions() error {
	if m.persistence == nil {
		return nil
	}

	m.mu.RLock()
	sessions := make([]*engine.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess.Clone())
	}
	players := m.playerSnapshotLocked()
	m.mu.RUnlock()

	errorCount := 0
	for _, sess := range sessions {
		if err := m.persistence.Save(sess); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to save session")
			errorCount++
		}
	}
	if err := m.persistence.SavePlayers(players); err != nil {
		log.Warn().Err(err).Msg("failed to save players")
		errorCount++
	}

	if errorCount > 0 {
		return fmt.Errorf("failed to save %d records", errorCount)
	}
	return nil
}

func (m *Manager) playerLocked(playerID string, at time.Time) *engine.PlayerRecord {
	p, ok := m.players[playerID]
	if !ok {
		p = &engine.PlayerRecord{PlayerID: playerID, UpdatedAt: at}
		m.players[playerID] = p
	}
	return p
}

func (m *Manager) playerSnapshotLocked() []*engine.PlayerRecord {
	out := make([]*engine.PlayerRecord, 0, len(m.players))
	for _, p := range m.players {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// persistLocked writes through to persistence. Failures are logged, not returned.
func (m *Manager) persistLocked(sess *engine.Session, playersChanged bool) {
	if m.persistence == nil {
		return
	}
	if err := m.persistence.Save(sess); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("failed to persist session")
	}
	if !playersChanged {
		if _, known := m.players[sess.PlayerID]; known && sess.Version > 1 {
			return
		}
	}
	if err := m.persistence.SavePlayers(m.playerSnapshotLocked()); err != nil {
		log.Warn().Err(err).Msg("failed to persist players")
	}
}
