package session

import (
	"time"

	"github.com/wricardo/memory-match-game/game/engine"
)

// SessionPersistence defines the interface for persisting sessions
type SessionPersistence interface {
	// Save persists a session to storage
	Save(session *engine.Session) error

	// Load retrieves a session from storage by ID
	Load(id string) (*engine.Session, error)

	// Delete removes a session from storage
	Delete(id string) error

	// ListAll returns all persisted session IDs
	ListAll() ([]string, error)

	// Exists checks if a session exists in storage
	Exists(id string) bool

	// SavePlayers replaces the stored player records
	SavePlayers(players []*engine.PlayerRecord) error

	// LoadPlayers returns every stored player record
	LoadPlayers() ([]*engine.PlayerRecord, error)
}

// PersistedSessionData represents the JSON structure for persisted sessions
type PersistedSessionData struct {
	Session *engine.Session `json:"session"`
	SavedAt time.Time       `json:"saved_at"`
}
