package service

import (
	"context"
	"time"

	"github.com/wricardo/memory-match-game/game/engine"
)

// GameService defines all game-related operations
type GameService interface {
	// Session lifecycle
	Start(ctx context.Context, req StartRequest) (*SessionView, error)
	Get(ctx context.Context, sessionID string) (*SessionView, error)
	Flip(ctx context.Context, sessionID string, first, second int) (*FlipResult, error)
	GiveUp(ctx context.Context, sessionID string) (*SessionView, error)
	ExpireStale(ctx context.Context) (int, error)

	// Levels
	GameConfig(ctx context.Context) (*GameConfigView, error)
	Levels(ctx context.Context) ([]engine.Level, error)
	SaveLevel(ctx context.Context, level engine.Level) (*engine.Level, error)
	DeleteLevel(ctx context.Context, levelID string) error

	// Administration
	Settings(ctx context.Context) (engine.Settings, error)
	UpdateSettings(ctx context.Context, settings engine.Settings) (engine.Settings, error)
	TestWebhook(ctx context.Context, override *WebhookTarget) (*WebhookTestResult, error)
	Stats(ctx context.Context) (*Stats, error)
}

// SessionStore is the authoritative, versioned session storage.
// Create and Update also keep each player's streak consistent with the sessions.
type SessionStore interface {
	Create(ctx context.Context, sess *engine.Session) error
	Get(ctx context.Context, id string) (*engine.Session, error)
	Update(ctx context.Context, sess *engine.Session) error
	ListPlaying(ctx context.Context) ([]*engine.Session, error)
	Player(ctx context.Context, playerID string) (*engine.PlayerRecord, error)
	Stats(ctx context.Context) (*Stats, error)
}

// ConfigManager provides levels and operator settings
type ConfigManager interface {
	Level(id string) (*engine.Level, error)
	Levels() []engine.Level
	SaveLevel(level engine.Level) (*engine.Level, error)
	DeleteLevel(id string) error
	Settings() engine.Settings
	UpdateSettings(settings engine.Settings) (engine.Settings, error)
}

// Notifier receives terminal results after they are committed. Notify must not block.
type Notifier interface {
	Notify(result engine.Result)
}

// WebhookTester runs a synchronous connectivity check against a webhook target
type WebhookTester interface {
	Test(ctx context.Context, target WebhookTarget) WebhookTestResult
}

// Archiver drops finished sessions older than a retention window from hot storage
type Archiver interface {
	ArchiveCompleted(olderThan time.Duration) int
}
