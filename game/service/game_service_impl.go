package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wricardo/memory-match-game/game/engine"
)

// DefaultMaxConflictRetries bounds how often a mutation is replayed after losing a version race
const DefaultMaxConflictRetries = 3

// gameServiceImpl implements the GameService interface
type gameServiceImpl struct {
	store      SessionStore
	configs    ConfigManager
	engine     engine.Engine
	notifiers  []Notifier
	tester     WebhookTester
	maxRetries int
	newID      func() string
}

// Option configures the game service
type Option func(*gameServiceImpl)

// WithNotifiers registers receivers of committed terminal results
func WithNotifiers(n ...Notifier) Option {
	return func(s *gameServiceImpl) { s.notifiers = append(s.notifiers, n...) }
}

// WithWebhookTester enables TestWebhook
func WithWebhookTester(t WebhookTester) Option {
	return func(s *gameServiceImpl) { s.tester = t }
}

// WithMaxConflictRetries overrides DefaultMaxConflictRetries
func WithMaxConflictRetries(n int) Option {
	return func(s *gameServiceImpl) { s.maxRetries = n }
}

// WithIDGenerator replaces the uuid session id source
func WithIDGenerator(f func() string) Option {
	return func(s *gameServiceImpl) { s.newID = f }
}

// NewGameService creates a new game service instance
func NewGameService(store SessionStore, configs ConfigManager, eng engine.Engine, opts ...Option) GameService {
	s := &gameServiceImpl{
		store:      store,
		configs:    configs,
		engine:     eng,
		maxRetries: DefaultMaxConflictRetries,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start deals a new session for a player
func (s *gameServiceImpl) Start(ctx context.Context, req StartRequest) (*SessionView, error) {
	playerID := normalizePlayerID(req.PlayerID)
	if playerID == "" {
		return nil, fmt.Errorf("%w: player_id is required", engine.ErrInvalidConfiguration)
	}

	level, err := s.resolveLevel(req.LevelID)
	if err != nil {
		return nil, err
	}

	sess, err := s.engine.NewSession(s.newID(), playerID, *level, s.configs.Settings(), 0)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().
		Str("session_id", sess.ID).
		Str("player_id", playerID).
		Str("level_id", level.ID).
		Int("consecutive_wins", sess.ConsecutiveWins).
		Msg("session started")

	return NewSessionView(sess, s.engine.Now()), nil
}

// Get returns the session with a freshly derived clock
func (s *gameServiceImpl) Get(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return NewSessionView(sess, s.engine.Now()), nil
}

// Flip resolves a pair. An expired clock is not an error for the caller:
// the session comes back as LOSE with ErrorCode set.
func (s *gameServiceImpl) Flip(ctx context.Context, sessionID string, first, second int) (*FlipResult, error) {
	var (
		out     *engine.FlipOutcome
		expired bool
	)
	sess, err := s.mutate(ctx, sessionID, func(sess *engine.Session) (bool, error) {
		finished := sess.Status.Terminal()
		o, err := s.engine.Flip(sess, first, second)
		if errors.Is(err, engine.ErrTimeExpired) {
			// already swept: answer from the stored result without saving again
			out, expired = o, true
			return !finished, nil
		}
		if err != nil {
			return false, err
		}
		out, expired = o, false
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	res := &FlipResult{
		Session:      NewSessionView(sess, s.engine.Now()),
		IsMatch:      out.IsMatch,
		Message:      out.Message,
		Revealed:     revealedView(out.Revealed),
		PointsChange: sess.PointsChange,
	}
	if expired {
		res.ErrorCode = CodeTimeExpired
	}
	return res, nil
}

// GiveUp forfeits a session. Repeated calls return the finished session unchanged.
func (s *gameServiceImpl) GiveUp(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := s.mutate(ctx, sessionID, func(sess *engine.Session) (bool, error) {
		return s.engine.GiveUp(sess), nil
	})
	if err != nil {
		return nil, err
	}
	return NewSessionView(sess, s.engine.Now()), nil
}

// ExpireStale forces LOSE on every running session whose clock ran out
func (s *gameServiceImpl) ExpireStale(ctx context.Context) (int, error) {
	playing, err := s.store.ListPlaying(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list playing sessions: %w", err)
	}

	expired := 0
	for _, candidate := range playing {
		if !s.engine.Time(candidate).Expired {
			continue
		}
		changed := false
		_, err := s.mutate(ctx, candidate.ID, func(sess *engine.Session) (bool, error) {
			changed = s.engine.Expire(sess)
			return changed, nil
		})
		if err != nil {
			log.Warn().Err(err).Str("session_id", candidate.ID).Msg("failed to expire session")
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}

// mutate loads, applies fn and saves with optimistic concurrency, replaying fn
// on a fresh copy when another writer won the race. fn reports whether it changed anything.
func (s *gameServiceImpl) mutate(ctx context.Context, sessionID string, fn func(*engine.Session) (bool, error)) (*engine.Session, error) {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		sess, err := s.store.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		wasPlaying := sess.Status == engine.StatusPlaying

		changed, err := fn(sess)
		if err != nil {
			return nil, err
		}
		if !changed {
			return sess, nil
		}

		err = s.store.Update(ctx, sess)
		if errors.Is(err, engine.ErrSessionConflict) {
			if attempt < s.maxRetries {
				log.Debug().Str("session_id", sessionID).Int("attempt", attempt+1).Msg("version conflict, retrying")
				continue
			}
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save session %s: %w", sessionID, err)
		}

		if wasPlaying && sess.Status.Terminal() {
			s.finished(sess)
		}
		return sess, nil
	}
}

func (s *gameServiceImpl) finished(sess *engine.Session) {
	res := sess.Result()
	log.Info().
		Str("session_id", res.SessionID).
		Str("player_id", res.PlayerID).
		Str("status", string(res.Status)).
		Str("reason", string(res.Reason)).
		Int("score", res.Score).
		Int("points_change", res.PointsChange).
		Msg("session finished")

	for _, n := range s.notifiers {
		n.Notify(res)
	}
}

// GameConfig lists active levels for clients
func (s *gameServiceImpl) GameConfig(ctx context.Context) (*GameConfigView, error) {
	view := &GameConfigView{Levels: []LevelSummary{}, ServerTime: s.engine.Now()}
	for _, l := range s.configs.Levels() {
		if l.Active {
			view.Levels = append(view.Levels, levelSummary(l))
		}
	}
	return view, nil
}

// Levels returns every level, active or not
func (s *gameServiceImpl) Levels(ctx context.Context) ([]engine.Level, error) {
	return s.configs.Levels(), nil
}

func (s *gameServiceImpl) SaveLevel(ctx context.Context, level engine.Level) (*engine.Level, error) {
	saved, err := s.configs.SaveLevel(level)
	if err != nil {
		return nil, err
	}
	log.Info().Str("level_id", saved.ID).Msg("level saved")
	return saved, nil
}

func (s *gameServiceImpl) DeleteLevel(ctx context.Context, levelID string) error {
	if err := s.configs.DeleteLevel(levelID); err != nil {
		return err
	}
	log.Info().Str("level_id", levelID).Msg("level deleted")
	return nil
}

func (s *gameServiceImpl) Settings(ctx context.Context) (engine.Settings, error) {
	return s.configs.Settings(), nil
}

func (s *gameServiceImpl) UpdateSettings(ctx context.Context, settings engine.Settings) (engine.Settings, error) {
	// a masked secret coming back from the admin form keeps the stored one
	current := s.configs.Settings()
	if settings.WebhookSecret == current.Masked().WebhookSecret {
		settings.WebhookSecret = current.WebhookSecret
	}
	updated, err := s.configs.UpdateSettings(settings)
	if err != nil {
		return engine.Settings{}, err
	}
	log.Info().Str("webhook_url", updated.WebhookURL).Msg("settings updated")
	return updated, nil
}

// TestWebhook sends a synthetic delivery to override, or to the configured webhook
func (s *gameServiceImpl) TestWebhook(ctx context.Context, override *WebhookTarget) (*WebhookTestResult, error) {
	if s.tester == nil {
		return nil, fmt.Errorf("%w: webhook delivery is not enabled", engine.ErrInvalidConfiguration)
	}

	settings := s.configs.Settings()
	target := WebhookTarget{URL: settings.WebhookURL, Secret: settings.WebhookSecret}
	if override != nil && override.URL != "" {
		target = *override
	}
	if target.URL == "" {
		return &WebhookTestResult{Success: false, Message: "webhook URL is not configured"}, nil
	}

	res := s.tester.Test(ctx, target)
	return &res, nil
}

func (s *gameServiceImpl) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

func (s *gameServiceImpl) resolveLevel(id string) (*engine.Level, error) {
	if id != "" {
		return s.configs.Level(id)
	}
	for _, l := range s.configs.Levels() {
		if l.Active {
			l := l
			return &l, nil
		}
	}
	return nil, fmt.Errorf("%w: no active levels", engine.ErrLevelNotFound)
}

func normalizePlayerID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
