package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

// MockSessionStore implements service.SessionStore for testing
type MockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*engine.Session
	players  map[string]*engine.PlayerRecord

	// conflicts makes the next N updates fail with ErrSessionConflict
	conflicts int
	updates   int
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		sessions: make(map[string]*engine.Session),
		players:  make(map[string]*engine.PlayerRecord),
	}
}

func (m *MockSessionStore) Create(ctx context.Context, sess *engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[sess.PlayerID]
	if !ok {
		p = &engine.PlayerRecord{PlayerID: sess.PlayerID}
		m.players[sess.PlayerID] = p
	}
	sess.SetStreak(p.ConsecutiveWins)
	sess.Version = 1
	m.sessions[sess.ID] = sess.Clone()
	return nil
}

func (m *MockSessionStore) Get(ctx context.Context, id string) (*engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, engine.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MockSessionStore) Update(ctx context.Context, sess *engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.conflicts > 0 {
		m.conflicts--
		return engine.ErrSessionConflict
	}
	cur, ok := m.sessions[sess.ID]
	if !ok {
		return engine.ErrSessionNotFound
	}
	if cur.Version != sess.Version {
		return engine.ErrSessionConflict
	}
	if cur.Status == engine.StatusPlaying && sess.Status.Terminal() {
		m.players[sess.PlayerID].Apply(sess.Status, time.Now())
	}
	sess.Version++
	m.sessions[sess.ID] = sess.Clone()
	return nil
}

func (m *MockSessionStore) ListPlaying(ctx context.Context) ([]*engine.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*engine.Session
	for _, s := range m.sessions {
		if s.Status == engine.StatusPlaying {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (m *MockSessionStore) Player(ctx context.Context, playerID string) (*engine.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[playerID]
	if !ok {
		return &engine.PlayerRecord{PlayerID: playerID}, nil
	}
	c := *p
	return &c, nil
}

func (m *MockSessionStore) Stats(ctx context.Context) (*service.Stats, error) {
	return &service.Stats{TotalSessions: len(m.sessions), Players: len(m.players)}, nil
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	levels   map[string]engine.Level
	settings engine.Settings

	UpdateSettingsFunc func(engine.Settings) (engine.Settings, error)
}

func NewMockConfigManager(levels ...engine.Level) *MockConfigManager {
	m := &MockConfigManager{levels: map[string]engine.Level{}, settings: engine.DefaultSettings()}
	for _, l := range levels {
		m.levels[l.ID] = l
	}
	return m
}

func (m *MockConfigManager) Level(id string) (*engine.Level, error) {
	l, ok := m.levels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrLevelNotFound, id)
	}
	return &l, nil
}

func (m *MockConfigManager) Levels() []engine.Level {
	out := make([]engine.Level, 0, len(m.levels))
	for _, l := range m.levels {
		out = append(out, l)
	}
	return out
}

func (m *MockConfigManager) SaveLevel(level engine.Level) (*engine.Level, error) {
	if err := engine.ValidateLevel(&level); err != nil {
		return nil, err
	}
	m.levels[level.ID] = level
	return &level, nil
}

func (m *MockConfigManager) DeleteLevel(id string) error {
	if _, ok := m.levels[id]; !ok {
		return engine.ErrLevelNotFound
	}
	delete(m.levels, id)
	return nil
}

func (m *MockConfigManager) Settings() engine.Settings { return m.settings }

func (m *MockConfigManager) UpdateSettings(s engine.Settings) (engine.Settings, error) {
	if m.UpdateSettingsFunc != nil {
		return m.UpdateSettingsFunc(s)
	}
	m.settings = s
	return s, nil
}

// MockNotifier records delivered results
type MockNotifier struct {
	mu      sync.Mutex
	results []engine.Result
}

func (m *MockNotifier) Notify(r engine.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
}

func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

// MockWebhookTester implements service.WebhookTester
type MockWebhookTester struct {
	TestFunc func(ctx context.Context, target service.WebhookTarget) service.WebhookTestResult
}

func (m *MockWebhookTester) Test(ctx context.Context, target service.WebhookTarget) service.WebhookTestResult {
	return m.TestFunc(ctx, target)
}

func testLevel() engine.Level {
	return engine.Level{
		ID:            "timed",
		Name:          "Timed",
		Pairs:         2,
		TimeLimit:     30,
		PointsReward:  10,
		PointsPenalty: 5,
		Active:        true,
	}
}

type fixture struct {
	svc      service.GameService
	store    *MockSessionStore
	configs  *MockConfigManager
	notifier *MockNotifier
	clock    *clockwork.FakeClock
}

func setupTestService(t *testing.T, opts ...service.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    NewMockSessionStore(),
		configs:  NewMockConfigManager(testLevel()),
		notifier: &MockNotifier{},
		clock:    clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	eng := engine.NewEngine(engine.WithClock(f.clock), engine.WithShuffler(engine.NewSeededShuffler(3)))
	n := 0
	opts = append([]service.Option{
		service.WithNotifiers(f.notifier),
		service.WithIDGenerator(func() string { n++; return fmt.Sprintf("game-%d", n) }),
	}, opts...)
	f.svc = service.NewGameService(f.store, f.configs, eng, opts...)
	return f
}

// winSession flips every pair of the session by reading the stored deck
func winSession(t *testing.T, f *fixture, id string) *service.FlipResult {
	t.Helper()
	sess, err := f.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	pos := map[string]int{}
	var last *service.FlipResult
	for _, c := range sess.Cards {
		if first, ok := pos[c.Value]; ok {
			last, err = f.svc.Flip(context.Background(), id, first, c.Index)
			if err != nil {
				t.Fatalf("Flip failed: %v", err)
			}
			continue
		}
		pos[c.Value] = c.Index
	}
	return last
}

func TestStart(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, service.StartRequest{PlayerID: " Player@Example.com ", LevelID: "timed"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if view.PlayerID != "player@example.com" {
		t.Errorf("Expected normalized player id, got %q", view.PlayerID)
	}
	if view.Status != engine.StatusPlaying || len(view.Cards) != 4 {
		t.Errorf("Unexpected view %+v", view)
	}
	for _, c := range view.Cards {
		if c.Value != "" {
			t.Errorf("Card %d leaked its value", c.Index)
		}
	}
	if view.TimeRemaining == nil || *view.TimeRemaining != 30 {
		t.Errorf("Expected 30s remaining, got %v", view.TimeRemaining)
	}

	t.Run("unknown level", func(t *testing.T) {
		_, err := f.svc.Start(ctx, service.StartRequest{PlayerID: "p", LevelID: "nope"})
		if !errors.Is(err, engine.ErrLevelNotFound) {
			t.Errorf("Expected ErrLevelNotFound, got %v", err)
		}
	})

	t.Run("missing player", func(t *testing.T) {
		_, err := f.svc.Start(ctx, service.StartRequest{LevelID: "timed"})
		if !errors.Is(err, engine.ErrInvalidConfiguration) {
			t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
		}
	})

	t.Run("default level", func(t *testing.T) {
		v, err := f.svc.Start(ctx, service.StartRequest{PlayerID: "p"})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if v.Level.ID != "timed" {
			t.Errorf("Expected first active level, got %s", v.Level.ID)
		}
	})
}

func TestGetUnknownSession(t *testing.T) {
	f := setupTestService(t)
	_, err := f.svc.Get(context.Background(), "missing")
	if !errors.Is(err, engine.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestWinUpdatesStreakAndNotifiesOnce(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	for round := 1; round <= 2; round++ {
		view, err := f.svc.Start(ctx, service.StartRequest{PlayerID: "p", LevelID: "timed"})
		if err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		if view.ConsecutiveWins != round-1 {
			t.Errorf("round %d: expected streak %d at start, got %d", round, round-1, view.ConsecutiveWins)
		}

		res := winSession(t, f, view.ID)
		if res.Session.Status != engine.StatusWin {
			t.Fatalf("round %d: expected WIN, got %s", round, res.Session.Status)
		}
		want := 10
		if round == 2 {
			want = 20
		}
		if res.PointsChange == nil || *res.PointsChange != want {
			t.Errorf("round %d: expected points change %d, got %v", round, want, res.PointsChange)
		}
	}

	if f.notifier.Count() != 2 {
		t.Errorf("Expected 2 notifications, got %d", f.notifier.Count())
	}
	p, _ := f.store.Player(ctx, "p")
	if p.ConsecutiveWins != 2 || p.Wins != 2 {
		t.Errorf("Unexpected player record %+v", p)
	}
}

func TestFlipAfterExpiry(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	view, err := f.svc.Start(ctx, service.StartRequest{PlayerID: "p", LevelID: "timed"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	f.clock.Advance(31 * time.Second)
	res, err := f.svc.Flip(ctx, view.ID, 0, 1)
	if err != nil {
		t.Fatalf("Expected expiry to be recovered, got %v", err)
	}
	if res.ErrorCode != service.CodeTimeExpired {
		t.Errorf("Expected error code %q, got %q", service.CodeTimeExpired, res.ErrorCode)
	}
	if res.Session.Status != engine.StatusLose || res.IsMatch != nil {
		t.Errorf("Unexpected result %+v", res)
	}
	if res.PointsChange == nil || *res.PointsChange != -5 {
		t.Errorf("Expected penalty -5, got %v", res.PointsChange)
	}

	again, err := f.svc.Flip(ctx, view.ID, 0, 1)
	if err != nil || again.ErrorCode != service.CodeTimeExpired {
		t.Errorf("Expected the same time_expired answer, got %+v %v", again, err)
	}
	if f.notifier.Count() != 1 {
		t.Errorf("Expected exactly one notification, got %d", f.notifier.Count())
	}
}

func TestFlipAfterSweep(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	view, err := f.svc.Start(ctx, service.StartRequest{PlayerID: "p", LevelID: "timed"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	f.clock.Advance(31 * time.Second)
	if n, err := f.svc.ExpireStale(ctx); err != nil || n != 1 {
		t.Fatalf("Expected one swept session, got %d %v", n, err)
	}
	updates := f.store.updates

	f.clock.Advance(5 * time.Second)
	res, err := f.svc.Flip(ctx, view.ID, 0, 1)
	if err != nil {
		t.Fatalf("Expected a time_expired result, got %v", err)
	}
	if res.ErrorCode != service.CodeTimeExpired || res.IsMatch != nil {
		t.Errorf("Unexpected result %+v", res)
	}
	if res.Message != engine.DefaultMessages().TimeUp {
		t.Errorf("Expected time up message, got %q", res.Message)
	}
	if res.Session.Status != engine.StatusLose || res.Session.EndReason != engine.ReasonTimeExpired {
		t.Errorf("Expected LOSE by time, got %s/%s", res.Session.Status, res.Session.EndReason)
	}
	if res.PointsChange == nil || *res.PointsChange != -5 {
		t.Errorf("Expected stored penalty -5, got %v", res.PointsChange)
	}
	if f.store.updates != updates {
		t.Errorf("Expected no save after the sweep, got %d more", f.store.updates-updates)
	}
	if f.notifier.Count() != 1 {
		t.Errorf("Expected exactly one notification, got %d", f.notifier.Count())
	}

	if _, err := f.svc.GiveUp(ctx, view.ID); err != nil {
		t.Fatalf("GiveUp failed: %v", err)
	}
	p, _ := f.store.Player(ctx, "p")
	if p.Losses != 1 {
		t.Errorf("Expected a single recorded loss, got %+v", p)
	}
}

func TestGiveUpIdempotent(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	view, _ := f.svc.Start(ctx, service.StartRequest{PlayerID: "p", LevelID: "timed"})

	first, err := f.svc.GiveUp(ctx, view.ID)
	if err != nil {
		t.Fatalf("GiveUp failed: %v", err)
	}
	second, err := f.svc.GiveUp(ctx, view.ID)
	if err != nil {
		t.Fatalf("second GiveUp failed: %v", err)
	}
	if first.Status != engine.StatusLose || second.Status != engine.StatusLose {
		t.Error("Expected LOSE after give up")
	}
	if *first.PointsChange != *second.PointsChange {
		t.Error("Points change must not be settled twice")
	}
	if f.notifier.Count() != 1 {
		t.Errorf("Expected one notification, got %d", f.notifier.Count())
	}
}

func TestConflictRetry(t *testing.T) {
	t.Run("recovers within budget", func(t *testing.T) {
		f := setupTestService(t)
		ctx := context.Background()
		view, _ := f.svc.Start(ctx, service.StartRequest{PlayerID: "p", LevelID: "timed"})

		f.store.conflicts = 2
		if _, err := f.svc.GiveUp(ctx, view.ID); err != nil {
			t.Fatalf("Expected retry to succeed, got %v", err)
		}
		if f.store.updates != 3 {
			t.Errorf("Expected 3 update attempts, got %d", f.store.updates)
		}
	})

	t.Run("surfaces conflict after budget", func(t *testing.T) {
		f := setupTestService(t, service.WithMaxConflictRetries(1))
		ctx := context.Background()
		view, _ := f.svc.Start(ctx, service.StartRequest{PlayerID: "p", LevelID: "timed"})

		f.store.conflicts = 5
		_, err := f.svc.GiveUp(ctx, view.ID)
		if !errors.Is(err, engine.ErrSessionConflict) {
			t.Errorf("Expected ErrSessionConflict, got %v", err)
		}
		if f.notifier.Count() != 0 {
			t.Error("No result may be announced for an uncommitted transition")
		}
	})
}

func TestConcurrentGiveUpReportsOnce(t *testing.T) {
	f := setupTestService(t, service.WithMaxConflictRetries(10))
	ctx := context.Background()
	view, _ := f.svc.Start(ctx, service.StartRequest{PlayerID: "p", LevelID: "timed"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.GiveUp(ctx, view.ID); err != nil {
				t.Errorf("GiveUp failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if f.notifier.Count() != 1 {
		t.Errorf("Expected exactly one notification, got %d", f.notifier.Count())
	}
	p, _ := f.store.Player(ctx, "p")
	if p.Losses != 1 {
		t.Errorf("Expected one recorded loss, got %d", p.Losses)
	}
}

func TestExpireStale(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	a, _ := f.svc.Start(ctx, service.StartRequest{PlayerID: "a", LevelID: "timed"})
	f.clock.Advance(20 * time.Second)
	b, _ := f.svc.Start(ctx, service.StartRequest{PlayerID: "b", LevelID: "timed"})
	f.clock.Advance(15 * time.Second)

	n, err := f.svc.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 expired session, got %d", n)
	}
	va, _ := f.svc.Get(ctx, a.ID)
	vb, _ := f.svc.Get(ctx, b.ID)
	if va.Status != engine.StatusLose || va.EndReason != engine.ReasonTimeExpired {
		t.Errorf("Expected first session expired, got %s", va.Status)
	}
	if vb.Status != engine.StatusPlaying {
		t.Errorf("Expected second session still playing, got %s", vb.Status)
	}
}

func TestGameConfigListsActiveLevels(t *testing.T) {
	f := setupTestService(t)
	hidden := testLevel()
	hidden.ID, hidden.Active = "hidden", false
	f.configs.levels[hidden.ID] = hidden

	cfg, err := f.svc.GameConfig(context.Background())
	if err != nil {
		t.Fatalf("GameConfig failed: %v", err)
	}
	if len(cfg.Levels) != 1 || cfg.Levels[0].ID != "timed" {
		t.Errorf("Expected only the active level, got %+v", cfg.Levels)
	}
}

func TestUpdateSettingsKeepsMaskedSecret(t *testing.T) {
	f := setupTestService(t)
	f.configs.settings.WebhookSecret = "real-secret"

	in := f.configs.settings.Masked()
	in.WebhookURL = "https://points.example.com/hook"
	out, err := f.svc.UpdateSettings(context.Background(), in)
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if out.WebhookSecret != "real-secret" {
		t.Errorf("Expected stored secret to be kept, got %q", out.WebhookSecret)
	}
}

func TestTestWebhook(t *testing.T) {
	t.Run("not enabled", func(t *testing.T) {
		f := setupTestService(t)
		_, err := f.svc.TestWebhook(context.Background(), nil)
		if !errors.Is(err, engine.ErrInvalidConfiguration) {
			t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
		}
	})

	t.Run("no url configured", func(t *testing.T) {
		f := setupTestService(t, service.WithWebhookTester(&MockWebhookTester{}))
		res, err := f.svc.TestWebhook(context.Background(), nil)
		if err != nil || res.Success {
			t.Errorf("Expected unsuccessful result without error, got %+v %v", res, err)
		}
	})

	t.Run("override target", func(t *testing.T) {
		var got service.WebhookTarget
		tester := &MockWebhookTester{TestFunc: func(ctx context.Context, target service.WebhookTarget) service.WebhookTestResult {
			got = target
			return service.WebhookTestResult{Success: true, StatusCode: 200, Message: "ok"}
		}}
		f := setupTestService(t, service.WithWebhookTester(tester))
		res, err := f.svc.TestWebhook(context.Background(), &service.WebhookTarget{URL: "http://x/hook", Secret: "s"})
		if err != nil || !res.Success {
			t.Fatalf("Expected success, got %+v %v", res, err)
		}
		if got.URL != "http://x/hook" || got.Secret != "s" {
			t.Errorf("Unexpected target %+v", got)
		}
	})
}
