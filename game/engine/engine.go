package engine

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Engine provides the session rules: deal, flip, give up and expire
type Engine interface {
	NewSession(id, playerID string, level Level, settings Settings, consecutiveWins int) (*Session, error)
	Flip(s *Session, first, second int) (*FlipOutcome, error)
	GiveUp(s *Session) bool
	Expire(s *Session) bool
	Time(s *Session) TimeStatus
	Now() time.Time
}

// FlipOutcome describes what a single flip revealed
type FlipOutcome struct {
	IsMatch  *bool  `json:"is_match"`
	Revealed []Card `json:"revealed,omitempty"`
	Message  string `json:"message"`
	Finished bool   `json:"finished"`
}

// GameEngine implements Engine against an injectable clock and shuffler
type GameEngine struct {
	clock clockwork.Clock
	rng   Shuffler
}

// EngineOption configures a GameEngine
type EngineOption func(*GameEngine)

// WithClock replaces the wall clock, typically with a clockwork fake in tests
func WithClock(c clockwork.Clock) EngineOption {
	return func(e *GameEngine) { e.clock = c }
}

// WithShuffler replaces the deck randomness
func WithShuffler(r Shuffler) EngineOption {
	return func(e *GameEngine) { e.rng = r }
}

// NewEngine creates a game engine
func NewEngine(opts ...EngineOption) *GameEngine {
	e := &GameEngine{
		clock: clockwork.NewRealClock(),
		rng:   NewShuffler(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now returns the authoritative server time
func (e *GameEngine) Now() time.Time {
	return e.clock.Now().UTC()
}

// Time derives the session clock at the current instant
func (e *GameEngine) Time(s *Session) TimeStatus {
	return SessionTime(s, e.Now())
}

// NewSession deals a fresh board. consecutiveWins is the player's streak read by the store.
func (e *GameEngine) NewSession(id, playerID string, level Level, settings Settings, consecutiveWins int) (*Session, error) {
	if playerID == "" {
		return nil, fmt.Errorf("%w: player id is required", ErrInvalidConfiguration)
	}
	if err := ValidateLevel(&level); err != nil {
		return nil, err
	}
	if !level.Active {
		return nil, fmt.Errorf("%w: level %q is not active", ErrInvalidConfiguration, level.ID)
	}
	cards, err := GenerateDeck(level.Pairs, level.Values, level.CardType, e.rng)
	if err != nil {
		return nil, err
	}

	now := e.Now()
	return &Session{
		ID:              id,
		PlayerID:        playerID,
		Level:           level,
		Rules:           settings.Rules(),
		Messages:        settings.Messages,
		Cards:           cards,
		Status:          StatusPlaying,
		FlippedIndices:  []int{},
		ConsecutiveWins: consecutiveWins,
		FlipDuration:    FlipDurationFor(level, consecutiveWins),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Flip reveals two cards. On an expired clock the session is forced to LOSE and
// ErrTimeExpired is returned alongside the outcome; the mutated session must be saved.
// A session that already lost to the clock answers the same way but is left untouched.
func (e *GameEngine) Flip(s *Session, first, second int) (*FlipOutcome, error) {
	if s.Status.Terminal() {
		if s.Status == StatusLose && s.EndReason == ReasonTimeExpired {
			return &FlipOutcome{Message: s.Messages.TimeUp, Finished: true}, ErrTimeExpired
		}
		return nil, ErrGameOver
	}

	now := e.Now()
	if SessionTime(s, now).Expired {
		e.finish(s, StatusLose, ReasonTimeExpired, now)
		return &FlipOutcome{Message: s.Messages.TimeUp, Finished: true}, ErrTimeExpired
	}
	if err := validateFlip(s, first, second); err != nil {
		return nil, err
	}

	s.FlippedIndices = append(s.FlippedIndices, first, second)
	s.Cards[first].Flipped = true
	s.Cards[second].Flipped = true
	s.Moves++

	match := s.Cards[first].Value == s.Cards[second].Value
	out := &FlipOutcome{IsMatch: &match}
	if match {
		s.Cards[first].Matched = true
		s.Cards[second].Matched = true
		s.Score = s.Rules.applyMatch(s.Score)
		out.Message = s.Messages.Match
	} else {
		s.Score = s.Rules.applyMismatch(s.Score)
		out.Message = s.Messages.NoMatch
	}
	out.Revealed = []Card{s.Cards[first], s.Cards[second]}

	if !match {
		s.Cards[first].Flipped = false
		s.Cards[second].Flipped = false
	}
	s.FlippedIndices = []int{}
	s.UpdatedAt = now

	if s.MatchedCount() == len(s.Cards) {
		e.finish(s, StatusWin, ReasonAllMatched, now)
		out.Message = s.Messages.Win
		out.Finished = true
	}
	return out, nil
}

// GiveUp forfeits a running session. It reports false when the session already finished.
func (e *GameEngine) GiveUp(s *Session) bool {
	if s.Status.Terminal() {
		return false
	}
	e.finish(s, StatusLose, ReasonGaveUp, e.Now())
	return true
}

// Expire forces LOSE on a running session whose clock ran out
func (e *GameEngine) Expire(s *Session) bool {
	if s.Status.Terminal() {
		return false
	}
	now := e.Now()
	if !SessionTime(s, now).Expired {
		return false
	}
	e.finish(s, StatusLose, ReasonTimeExpired, now)
	return true
}

func (e *GameEngine) finish(s *Session, status Status, reason EndReason, now time.Time) {
	if status == StatusWin && s.Rules.TimeBonusEnabled {
		if ts := SessionTime(s, now); ts.Limited {
			s.Score += int(ts.Remaining / time.Second)
		}
	}

	for i := range s.Cards {
		if !s.Cards[i].Matched {
			s.Cards[i].Flipped = false
		}
	}
	completed := now
	change := Settle(s.Level, s.Rules.Streak, s.ConsecutiveWins, status)

	s.Status = status
	s.EndReason = reason
	s.CompletedAt = &completed
	s.UpdatedAt = now
	s.PointsChange = &change
	s.FlippedIndices = []int{}
}

func validateFlip(s *Session, first, second int) error {
	if len(s.FlippedIndices) >= MaxPendingFlips {
		return fmt.Errorf("%w: %d cards already pending", ErrInvalidFlip, len(s.FlippedIndices))
	}
	if first == second {
		return fmt.Errorf("%w: cannot flip the same card twice", ErrInvalidFlip)
	}
	for _, i := range []int{first, second} {
		if i < 0 || i >= len(s.Cards) {
			return fmt.Errorf("%w: card index %d out of range [0, %d)", ErrInvalidFlip, i, len(s.Cards))
		}
		if s.Cards[i].Matched {
			return fmt.Errorf("%w: card %d is already matched", ErrInvalidFlip, i)
		}
		if s.Cards[i].Flipped {
			return fmt.Errorf("%w: card %d is already face up", ErrInvalidFlip, i)
		}
	}
	return nil
}

// Result summarizes a finished session for notifiers
func (s *Session) Result() Result {
	r := Result{
		SessionID:       s.ID,
		PlayerID:        s.PlayerID,
		LevelID:         s.Level.ID,
		LevelName:       s.Level.Name,
		Status:          s.Status,
		Reason:          s.EndReason,
		Score:           s.Score,
		Moves:           s.Moves,
		MatchesFound:    s.MatchedCount() / 2,
		ConsecutiveWins: NextStreak(s.ConsecutiveWins, s.Status),
	}
	if s.PointsChange != nil {
		r.PointsChange = *s.PointsChange
	}
	if s.CompletedAt != nil {
		r.CompletedAt = *s.CompletedAt
		r.Elapsed = s.CompletedAt.Sub(s.CreatedAt)
	}
	return r
}
