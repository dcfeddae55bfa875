package engine

import "time"

// CardType describes how a card value is rendered by clients
type CardType string

const (
	CardText  CardType = "text"
	CardImage CardType = "image"
)

// Status is the lifecycle state of a session
type Status string

const (
	StatusPlaying Status = "PLAYING"
	StatusWin     Status = "WIN"
	StatusLose    Status = "LOSE"
)

// Terminal reports whether no further transitions are allowed
func (s Status) Terminal() bool {
	return s == StatusWin || s == StatusLose
}

// EndReason records why a session left PLAYING
type EndReason string

const (
	ReasonAllMatched  EndReason = "all_matched"
	ReasonTimeExpired EndReason = "time_expired"
	ReasonGaveUp      EndReason = "gave_up"
)

const (
	// Deck bounds
	MinPairs = 2
	MaxPairs = 16

	// Difficulty scaling for flip duration
	DefaultFlipDuration   = 0.6
	FlipDurationStep      = 0.12
	FlipDurationMaxStreak = 10

	MaxPendingFlips = 2
)

// Card is a single face of the board
type Card struct {
	Index   int      `json:"index"`
	Value   string   `json:"value"`
	Type    CardType `json:"type"`
	Flipped bool     `json:"flipped"`
	Matched bool     `json:"matched"`
}

// Level is a named difficulty configuration
type Level struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description,omitempty" yaml:"description,omitempty"`
	Pairs         int      `json:"num_pairs" yaml:"num_pairs"`
	TimeLimit     int      `json:"time_limit" yaml:"time_limit"` // seconds, 0 means unlimited
	PointsReward  int      `json:"points_per_win" yaml:"points_per_win"`
	PointsPenalty int      `json:"points_per_loss" yaml:"points_per_loss"`
	FlipDuration  float64  `json:"flip_duration" yaml:"flip_duration"`
	Difficulty    bool     `json:"difficulty_enabled" yaml:"difficulty_enabled"`
	CardType      CardType `json:"card_type" yaml:"card_type"`
	Values        []string `json:"values,omitempty" yaml:"values,omitempty"`
	Active        bool     `json:"is_active" yaml:"is_active"`
}

// Limited reports whether sessions on this level run against a clock
func (l Level) Limited() bool {
	return l.TimeLimit > 0
}

// Messages are the player-facing outcome strings
type Messages struct {
	Match   string `json:"match" yaml:"match"`
	NoMatch string `json:"no_match" yaml:"no_match"`
	Win     string `json:"win" yaml:"win"`
	TimeUp  string `json:"time_up" yaml:"time_up"`
	GaveUp  string `json:"gave_up" yaml:"gave_up"`
}

// Rules is the scoring snapshot a session is played under
type Rules struct {
	MatchPoints        int          `json:"match_points" yaml:"match_points"`
	MismatchPenalty    int          `json:"mismatch_penalty" yaml:"mismatch_penalty"`
	AllowNegativeScore bool         `json:"allow_negative_score" yaml:"allow_negative_score"`
	TimeBonusEnabled   bool         `json:"time_bonus_enabled" yaml:"time_bonus_enabled"`
	Streak             StreakPolicy `json:"streak" yaml:"streak"`
}

// Session is the authoritative state of one game
type Session struct {
	ID              string     `json:"id"`
	PlayerID        string     `json:"player_id"`
	Level           Level      `json:"level"`
	Rules           Rules      `json:"rules"`
	Messages        Messages   `json:"messages"`
	Cards           []Card     `json:"cards"`
	Status          Status     `json:"status"`
	Score           int        `json:"score"`
	Moves           int        `json:"moves"`
	FlippedIndices  []int      `json:"flipped_indices"`
	ConsecutiveWins int        `json:"consecutive_wins"`
	FlipDuration    float64    `json:"flip_duration"`
	PointsChange    *int       `json:"points_change,omitempty"`
	EndReason       EndReason  `json:"end_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Version         int64      `json:"version"`
}

// MatchedCount returns the number of matched cards
func (s *Session) MatchedCount() int {
	n := 0
	for _, c := range s.Cards {
		if c.Matched {
			n++
		}
	}
	return n
}

// SetStreak records the player's streak read at creation and the flip duration it implies
func (s *Session) SetStreak(wins int) {
	s.ConsecutiveWins = wins
	s.FlipDuration = FlipDurationFor(s.Level, wins)
}

// Clone returns a deep copy safe to mutate independently
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Cards = append([]Card(nil), s.Cards...)
	c.FlippedIndices = append([]int(nil), s.FlippedIndices...)
	c.Level.Values = append([]string(nil), s.Level.Values...)
	c.Rules.Streak.Tiers = append([]StreakTier(nil), s.Rules.Streak.Tiers...)
	if s.PointsChange != nil {
		v := *s.PointsChange
		c.PointsChange = &v
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// PlayerRecord carries the per-player streak used for point multipliers
type PlayerRecord struct {
	PlayerID        string    `json:"player_id"`
	ConsecutiveWins int       `json:"consecutive_wins"`
	Wins            int       `json:"wins"`
	Losses          int       `json:"losses"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Apply moves the record through a terminal outcome
func (p *PlayerRecord) Apply(status Status, at time.Time) {
	p.ConsecutiveWins = NextStreak(p.ConsecutiveWins, status)
	switch status {
	case StatusWin:
		p.Wins++
	case StatusLose:
		p.Losses++
	}
	p.UpdatedAt = at
}

// Result is the terminal outcome handed to notifiers after commit
type Result struct {
	SessionID       string        `json:"session_id"`
	PlayerID        string        `json:"player_id"`
	LevelID         string        `json:"level_id"`
	LevelName       string        `json:"level_name"`
	Status          Status        `json:"status"`
	Reason          EndReason     `json:"reason"`
	Score           int           `json:"score"`
	Moves           int           `json:"moves"`
	Elapsed         time.Duration `json:"elapsed"`
	MatchesFound    int           `json:"matches_found"`
	PointsChange    int           `json:"points_change"`
	ConsecutiveWins int           `json:"consecutive_wins"`
	CompletedAt     time.Time     `json:"completed_at"`
}

// Won reports whether the session ended in a win
func (r Result) Won() bool {
	return r.Status == StatusWin
}
