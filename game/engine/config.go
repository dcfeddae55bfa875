package engine

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultMatchPoints     = 10
	DefaultMismatchPenalty = 2
	DefaultPointsPerWin    = 10
	DefaultPointsPerLoss   = 2
)

// Settings is the operator-editable configuration shared by every level
type Settings struct {
	WebhookURL         string       `json:"webhook_url" yaml:"webhook_url"`
	WebhookSecret      string       `json:"webhook_secret" yaml:"webhook_secret"`
	MatchPoints        int          `json:"match_points" yaml:"match_points"`
	MismatchPenalty    int          `json:"mismatch_penalty" yaml:"mismatch_penalty"`
	AllowNegativeScore bool         `json:"allow_negative_score" yaml:"allow_negative_score"`
	TimeBonusEnabled   bool         `json:"time_bonus_enabled" yaml:"time_bonus_enabled"`
	PointsPerWin       int          `json:"points_per_win" yaml:"points_per_win"`
	PointsPerLoss      int          `json:"points_per_loss" yaml:"points_per_loss"`
	Streak             StreakPolicy `json:"streak" yaml:"streak"`
	Messages           Messages     `json:"messages" yaml:"messages"`
}

// DefaultMessages are the English outcome strings
func DefaultMessages() Messages {
	return Messages{
		Match:   "Match found!",
		NoMatch: "No match, try again.",
		Win:     "You won!",
		TimeUp:  "Time's up!",
		GaveUp:  "Game abandoned.",
	}
}

// DefaultSettings returns settings used when no settings file exists
func DefaultSettings() Settings {
	return Settings{
		MatchPoints:     DefaultMatchPoints,
		MismatchPenalty: DefaultMismatchPenalty,
		PointsPerWin:    DefaultPointsPerWin,
		PointsPerLoss:   DefaultPointsPerLoss,
		Streak:          DefaultStreakPolicy(),
		Messages:        DefaultMessages(),
	}
}

// Rules extracts the per-session scoring snapshot
func (s Settings) Rules() Rules {
	return Rules{
		MatchPoints:        s.MatchPoints,
		MismatchPenalty:    s.MismatchPenalty,
		AllowNegativeScore: s.AllowNegativeScore,
		TimeBonusEnabled:   s.TimeBonusEnabled,
		Streak:             StreakPolicy{Tiers: append([]StreakTier(nil), s.Streak.Tiers...)},
	}
}

// Masked returns a copy safe to show to operators
func (s Settings) Masked() Settings {
	if s.WebhookSecret != "" {
		s.WebhookSecret = "********"
	}
	return s
}

// NewLevel returns a level populated with defaults from settings, ready to be
// overlaid by a decoded level file.
func NewLevel(s Settings) Level {
	return Level{
		PointsReward:  s.PointsPerWin,
		PointsPenalty: s.PointsPerLoss,
		FlipDuration:  DefaultFlipDuration,
		CardType:      CardText,
		Active:        true,
	}
}

// ValidateLevel validates a level and fills derived defaults
func ValidateLevel(l *Level) error {
	if l == nil {
		return fmt.Errorf("%w: level is nil", ErrInvalidConfiguration)
	}
	l.Name = strings.TrimSpace(l.Name)
	if l.ID == "" {
		return fmt.Errorf("%w: level id is required", ErrInvalidConfiguration)
	}
	if l.Name == "" {
		return fmt.Errorf("%w: level %q: name is required", ErrInvalidConfiguration, l.ID)
	}
	if l.Pairs < MinPairs || l.Pairs > MaxPairs {
		return fmt.Errorf("%w: level %q: num_pairs must be between %d and %d, got %d",
			ErrInvalidConfiguration, l.ID, MinPairs, MaxPairs, l.Pairs)
	}
	if l.TimeLimit < 0 {
		return fmt.Errorf("%w: level %q: time_limit cannot be negative", ErrInvalidConfiguration, l.ID)
	}
	if l.PointsReward < 0 || l.PointsPenalty < 0 {
		return fmt.Errorf("%w: level %q: points_per_win and points_per_loss cannot be negative", ErrInvalidConfiguration, l.ID)
	}
	if l.FlipDuration < 0 {
		return fmt.Errorf("%w: level %q: flip_duration cannot be negative", ErrInvalidConfiguration, l.ID)
	}
	if l.FlipDuration == 0 {
		l.FlipDuration = DefaultFlipDuration
	}

	switch l.CardType {
	case "":
		l.CardType = CardText
	case CardText, CardImage:
	default:
		return fmt.Errorf("%w: level %q: unknown card_type %q", ErrInvalidConfiguration, l.ID, l.CardType)
	}
	if l.CardType == CardImage && len(l.Values) == 0 {
		return fmt.Errorf("%w: level %q: image levels need values", ErrInvalidConfiguration, l.ID)
	}
	if len(l.Values) > 0 {
		if n := len(distinct(l.Values)); n < l.Pairs {
			return fmt.Errorf("%w: level %q: %d pairs need %d distinct values, got %d",
				ErrInvalidConfiguration, l.ID, l.Pairs, l.Pairs, n)
		}
	}
	return nil
}

// ValidateSettings checks operator settings
func ValidateSettings(s *Settings) error {
	if s.MatchPoints < 0 || s.MismatchPenalty < 0 {
		return fmt.Errorf("%w: match_points and mismatch_penalty cannot be negative", ErrInvalidConfiguration)
	}
	if s.PointsPerWin < 0 || s.PointsPerLoss < 0 {
		return fmt.Errorf("%w: points_per_win and points_per_loss cannot be negative", ErrInvalidConfiguration)
	}
	if s.WebhookURL != "" {
		u, err := url.Parse(s.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: webhook_url must be an absolute http(s) URL", ErrInvalidConfiguration)
		}
	}
	if err := s.Streak.Validate(); err != nil {
		return err
	}

	d := DefaultMessages()
	if s.Messages.Match == "" {
		s.Messages.Match = d.Match
	}
	if s.Messages.NoMatch == "" {
		s.Messages.NoMatch = d.NoMatch
	}
	if s.Messages.Win == "" {
		s.Messages.Win = d.Win
	}
	if s.Messages.TimeUp == "" {
		s.Messages.TimeUp = d.TimeUp
	}
	if s.Messages.GaveUp == "" {
		s.Messages.GaveUp = d.GaveUp
	}
	return nil
}

// DefaultLevels is the built-in level set used when no level files exist
func DefaultLevels(s Settings) []Level {
	mk := func(id, name, desc string, pairs, limit int) Level {
		l := NewLevel(s)
		l.ID, l.Name, l.Description = id, name, desc
		l.Pairs, l.TimeLimit = pairs, limit
		return l
	}
	easy := mk("easy", "Easy", "Six pairs, no clock", 6, 0)
	medium := mk("medium", "Medium", "Eight pairs in two minutes", 8, 120)
	hard := mk("hard", "Hard", "Twelve pairs in three minutes, longer streaks keep mismatches face up longer", 12, 180)
	hard.Difficulty = true
	return []Level{easy, medium, hard}
}
