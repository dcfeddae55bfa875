package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateLevel(t *testing.T) {
	t.Run("valid level gets defaults", func(t *testing.T) {
		l := createTestLevel()
		l.CardType = ""
		l.FlipDuration = 0
		if err := ValidateLevel(&l); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if l.CardType != CardText || l.FlipDuration != DefaultFlipDuration {
			t.Errorf("Expected defaults, got %s %v", l.CardType, l.FlipDuration)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Level)
	}{
		{"missing id", func(l *Level) { l.ID = "" }},
		{"missing name", func(l *Level) { l.Name = "  " }},
		{"too few pairs", func(l *Level) { l.Pairs = 1 }},
		{"too many pairs", func(l *Level) { l.Pairs = MaxPairs + 1 }},
		{"negative time", func(l *Level) { l.TimeLimit = -1 }},
		{"negative reward", func(l *Level) { l.PointsReward = -1 }},
		{"unknown card type", func(l *Level) { l.CardType = "video" }},
		{"image without values", func(l *Level) { l.CardType = CardImage }},
		{"not enough values", func(l *Level) { l.Values = []string{"a", "b", "c"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := createTestLevel()
			tt.mutate(&l)
			if err := ValidateLevel(&l); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestValidateSettings(t *testing.T) {
	t.Run("fills missing messages", func(t *testing.T) {
		s := DefaultSettings()
		s.Messages = Messages{Win: "Gagné !"}
		if err := ValidateSettings(&s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.Messages.Win != "Gagné !" || s.Messages.TimeUp != DefaultMessages().TimeUp {
			t.Errorf("Unexpected messages %+v", s.Messages)
		}
	})

	bad := map[string]func(*Settings){
		"relative webhook": func(s *Settings) { s.WebhookURL = "/hook" },
		"ftp webhook":      func(s *Settings) { s.WebhookURL = "ftp://example.com/hook" },
		"negative penalty": func(s *Settings) { s.MismatchPenalty = -1 },
		"negative reward":  func(s *Settings) { s.PointsPerWin = -3 },
		"bad streak tier":  func(s *Settings) { s.Streak.Tiers = []StreakTier{{MinWins: 0, Multiplier: 2}} },
	}
	for name, mutate := range bad {
		t.Run(name, func(t *testing.T) {
			s := DefaultSettings()
			mutate(&s)
			if err := ValidateSettings(&s); !errors.Is(err, ErrInvalidConfiguration) {
				t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}
}

func TestSettingsMasked(t *testing.T) {
	s := DefaultSettings()
	s.WebhookSecret = "shh"
	if s.Masked().WebhookSecret == "shh" {
		t.Error("Expected secret to be masked")
	}
	if s.WebhookSecret != "shh" {
		t.Error("Masked must not modify the receiver")
	}
}

func TestDefaultLevelsValid(t *testing.T) {
	for _, l := range DefaultLevels(DefaultSettings()) {
		l := l
		if err := ValidateLevel(&l); err != nil {
			t.Errorf("default level %s invalid: %v", l.ID, err)
		}
	}
}

func TestHardLevelSlowsFlipBack(t *testing.T) {
	hard := DefaultLevels(DefaultSettings())[2]
	if !hard.Difficulty {
		t.Fatal("Expected difficulty on the hard level")
	}
	if FlipDurationFor(hard, 5) <= FlipDurationFor(hard, 0) {
		t.Errorf("Expected a longer flip duration on a streak, got %v <= %v", FlipDurationFor(hard, 5), FlipDurationFor(hard, 0))
	}
	if !strings.Contains(hard.Description, "face up longer") {
		t.Errorf("Description should match the difficulty scaling: %q", hard.Description)
	}
}
