package engine

import (
	"fmt"
	"math"
	"sort"
)

// StreakTier applies Multiplier once a player reaches MinWins consecutive wins
type StreakTier struct {
	MinWins    int `json:"min_wins" yaml:"min_wins"`
	Multiplier int `json:"multiplier" yaml:"multiplier"`
}

// StreakPolicy maps a consecutive-win count to a point multiplier
type StreakPolicy struct {
	Tiers []StreakTier `json:"tiers" yaml:"tiers"`
}

// DefaultStreakPolicy doubles points once a player holds two or more consecutive wins
func DefaultStreakPolicy() StreakPolicy {
	return StreakPolicy{Tiers: []StreakTier{{MinWins: 2, Multiplier: 2}}}
}

// Multiplier returns the largest multiplier of every tier reached by wins, or 1
func (p StreakPolicy) Multiplier(wins int) int {
	m := 1
	for _, t := range p.Tiers {
		if wins >= t.MinWins && t.Multiplier > m {
			m = t.Multiplier
		}
	}
	return m
}

// Validate checks tiers are positive and unique
func (p StreakPolicy) Validate() error {
	seen := make(map[int]bool, len(p.Tiers))
	for i, t := range p.Tiers {
		if t.MinWins < 1 {
			return fmt.Errorf("%w: streak tier %d: min_wins must be at least 1", ErrInvalidConfiguration, i)
		}
		if t.Multiplier < 1 {
			return fmt.Errorf("%w: streak tier %d: multiplier must be at least 1", ErrInvalidConfiguration, i)
		}
		if seen[t.MinWins] {
			return fmt.Errorf("%w: streak tier %d: duplicate min_wins %d", ErrInvalidConfiguration, i, t.MinWins)
		}
		seen[t.MinWins] = true
	}
	return nil
}

// Sorted returns tiers ordered by MinWins
func (p StreakPolicy) Sorted() []StreakTier {
	tiers := append([]StreakTier(nil), p.Tiers...)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinWins < tiers[j].MinWins })
	return tiers
}

// Settle computes the points change of a terminal outcome.
// A win is paid at the streak it creates; a loss is charged at the streak it breaks.
func Settle(level Level, policy StreakPolicy, winsBefore int, status Status) int {
	switch status {
	case StatusWin:
		return level.PointsReward * policy.Multiplier(winsBefore+1)
	case StatusLose:
		return -level.PointsPenalty * policy.Multiplier(winsBefore)
	}
	return 0
}

// NextStreak is the consecutive-win count after a terminal outcome
func NextStreak(current int, status Status) int {
	switch status {
	case StatusWin:
		return current + 1
	case StatusLose:
		return 0
	}
	return current
}

// FlipDurationFor returns how long a mismatched pair stays visible, in seconds.
// With difficulty enabled every win beyond the first adds a step, capped.
func FlipDurationFor(level Level, wins int) float64 {
	base := level.FlipDuration
	if base <= 0 {
		base = DefaultFlipDuration
	}
	if !level.Difficulty || wins <= 1 {
		return base
	}
	if wins > FlipDurationMaxStreak {
		wins = FlipDurationMaxStreak
	}
	d := base + FlipDurationStep*float64(wins-1)
	return math.Round(d*100) / 100
}

func (r Rules) applyMatch(score int) int {
	return score + r.MatchPoints
}

func (r Rules) applyMismatch(score int) int {
	score -= r.MismatchPenalty
	if score < 0 && !r.AllowNegativeScore {
		return 0
	}
	return score
}
