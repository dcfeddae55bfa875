package service

import (
	"time"

	"github.com/wricardo/memory-match-game/game/engine"
)

// NewSessionView projects a session at instant now. Card values stay hidden
// unless the card is face up or matched.
func NewSessionView(s *engine.Session, now time.Time) *SessionView {
	ts := engine.SessionTime(s, now)

	cards := make([]CardView, len(s.Cards))
	for i, c := range s.Cards {
		cards[i] = cardView(c)
	}

	v := &SessionView{
		ID:              s.ID,
		PlayerID:        s.PlayerID,
		Level:           levelSummary(s.Level),
		Status:          s.Status,
		Score:           s.Score,
		Moves:           s.Moves,
		TimeLimit:       s.Level.TimeLimit,
		TimeRemaining:   ts.RemainingSeconds(),
		ElapsedSeconds:  ts.ElapsedSeconds(),
		ServerTime:      ts.ServerTime,
		FlipDuration:    s.FlipDuration,
		ConsecutiveWins: s.ConsecutiveWins,
		EndReason:       s.EndReason,
		Cards:           cards,
		MatchedCount:    s.MatchedCount(),
		FlippedIndices:  append([]int{}, s.FlippedIndices...),
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		CompletedAt:     s.CompletedAt,
	}
	if s.PointsChange != nil {
		pc := *s.PointsChange
		v.PointsChange = &pc
	}
	return v
}

func cardView(c engine.Card) CardView {
	v := CardView{Index: c.Index, Type: c.Type, Flipped: c.Flipped, Matched: c.Matched}
	if c.Flipped || c.Matched {
		v.Value = c.Value
	}
	return v
}

// revealedView shows the values of a just-flipped pair regardless of face state
func revealedView(cards []engine.Card) []CardView {
	out := make([]CardView, len(cards))
	for i, c := range cards {
		out[i] = CardView{Index: c.Index, Value: c.Value, Type: c.Type, Flipped: true, Matched: c.Matched}
	}
	return out
}

func levelSummary(l engine.Level) LevelSummary {
	return LevelSummary{
		ID:            l.ID,
		Name:          l.Name,
		Pairs:         l.Pairs,
		TimeLimit:     l.TimeLimit,
		PointsReward:  l.PointsReward,
		PointsPenalty: l.PointsPenalty,
		CardType:      l.CardType,
	}
}
