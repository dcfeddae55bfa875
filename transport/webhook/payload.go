package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"

	"github.com/wricardo/memory-match-game/game/engine"
)

const EventGameCompleted = "game_completed"

// Payload is the body POSTed to the points service
type Payload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	GameID    string `json:"game_id"`
	Data      Data   `json:"data"`
}

// Data carries the outcome of one game
type Data struct {
	PlayerEmail     string  `json:"player_email"`
	Won             bool    `json:"won"`
	Outcome         string  `json:"outcome"`
	Reason          string  `json:"reason,omitempty"`
	Score           int     `json:"score"`
	Moves           int     `json:"moves"`
	TimeTaken       float64 `json:"time_taken"`
	MatchesFound    int     `json:"matches_found"`
	LevelID         string  `json:"level_id,omitempty"`
	LevelName       string  `json:"level_name,omitempty"`
	PointsChange    int     `json:"points_change"`
	ConsecutiveWins int     `json:"consecutive_wins"`
}

// NewPayload builds the delivery body for a finished session
func NewPayload(r engine.Result, now time.Time) Payload {
	return Payload{
		Event:     EventGameCompleted,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		GameID:    r.SessionID,
		Data: Data{
			PlayerEmail:     r.PlayerID,
			Won:             r.Won(),
			Outcome:         string(r.Status),
			Reason:          string(r.Reason),
			Score:           r.Score,
			Moves:           r.Moves,
			TimeTaken:       math.Round(r.Elapsed.Seconds()*100) / 100,
			MatchesFound:    r.MatchesFound,
			LevelID:         r.LevelID,
			LevelName:       r.LevelName,
			PointsChange:    r.PointsChange,
			ConsecutiveWins: r.ConsecutiveWins,
		},
	}
}

// TestPayload is the synthetic body used by connectivity checks
func TestPayload(now time.Time) Payload {
	return Payload{
		Event:     EventGameCompleted,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		GameID:    "test",
		Data: Data{
			PlayerEmail:  "test@example.com",
			Won:          true,
			Outcome:      string(engine.StatusWin),
			Reason:       string(engine.ReasonAllMatched),
			Score:        100,
			Moves:        15,
			TimeTaken:    45.5,
			MatchesFound: 8,
		},
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time
func Verify(body []byte, secret, signature string) bool {
	want, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
