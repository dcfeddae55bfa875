package service

import (
	"time"

	"github.com/wricardo/memory-match-game/game/engine"
)

// StartRequest asks for a new session on a level
type StartRequest struct {
	PlayerID string `json:"player_id"`
	LevelID  string `json:"level_id"`
}

// LevelSummary is the level as shown inside a session
type LevelSummary struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Pairs         int             `json:"num_pairs"`
	TimeLimit     int             `json:"time_limit"`
	PointsReward  int             `json:"points_per_win"`
	PointsPenalty int             `json:"points_per_loss"`
	CardType      engine.CardType `json:"card_type"`
}

// CardView is a card as the client may see it. Value is empty while face down.
type CardView struct {
	Index   int             `json:"index"`
	Value   string          `json:"value,omitempty"`
	Type    engine.CardType `json:"type"`
	Flipped bool            `json:"flipped"`
	Matched bool            `json:"matched"`
}

// SessionView is the client-facing projection of a session with a fresh clock
type SessionView struct {
	ID              string           `json:"id"`
	PlayerID        string           `json:"player_id"`
	Level           LevelSummary     `json:"level"`
	Status          engine.Status    `json:"status"`
	Score           int              `json:"score"`
	Moves           int              `json:"moves"`
	TimeLimit       int              `json:"time_limit"`
	TimeRemaining   *int             `json:"time_remaining"`
	ElapsedSeconds  float64          `json:"elapsed_seconds"`
	ServerTime      time.Time        `json:"server_time"`
	FlipDuration    float64          `json:"flip_duration"`
	ConsecutiveWins int              `json:"consecutive_wins"`
	PointsChange    *int             `json:"points_change"`
	EndReason       engine.EndReason `json:"end_reason,omitempty"`
	Cards           []CardView       `json:"cards"`
	MatchedCount    int              `json:"matched_count"`
	FlippedIndices  []int            `json:"flipped_indices"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// FlipResult is the response of a flip
type FlipResult struct {
	Session      *SessionView `json:"session"`
	IsMatch      *bool        `json:"is_match"`
	Message      string       `json:"message"`
	Revealed     []CardView   `json:"revealed,omitempty"`
	PointsChange *int         `json:"points_change,omitempty"`
	ErrorCode    string       `json:"error_code,omitempty"`
}

// GameConfigView lists what a client can start
type GameConfigView struct {
	Levels     []LevelSummary `json:"levels"`
	ServerTime time.Time      `json:"server_time"`
}

// WebhookTarget is where test deliveries go
type WebhookTarget struct {
	URL    string `json:"webhook_url"`
	Secret string `json:"webhook_secret"`
}

// WebhookTestResult reports a synchronous webhook check
type WebhookTestResult struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
}

// Stats are coarse operational counters
type Stats struct {
	TotalSessions   int `json:"total_sessions"`
	PlayingSessions int `json:"playing_sessions"`
	Wins            int `json:"wins"`
	Losses          int `json:"losses"`
	Players         int `json:"players"`
}

const (
	CodeTimeExpired = "time_expired"
)
