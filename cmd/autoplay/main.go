// Command autoplay plays memory match games against a running server through
// the REST API. It remembers every revealed card, so on untimed levels it
// always wins; on timed levels it reports how far it got before the clock ran out.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

// apiError is the JSON error body returned by the server
type apiError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		apiErr := &apiError{}
		if json.Unmarshal(data, apiErr) == nil && apiErr.Code != "" {
			return apiErr
		}
		return fmt.Errorf("%s %s failed: %s - %s", method, path, resp.Status, string(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) Start(ctx context.Context, playerID, levelID string) (*service.SessionView, error) {
	var view service.SessionView
	err := c.do(ctx, http.MethodPost, "/game/start", service.StartRequest{PlayerID: playerID, LevelID: levelID}, &view)
	return &view, err
}

func (c *Client) Flip(ctx context.Context, sessionID string, first, second int) (*service.FlipResult, error) {
	var res service.FlipResult
	req := map[string]int{"card_index_1": first, "card_index_2": second}
	err := c.do(ctx, http.MethodPost, "/game/"+url.PathEscape(sessionID)+"/flip", req, &res)
	return &res, err
}

func (c *Client) GiveUp(ctx context.Context, sessionID string) (*service.SessionView, error) {
	var view service.SessionView
	err := c.do(ctx, http.MethodPost, "/game/"+url.PathEscape(sessionID)+"/give-up", nil, &view)
	return &view, err
}

// GameReport summarizes one finished game
type GameReport struct {
	SessionID    string
	Status       engine.Status
	Reason       engine.EndReason
	Moves        int
	Score        int
	PointsChange int
	Streak       int
}

// Play runs one game to completion. delay paces flips, mimicking a person
// watching the mismatched pair before it turns back.
func Play(ctx context.Context, c *Client, playerID, levelID string, maxMoves int, delay time.Duration) (*GameReport, error) {
	view, err := c.Start(ctx, playerID, levelID)
	if err != nil {
		return nil, fmt.Errorf("start game: %w", err)
	}
	log.Info().Str("session_id", view.ID).Str("level", view.Level.ID).Int("cards", len(view.Cards)).Msg("game started")

	strategy := NewMemoryStrategy(view)
	for moves := 0; view.Status == engine.StatusPlaying; moves++ {
		if moves >= maxMoves {
			log.Warn().Int("moves", moves).Msg("move limit reached, giving up")
			if view, err = c.GiveUp(ctx, view.ID); err != nil {
				return nil, fmt.Errorf("give up: %w", err)
			}
			break
		}

		first, second, ok := strategy.NextPair()
		if !ok {
			return nil, errors.New("no cards left to flip on a board that is still playing")
		}

		res, err := c.Flip(ctx, view.ID, first, second)
		if err != nil {
			return nil, fmt.Errorf("flip %d/%d: %w", first, second, err)
		}
		view = res.Session
		strategy.Observe(view, res.Revealed)

		log.Debug().
			Int("first", first).
			Int("second", second).
			Bool("match", res.IsMatch != nil && *res.IsMatch).
			Int("known", strategy.Known()).
			Str("error_code", res.ErrorCode).
			Msg(res.Message)

		if delay > 0 && view.Status == engine.StatusPlaying {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	report := &GameReport{
		SessionID: view.ID,
		Status:    view.Status,
		Reason:    view.EndReason,
		Moves:     view.Moves,
		Score:     view.Score,
		Streak:    engine.NextStreak(view.ConsecutiveWins, view.Status),
	}
	if view.PointsChange != nil {
		report.PointsChange = *view.PointsChange
	}
	return report, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:  "autoplay",
		Usage: "Play memory match games through the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Game server URL", Sources: cli.EnvVars("GAME_URL")},
			&cli.StringFlag{Name: "player", Value: "autoplay@example.com", Usage: "Player id"},
			&cli.StringFlag{Name: "level", Value: "easy", Usage: "Level id"},
			&cli.IntFlag{Name: "games", Value: 3, Usage: "Number of games to play"},
			&cli.IntFlag{Name: "max-moves", Value: 200, Usage: "Give up after this many moves"},
			&cli.DurationFlag{Name: "delay", Usage: "Pause between flips"},
			&cli.BoolFlag{Name: "v", Usage: "Verbose output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
			if cmd.Bool("v") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}

			client := NewClient(cmd.String("url"))
			total, wins := 0, 0
			games := int(cmd.Int("games"))
			for i := 1; i <= games; i++ {
				report, err := Play(ctx, client, cmd.String("player"), cmd.String("level"), int(cmd.Int("max-moves")), cmd.Duration("delay"))
				if err != nil {
					return err
				}
				total += report.PointsChange
				if report.Status == engine.StatusWin {
					wins++
				}
				log.Info().
					Int("game", i).
					Str("session_id", report.SessionID).
					Str("status", string(report.Status)).
					Str("reason", string(report.Reason)).
					Int("moves", report.Moves).
					Int("score", report.Score).
					Int("points_change", report.PointsChange).
					Int("streak", report.Streak).
					Msg("game finished")
			}
			fmt.Fprintf(cmd.Root().Writer, "Won %d/%d games, points %+d\n", wins, games, total)
			return nil
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("autoplay failed")
	}
}
