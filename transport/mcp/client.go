package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Memory Match Game",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Memory Match Game - MCP Interface

This is a thin client that proxies all requests to the REST API server.

GAME OBJECTIVE:
Find every pair of matching cards before the timer runs out. Cards are face down;
flip two at a time. A match stays face up, a mismatch turns back over.

AVAILABLE TOOLS:
- list_levels: Levels you can play (pairs, time limit, points at stake)
- start_game: Start a session for a player on a level
- get_game: Current board, score and remaining time
- flip_cards: Flip two cards by index
- give_up: Abandon the session (counts as a loss)
- game_instructions: Rules, scoring and streak bonuses`),
	)

	c.registerTools()
}

func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_levels",
		Description: "List the active levels",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListLevels)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_game",
		Description: "Start a new memory match session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"player_id": map[string]interface{}{
					"type":        "string",
					"description": "Player identity (usually an email address)",
				},
				"level_id": map[string]interface{}{
					"type":        "string",
					"description": "Level to play (optional, defaults to the first active level)",
				},
			},
			Required: []string{"player_id"},
		},
	}, c.handleStartGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_game",
		Description: "Get the current state of a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetGame)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "flip_cards",
		Description: "Flip two face-down cards and see whether they match",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID",
				},
				"first": map[string]interface{}{
					"type":        "integer",
					"description": "Index of the first card (0-based)",
				},
				"second": map[string]interface{}{
					"type":        "integer",
					"description": "Index of the second card (0-based)",
				},
			},
			Required: []string{"session_id", "first", "second"},
		},
	}, c.handleFlipCards)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "give_up",
		Description: "Give up the session. It ends as a loss and the penalty applies.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleGiveUp)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "game_instructions",
		Description: "Get the rules of the game",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGameInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// intArg accepts JSON numbers and numeric strings
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), v == float64(int(v))
	case int:
		return v, true
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
	}
	return 0, false
}

func sessionPath(id string, suffix string) string {
	return "/game/" + url.PathEscape(id) + suffix
}

// Tool handlers

func (c *Client) handleListLevels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var cfg service.GameConfigView
	if err := c.apiCall(ctx, "GET", "/game/config", nil, &cfg); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatLevels(cfg.Levels)), nil
}

func (c *Client) handleStartGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	playerID, _ := args["player_id"].(string)
	levelID, _ := args["level_id"].(string)
	if playerID == "" {
		return mcp.NewToolResultError("player_id is required"), nil
	}

	var view service.SessionView
	body := service.StartRequest{PlayerID: playerID, LevelID: levelID}
	if err := c.apiCall(ctx, "POST", "/game/start", body, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Started session: %s\n\n%s", view.ID, formatSession(&view))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetGame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var view service.SessionView
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSession(&view)), nil
}

func (c *Client) handleFlipCards(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	first, ok1 := intArg(args, "first")
	second, ok2 := intArg(args, "second")
	if sessionID == "" || !ok1 || !ok2 {
		return mcp.NewToolResultError("session_id, first and second are required"), nil
	}

	body := map[string]int{"card_index_1": first, "card_index_2": second}
	var result service.FlipResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/flip"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatFlipResult(&result)), nil
}

func (c *Client) handleGiveUp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var view service.SessionView
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/give-up"), nil, &view); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(formatSession(&view)), nil
}

func (c *Client) handleGameInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `MEMORY MATCH - RULES

BOARD:
- The board holds N pairs of cards (2N cards), shuffled face down.
- Cards are addressed by their 0-based index. Face-down cards show "??".

PLAYING:
- Flip two different face-down cards with flip_cards.
- Same value: both stay face up as a match (+10 points).
- Different values: both turn back over (-2 points, never below 0 unless the operator allows it).
- Every flip of two cards counts as one move.

WINNING AND LOSING:
- Match every pair to WIN.
- Timed levels are LOST when the clock reaches zero. The server clock is authoritative:
  time keeps running while you think, and a flip after the deadline ends the game.
- give_up ends the game as a LOSS.

POINTS:
- A win earns the level's points_per_win; a loss costs points_per_loss.
- Win streaks multiply the reward (by default 2x from the second consecutive win).
- A loss resets the streak.
- With difficulty enabled, cards stay visible a little longer as your streak grows.

STRATEGY:
- Remember every value you have seen, including mismatches.
- Flip an unknown card first, then a known partner if you have seen its value.`

func formatLevels(levels []service.LevelSummary) string {
	if len(levels) == 0 {
		return "No active levels"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Levels (%d):\n\n", len(levels))
	for _, l := range levels {
		limit := "no time limit"
		if l.TimeLimit > 0 {
			limit = fmt.Sprintf("%ds", l.TimeLimit)
		}
		fmt.Fprintf(&b, "- %s (%s): %d pairs, %s, +%d / -%d points\n",
			l.ID, l.Name, l.Pairs, limit, l.PointsReward, l.PointsPenalty)
	}
	return b.String()
}

func formatSession(v *service.SessionView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\n", v.ID)
	fmt.Fprintf(&b, "Player: %s\n", v.PlayerID)
	fmt.Fprintf(&b, "Level: %s (%d pairs)\n", v.Level.Name, v.Level.Pairs)
	fmt.Fprintf(&b, "Status: %s", v.Status)
	if v.EndReason != "" {
		fmt.Fprintf(&b, " (%s)", v.EndReason)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Score: %d | Moves: %d | Matched cards: %d/%d\n", v.Score, v.Moves, v.MatchedCount, len(v.Cards))
	if v.TimeRemaining != nil {
		fmt.Fprintf(&b, "Time remaining: %ds of %ds\n", *v.TimeRemaining, v.TimeLimit)
	} else {
		fmt.Fprintf(&b, "Elapsed: %.1fs (no time limit)\n", v.ElapsedSeconds)
	}
	if v.PointsChange != nil {
		fmt.Fprintf(&b, "Points change: %+d (streak: %d)\n", *v.PointsChange, v.ConsecutiveWins)
	}
	b.WriteString("\n")
	b.WriteString(formatBoard(v.Cards))
	return b.String()
}

// formatBoard renders cards in rows of up to 6 as "index:value"
func formatBoard(cards []service.CardView) string {
	const perRow = 6
	var b strings.Builder
	for i, card := range cards {
		label := "??"
		switch {
		case card.Matched:
			label = card.Value + "✓"
		case card.Flipped:
			label = card.Value
		}
		fmt.Fprintf(&b, "%2d:%-4s", card.Index, label)
		if (i+1)%perRow == 0 || i == len(cards)-1 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}

func formatFlipResult(r *service.FlipResult) string {
	var b strings.Builder
	switch {
	case r.ErrorCode != "":
		fmt.Fprintf(&b, "%s [%s]\n", r.Message, r.ErrorCode)
	case r.IsMatch != nil && *r.IsMatch:
		fmt.Fprintf(&b, "MATCH: %s\n", r.Message)
	default:
		fmt.Fprintf(&b, "NO MATCH: %s\n", r.Message)
	}
	for _, card := range r.Revealed {
		fmt.Fprintf(&b, "  card %d = %s\n", card.Index, card.Value)
	}
	if r.Session != nil {
		if r.Session.Status != engine.StatusPlaying {
			b.WriteString("\nGAME OVER\n")
		}
		b.WriteString("\n")
		b.WriteString(formatSession(r.Session))
	}
	return b.String()
}
