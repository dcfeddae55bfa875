// Package api provides the HTTP REST API of the memory match game.
//
// Endpoints:
//
// Game:
//   - GET /game/config - Active levels and the server clock
//   - POST /game/start - Start a session: {"player_id": "...", "level_id": "..."}
//   - GET /game/{id} - Session view with a freshly computed time_remaining
//   - POST /game/{id}/flip - Flip two cards: {"card_index_1": 0, "card_index_2": 5}
//   - POST /game/{id}/give-up - Forfeit (idempotent, body ignored)
//   - GET /ws?session={id} - WebSocket stream of session updates
//
// Administration:
//   - GET, POST /admin/levels; PUT, DELETE /admin/levels/{id}
//   - GET, PUT /admin/settings - Webhook target and scoring (secret masked)
//   - POST /admin/webhook/test - Synthetic delivery, optional {"webhook_url", "webhook_secret"}
//   - GET /admin/stats
//
// Card values are never sent for face-down cards. A flip that arrives after the
// clock ran out returns 200 with the session in LOSE and "error_code": "time_expired".
//
// Errors are returned as JSON with appropriate HTTP status codes:
//
//	{
//	  "error": "invalid flip: card 3 is already matched",
//	  "code": "invalid_flip"
//	}
//
// Codes: session_not_found and level_not_found (404), invalid_flip (400),
// game_over and session_conflict (409), invalid_configuration (422).
package api
