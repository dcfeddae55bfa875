// Package websocket pushes live session updates to browsers.
//
// Clients connect to /ws?session=<id> (session_id is accepted too). After every accepted flip or give-up
// the API broadcasts a state_update message carrying the SessionView, and when
// a session reaches WIN or LOSE a game_finished message carries the result.
// Incoming frames are ignored; the socket is read-only from the client side.
//
// One Hub goroutine owns registration and fan-out. A client whose send buffer
// is full is disconnected rather than allowed to block the others.
package websocket
