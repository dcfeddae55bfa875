// Package engine provides the authoritative rules of the memory match game.
//
// The engine package implements:
//   - Deck generation with an unbiased Fisher-Yates shuffle
//   - The timer authority (remaining time derived from creation time, never stored)
//   - Flip resolution, give-up and expiry transitions
//   - Scoring, streak multipliers and difficulty flip duration
//   - Level and settings validation
//
// Core Types:
//
// Session is the complete state of one game and is owned by a store; the
// engine only mutates copies handed to it. GameEngine carries the clock and
// the deck randomness so tests can drive both deterministically.
//
// Usage:
//
//	eng := engine.NewEngine(engine.WithClock(clockwork.NewFakeClock()))
//	sess, err := eng.NewSession(id, "player@example.com", level, engine.DefaultSettings(), 0)
//	if err != nil {
//		return err
//	}
//
//	out, err := eng.Flip(sess, 0, 1)
//	if errors.Is(err, engine.ErrTimeExpired) {
//		// sess is now LOSE and must still be saved
//	}
//
// Rules:
//
// A session is PLAYING until every card is matched (WIN), the clock runs out
// or the player gives up (LOSE). Status never leaves a terminal value and the
// points change is settled exactly once, at the terminal transition.
package engine
