// Package service orchestrates memory match sessions.
//
// GameService is the single entry point used by every transport. It loads a
// session from the SessionStore, lets the engine apply one transition and
// saves it back with a version check. When another writer saved first, the
// transition is replayed on the fresh copy a bounded number of times before
// ErrSessionConflict reaches the caller.
//
// Terminal transitions are announced to Notifiers only after the store has
// committed them, so a result is delivered at most once per session no matter
// how many requests race to finish it.
//
// Sweeper runs on a gocron scheduler and forces LOSE on sessions whose clock
// ran out while nobody was playing.
package service
