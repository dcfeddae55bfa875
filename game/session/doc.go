// Package session provides the session stores for the memory match game.
//
// The session package implements:
//   - Manager: an in-memory store with optional write-through file persistence
//   - GormStore: a SQL store for PostgreSQL or SQLite built on gorm
//   - Player records holding the consecutive-win streak
//
// Concurrency:
//
// Every session carries a version. Update only succeeds when the caller's
// version equals the stored one, otherwise it returns engine.ErrSessionConflict
// and the caller reloads and retries. The first write that moves a session
// from PLAYING to WIN or LOSE also updates the player's streak in the same
// critical section (Manager) or transaction (GormStore), so two racing
// finishes can never both count.
//
// Usage:
//
//	store := session.NewManager()
//	if err := store.Create(ctx, sess); err != nil {
//		return err
//	}
//
//	db, err := session.OpenDatabase(os.Getenv("DATABASE_URL"))
//	if err != nil {
//		return err
//	}
//	sqlStore, err := session.NewGormStore(db)
//
// Persistence:
//
// FilePersistence writes one JSON document per session plus a players file.
// Finished sessions can be archived out of memory and are lazily reloaded
// from disk when requested again.
package session
