package domain

import "context"

// Database defines lifecycle operations for the backing store.
// Each implementation (SQLite, Postgres, MongoDB) owns its own schema
// setup, so the Post Store can be swapped without touching services.
type Database interface {
	Migrate(ctx context.Context) error
	Posts() PostRepository
	Close() error
}
