package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Store implements database.Store using PostgreSQL. It serves the
// system-scoped directory tables, which carry no row-level security.
type Store struct {
	db DB
}

// NewStore creates a new Store backed by db.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// inTx runs fn in one transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, name string, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", name, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", name, mapPgError(err))
	}
	return nil
}
