package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// runInTx executes fn inside a database transaction and guarantees
// commit-or-rollback on every exit path, including panics. All multi-write
// operations in this package go through it.
func runInTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback() //nolint:errcheck
			panic(p)
		}
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("commit tx: %w", commitErr)
		}
	}()
	return fn(tx)
}
