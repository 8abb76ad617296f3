package main

import (
	"context"
	"database/sql"
	"fmt"

	txcontext "sandoog/pkg/platform/tx"
)

// postgresTxRunner brackets a function in a database transaction, carried on
// the context so every store call inside joins it. Used by the request
// workflow to commit a status transition and its role effect together.
type postgresTxRunner struct {
	db *sql.DB
}

func newPostgresTxRunner(db *sql.DB) *postgresTxRunner {
	return &postgresTxRunner{db: db}
}

func (r *postgresTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
