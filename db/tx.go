package db

import (
	"context"
	"database/sql"
)

// WithTx begins a transaction, runs fn and commits on success. Any error or panic rolls
// the transaction back; panics are re-raised.
func WithTx(ctx context.Context, database *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) (err error) {
	tx, err := database.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}
