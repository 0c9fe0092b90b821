// Package dbx holds the small database plumbing shared by the client
// and server repositories: the DBTX query interface and a transaction
// wrapper.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql the repositories query through.
// Both *sql.DB and *sql.Tx satisfy it, so the same query code runs
// standalone or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction, committing when fn returns nil
// and rolling back otherwise. A panic in fn rolls back and is
// rethrown. Multi-statement writes that must land together, like a
// version allocation followed by the row write it stamps, go through
// here:
//
//	err := dbx.WithTx(ctx, db, func(ctx context.Context, tx dbx.DBTX) error {
//	    version, err := nextVersion(ctx, tx, userID)
//	    if err != nil {
//	        return err
//	    }
//	    return writeRow(ctx, tx, version)
//	})
func WithTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
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

	err = fn(ctx, tx)
	return err
}
