package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/edudesk/edudesk-api/pkg/errors"
)

// TxFunc runs store operations against a single transaction. The exec it
// receives must be used for every read and write that belongs to the unit
// of work.
type TxFunc func(tx sqlx.ExtContext) error

// Runner owns the begin/commit/rollback lifecycle of a database
// transaction. Every exit path that did not commit rolls back, so callers
// can never leave half of a unit of work applied.
type Runner struct {
	db *sqlx.DB
}

// NewRunner constructs a Runner over the connection pool.
func NewRunner(db *sqlx.DB) *Runner {
	return &Runner{db: db}
}

// InTx executes fn inside a transaction. Typed domain errors returned by fn
// propagate unchanged after rollback; any other error, and any begin or
// commit failure, surfaces as TRANSACTION_FAILED with the cause preserved.
func (r *Runner) InTx(ctx context.Context, fn func(tx sqlx.ExtContext) error) error {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransactionFail.Code, appErrors.ErrTransactionFail.Status, "failed to begin transaction")
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		if appErrors.IsTyped(err) {
			return err
		}
		return appErrors.Wrap(err, appErrors.ErrTransactionFail.Code, appErrors.ErrTransactionFail.Status, "transaction aborted")
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrTransactionFail.Code, appErrors.ErrTransactionFail.Status, "failed to commit transaction")
	}
	committed = true
	return nil
}
