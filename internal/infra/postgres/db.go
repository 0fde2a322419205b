// Package postgres owns the PostgreSQL connection, the transaction carried in
// a request context, and the embedded schema migrations.
//
// Repositories never begin transactions themselves. They call Conn(ctx) and
// get either the transaction opened by WithinTx further up the call chain or
// the pool, so several repositories compose into one atomic unit.
package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrRollbackFailed marks a transaction whose rollback itself failed. Any
// state the transaction touched (stock in particular) may be inconsistent.
var ErrRollbackFailed = errors.New("transaction rollback failed")

type txKey struct{}

// DB wraps the sqlx pool.
type DB struct {
	*sqlx.DB
	log logrus.FieldLogger
}

// Open connects and pings the database.
func Open(ctx context.Context, dsn string, log logrus.FieldLogger) (*DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	return &DB{DB: db, log: log}, nil
}

// Conn returns the transaction stored in ctx, or the pool when there is none.
func (db *DB) Conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.DB
}

// WithinTx runs fn inside one transaction. Calls nested inside fn join the
// outer transaction. The transaction commits when fn returns nil and rolls
// back otherwise.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.log.WithError(rbErr).WithField("inventory_inconsistent", true).
				Error("rollback failed after aborted transaction")
			return errors.Wrapf(ErrRollbackFailed, "%v (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
