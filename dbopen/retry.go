package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// busyBackoff is the wait before each retry of a statement or transaction
// that hit SQLITE_BUSY. Its length bounds the number of attempts.
var busyBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}

// IsBusy reports whether err indicates an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx runs fn inside a transaction and commits it. Any error from fn
// rolls the transaction back and is returned unchanged. The whole
// transaction is replayed when SQLite reports BUSY, so fn must not have
// side effects that cannot be repeated.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withBusyRetry(ctx, func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec runs a single statement with the same BUSY retry as RunTx.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := withBusyRetry(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func withBusyRetry(ctx context.Context, attempt func() error) error {
	for _, wait := range busyBackoff {
		err := attempt()
		if !IsBusy(err) {
			return err
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("dbopen: retry after busy: %w", ctx.Err())
		case <-t.C:
		}
	}
	return attempt()
}
