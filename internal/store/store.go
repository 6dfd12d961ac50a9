package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so every store can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Stores bundles every table store over one connection or transaction.
type Stores struct {
	Profiles    *ProfileStore
	Families    *FamilyStore
	Sessions    *SessionStore
	Tasks       *TaskStore
	Templates   *TemplateStore
	Chests      *ChestStore
	Rewards     *RewardStore
	Completions *CompletionStore
}

func New(db DBTX) *Stores {
	return &Stores{
		Profiles:    NewProfileStore(db),
		Families:    NewFamilyStore(db),
		Sessions:    NewSessionStore(db),
		Tasks:       NewTaskStore(db),
		Templates:   NewTemplateStore(db),
		Chests:      NewChestStore(db),
		Rewards:     NewRewardStore(db),
		Completions: NewCompletionStore(db),
	}
}

const (
	txRetryBase  = 25 * time.Millisecond
	txMaxRetries = 4
)

// InTx runs fn inside a single transaction and commits if it returns nil.
// The whole attempt is retried when SQLite reports the database busy, so fn
// must not have side effects outside the transaction.
func InTx(ctx context.Context, db *sql.DB, fn func(*Stores) error) error {
	backoff := retry.WithMaxRetries(txMaxRetries, retry.NewExponential(txRetryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := runTx(ctx, db, fn)
		if isBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func runTx(ctx context.Context, db *sql.DB, fn func(*Stores) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(New(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

type scanner interface{ Scan(...any) error }

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
