package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrTxOpen is returned when an operation needs the session to have no
	// open transaction.
	ErrTxOpen = errors.New("transaction still open")
	// ErrTxDone is returned when a committed or rolled back Tx is used.
	ErrTxDone = errors.New("transaction already finished")
	// ErrNotFound is returned when a looked up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks failures of the store itself: the file cannot be
	// opened, a connection cannot be had or a transaction cannot start or
	// commit.
	ErrUnavailable = errors.New("store unavailable")
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session owns one connection of a store handle. At most one transaction is
// open on a session at a time. A Session must not be used from more than one
// goroutine.
type Session struct {
	conn   *sql.Conn
	handle *Handle
	tx     *Tx
}

// Tx is a write transaction on a session.
type Tx struct {
	tx      *sql.Tx
	session *Session
	writes  int
	done    bool
}

// Begin opens a write transaction.
func (s *Session) Begin(ctx context.Context) (*Tx, error) {
	if s.tx != nil {
		return nil, ErrTxOpen
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", ErrUnavailable, err)
	}
	s.tx = &Tx{tx: tx, session: s}
	return s.tx, nil
}

// WithTx runs fn in a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *Session) WithTx(ctx context.Context, fn func(*Tx) error) (retErr error) {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Pending reports whether the session holds writes that are not yet
// committed.
func (s *Session) Pending() bool {
	return s.tx != nil && s.tx.writes > 0
}

// Flush is the commit barrier between normalized writes and cache builds.
// It fails while a transaction is open and otherwise checkpoints the WAL so
// every committed write is in the main database file.
func (s *Session) Flush(ctx context.Context) error {
	if s.tx != nil {
		return ErrTxOpen
	}
	if _, err := s.conn.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("%w: checkpoint: %w", ErrUnavailable, err)
	}
	return nil
}

// Close rolls back any open transaction and returns the connection to the
// pool.
func (s *Session) Close() error {
	var errs []error
	if s.tx != nil {
		errs = append(errs, s.tx.Rollback())
	}
	errs = append(errs, s.conn.Close())
	return errors.Join(errs...)
}

// Handle returns the store handle the session belongs to.
func (s *Session) Handle() *Handle { return s.handle }

func (s *Session) reader() querier {
	if s.tx != nil {
		return s.tx.tx
	}
	return s.conn
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.finish()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrUnavailable, err)
	}
	return nil
}

// Rollback discards the transaction.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.finish()
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Writes returns the number of write statements executed so far.
func (t *Tx) Writes() int { return t.writes }

func (t *Tx) finish() {
	t.done = true
	if t.session.tx == t {
		t.session.tx = nil
	}
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.done {
		return nil, ErrTxDone
	}
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	t.writes++
	return res, nil
}

func (t *Tx) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return t.tx.PrepareContext(ctx, query)
}
