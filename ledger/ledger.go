// Package ledger is the transactional key/value state behind claims.
//
// A Store runs a function inside one transaction: either every Set made by
// the function becomes visible, or none does. Backends that commit
// optimistically report a lost race as ErrConflict; Retry re-runs the
// function against fresh state.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("ledger: not found")
	ErrConflict = errors.New("ledger: transaction conflict")
	ErrReadOnly = errors.New("ledger: read-only transaction")
	ErrClosed   = errors.New("ledger: store closed")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Txn is the view of the ledger inside one transaction.
//
// Contract:
// - Get MUST return ErrNotFound for absent keys.
// - Get MUST observe Sets made earlier in the same transaction.
// - Returned slices are owned by the caller.
type Txn interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// Store is a transactional ledger backend.
//
// Update commits the writes of fn only if fn returns nil. View runs fn in a
// transaction whose Set returns ErrReadOnly.
type Store interface {
	Update(ctx context.Context, fn func(Txn) error) error
	View(ctx context.Context, fn func(Txn) error) error
	Close() error
}

// MaxAttempts bounds how many times Retry runs a conflicting transaction.
const MaxAttempts = 32

const retryBackoff = 250 * time.Microsecond

// Retry runs fn in an Update transaction, re-running it while the store
// reports ErrConflict. fn must be free of side effects outside the Txn.
func Retry(ctx context.Context, s Store, fn func(Txn) error) error {
	var err error
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(time.Duration(attempt) * retryBackoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		err = s.Update(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("ledger: gave up after %d attempts: %w", MaxAttempts, err)
}
