// Package badgerdb is a ledger backend on an embedded Badger database.
//
// Badger transactions are serializable snapshot transactions: a commit that
// raced with another write to a key it read fails with badger.ErrConflict,
// reported here as ledger.ErrConflict.
package badgerdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"xdao.co/calm/ledger"
)

type Store struct {
	db *badger.DB
}

// Open opens (or creates) a database in dir. An empty dir opens an
// in-memory database.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerdb: open %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Update(ctx context.Context, fn func(ledger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr(s.db.Update(func(btx *badger.Txn) error {
		return fn(&txn{btx: btx})
	}))
}

func (s *Store) View(ctx context.Context, fn func(ledger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapErr(s.db.View(func(btx *badger.Txn) error {
		return fn(&txn{btx: btx})
	}))
}

func (s *Store) Close() error { return s.db.Close() }

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	case errors.Is(err, badger.ErrDBClosed):
		return ledger.ErrClosed
	default:
		return err
	}
}

type txn struct {
	btx *badger.Txn
}

func (t *txn) Get(key []byte) ([]byte, error) {
	item, err := t.btx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *txn) Set(key, value []byte) error {
	err := t.btx.Set(key, value)
	if errors.Is(err, badger.ErrReadOnlyTxn) {
		return ledger.ErrReadOnly
	}
	return err
}
