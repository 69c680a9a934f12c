// Package memory is an in-process ledger backend.
//
// Update transactions are serialized with a mutex, so they never conflict.
// State is lost when the process exits.
package memory

import (
	"bytes"
	"context"
	"sync"

	"xdao.co/calm/ledger"
)

type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Update(ctx context.Context, fn func(ledger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ledger.ErrClosed
	}
	t := &txn{base: s.data, staged: make(map[string][]byte)}
	if err := fn(t); err != nil {
		return err
	}
	for k, v := range t.staged {
		s.data[k] = v
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ledger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ledger.ErrClosed
	}
	return fn(&txn{base: s.data})
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type txn struct {
	base   map[string][]byte
	staged map[string][]byte // nil for read-only
}

func (t *txn) Get(key []byte) ([]byte, error) {
	if v, ok := t.staged[string(key)]; ok {
		return bytes.Clone(v), nil
	}
	v, ok := t.base[string(key)]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (t *txn) Set(key, value []byte) error {
	if t.staged == nil {
		return ledger.ErrReadOnly
	}
	t.staged[string(key)] = bytes.Clone(value)
	return nil
}
