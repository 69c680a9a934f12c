// Package redisdb is a ledger backend on Redis, for deployments where several
// claim services share one ledger.
//
// Transactions are optimistic: every key read is WATCHed before it is read
// and writes are queued in MULTI/EXEC. An EXEC aborted by a concurrent write
// is reported as ledger.ErrConflict.
package redisdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"xdao.co/calm/ledger"
)

// DefaultPrefix namespaces ledger keys in a shared Redis.
const DefaultPrefix = "calm:"

type Store struct {
	client *redis.Client
	prefix string
}

// New wraps an existing client. The caller keeps ownership of the client
// unless it calls Close on the Store.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Open connects to a redis:// URL and checks the connection.
func Open(ctx context.Context, url, prefix string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisdb: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisdb: ping: %w", err)
	}
	return New(client, prefix), nil
}

func (s *Store) Update(ctx context.Context, fn func(ledger.Txn) error) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		t := &txn{ctx: ctx, prefix: s.prefix, tx: tx, staged: make(map[string][]byte)}
		if err := fn(t); err != nil {
			return err
		}
		if len(t.staged) == 0 {
			return nil
		}
		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for k, v := range t.staged {
				p.Set(ctx, k, v, 0)
			}
			return nil
		})
		return err
	})
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	}
	if errors.Is(err, redis.ErrClosed) {
		return ledger.ErrClosed
	}
	return err
}

func (s *Store) View(ctx context.Context, fn func(ledger.Txn) error) error {
	err := fn(&txn{ctx: ctx, prefix: s.prefix, client: s.client})
	if errors.Is(err, redis.ErrClosed) {
		return ledger.ErrClosed
	}
	return err
}

func (s *Store) Close() error { return s.client.Close() }

type txn struct {
	ctx    context.Context
	prefix string

	// Exactly one of tx (update) or client (view) is set.
	tx     *redis.Tx
	client *redis.Client
	staged map[string][]byte
}

func (t *txn) Get(key []byte) ([]byte, error) {
	k := t.prefix + string(key)
	if v, ok := t.staged[k]; ok {
		return append([]byte(nil), v...), nil
	}
	var cmd *redis.StringCmd
	if t.tx != nil {
		if err := t.tx.Watch(t.ctx, k).Err(); err != nil {
			return nil, err
		}
		cmd = t.tx.Get(t.ctx, k)
	} else {
		cmd = t.client.Get(t.ctx, k)
	}
	b, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrNotFound
	}
	return b, err
}

func (t *txn) Set(key, value []byte) error {
	if t.tx == nil {
		return ledger.ErrReadOnly
	}
	t.staged[t.prefix+string(key)] = append([]byte(nil), value...)
	return nil
}
