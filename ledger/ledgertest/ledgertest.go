// Package ledgertest is a conformance suite every ledger backend must pass.
package ledgertest

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"xdao.co/calm/ledger"
)

// NewStore constructs a fresh, empty Store for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) ledger.Store

func RunConformance(t *testing.T, newStore NewStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("MissingKeyNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.View(ctx, func(txn ledger.Txn) error {
			_, err := txn.Get([]byte("absent"))
			return err
		})
		if !ledger.IsNotFound(err) {
			t.Fatalf("Get absent: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("UpdateCommits", func(t *testing.T) {
		s := newStore(t)
		if err := s.Update(ctx, func(txn ledger.Txn) error {
			return txn.Set([]byte("k"), []byte("v1"))
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		var got []byte
		if err := s.View(ctx, func(txn ledger.Txn) error {
			var err error
			got, err = txn.Get([]byte("k"))
			return err
		}); err != nil {
			t.Fatalf("View: %v", err)
		}
		if !bytes.Equal(got, []byte("v1")) {
			t.Fatalf("got %q want v1", got)
		}
	})

	t.Run("ReadYourWrites", func(t *testing.T) {
		s := newStore(t)
		err := s.Update(ctx, func(txn ledger.Txn) error {
			if err := txn.Set([]byte("k"), []byte("staged")); err != nil {
				return err
			}
			got, err := txn.Get([]byte("k"))
			if err != nil {
				return err
			}
			if !bytes.Equal(got, []byte("staged")) {
				t.Errorf("staged read %q", got)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	})

	t.Run("FailedUpdateDiscardsWrites", func(t *testing.T) {
		s := newStore(t)
		boom := errors.New("boom")
		err := s.Update(ctx, func(txn ledger.Txn) error {
			if err := txn.Set([]byte("a"), []byte("1")); err != nil {
				return err
			}
			if err := txn.Set([]byte("b"), []byte("2")); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Update: got %v want boom", err)
		}
		for _, k := range []string{"a", "b"} {
			err := s.View(ctx, func(txn ledger.Txn) error {
				_, err := txn.Get([]byte(k))
				return err
			})
			if !ledger.IsNotFound(err) {
				t.Fatalf("key %q visible after failed update (err=%v)", k, err)
			}
		}
	})

	t.Run("ViewIsReadOnly", func(t *testing.T) {
		s := newStore(t)
		err := s.View(ctx, func(txn ledger.Txn) error {
			return txn.Set([]byte("k"), []byte("v"))
		})
		if !errors.Is(err, ledger.ErrReadOnly) {
			t.Fatalf("Set in View: got %v want ErrReadOnly", err)
		}
	})

	t.Run("ReturnedValueIsCopy", func(t *testing.T) {
		s := newStore(t)
		if err := s.Update(ctx, func(txn ledger.Txn) error {
			return txn.Set([]byte("k"), []byte("abc"))
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		_ = s.View(ctx, func(txn ledger.Txn) error {
			b, err := txn.Get([]byte("k"))
			if err == nil {
				b[0] = 'x'
			}
			return err
		})
		_ = s.View(ctx, func(txn ledger.Txn) error {
			b, err := txn.Get([]byte("k"))
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(b) != "abc" {
				t.Fatalf("stored value mutated through returned slice: %q", b)
			}
			return nil
		})
	})

	t.Run("ConcurrentIncrementsAreSerializable", func(t *testing.T) {
		s := newStore(t)
		key := []byte("counter")
		const workers = 4
		const perWorker = 10

		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWorker; i++ {
					err := ledger.Retry(ctx, s, func(txn ledger.Txn) error {
						v, err := ledger.GetUint(txn, key)
						if err != nil {
							return err
						}
						return ledger.PutUint(txn, key, v.Add(v, big.NewInt(1)))
					})
					if err != nil {
						errs <- err
						return
					}
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("increment: %v", err)
		}

		var got *big.Int
		if err := s.View(ctx, func(txn ledger.Txn) error {
			var err error
			got, err = ledger.GetUint(txn, key)
			return err
		}); err != nil {
			t.Fatalf("View: %v", err)
		}
		if got.Int64() != workers*perWorker {
			t.Fatalf("counter=%s want %d (lost update)", got, workers*perWorker)
		}
	})
}
