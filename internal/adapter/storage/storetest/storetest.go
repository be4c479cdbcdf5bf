// Package storetest holds the behaviour every port.KVStore implementation must show.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rl1809/kitties/internal/port"
)

var errAbort = errors.New("abort")

// RunKVStoreTests exercises store against the port.KVStore contract. Keys are
// namespaced with prefix so the suite can share a database with other data.
func RunKVStoreTests(t *testing.T, store port.KVStore, prefix string) {
	ctx := context.Background()
	key := func(k string) string { return prefix + k }

	t.Run("missing key", func(t *testing.T) {
		err := store.View(ctx, func(tx port.KVTx) error {
			v, ok, err := tx.Get(ctx, key("missing"))
			require.NoError(t, err)
			require.False(t, ok)
			require.Nil(t, v)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("commit is visible", func(t *testing.T) {
		err := store.Update(ctx, func(tx port.KVTx) error {
			if err := tx.Put(ctx, key("a"), []byte("1")); err != nil {
				return err
			}
			v, ok, err := tx.Get(ctx, key("a"))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("1"), v)
			return nil
		})
		require.NoError(t, err)

		requireValue(t, store, key("a"), []byte("1"))
	})

	t.Run("overwrite and delete", func(t *testing.T) {
		err := store.Update(ctx, func(tx port.KVTx) error {
			return tx.Put(ctx, key("b"), []byte("first"))
		})
		require.NoError(t, err)

		err = store.Update(ctx, func(tx port.KVTx) error {
			return tx.Put(ctx, key("b"), []byte("second"))
		})
		require.NoError(t, err)
		requireValue(t, store, key("b"), []byte("second"))

		err = store.Update(ctx, func(tx port.KVTx) error {
			if err := tx.Delete(ctx, key("b")); err != nil {
				return err
			}
			_, ok, err := tx.Get(ctx, key("b"))
			require.NoError(t, err)
			require.False(t, ok)
			return nil
		})
		require.NoError(t, err)
		requireMissing(t, store, key("b"))
	})

	t.Run("failed update rolls back", func(t *testing.T) {
		err := store.Update(ctx, func(tx port.KVTx) error {
			return tx.Put(ctx, key("c"), []byte("keep"))
		})
		require.NoError(t, err)

		err = store.Update(ctx, func(tx port.KVTx) error {
			if err := tx.Put(ctx, key("c"), []byte("lost")); err != nil {
				return err
			}
			if err := tx.Put(ctx, key("d"), []byte("lost")); err != nil {
				return err
			}
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		requireValue(t, store, key("c"), []byte("keep"))
		requireMissing(t, store, key("d"))
	})

	t.Run("view rejects writes", func(t *testing.T) {
		err := store.View(ctx, func(tx port.KVTx) error {
			return tx.Put(ctx, key("e"), []byte("x"))
		})
		require.Error(t, err)
		requireMissing(t, store, key("e"))
	})

	t.Run("concurrent increments are serialized", func(t *testing.T) {
		const workers = 8
		const perWorker = 5

		var wg sync.WaitGroup
		errs := make(chan error, workers*perWorker)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range perWorker {
					errs <- store.Update(ctx, func(tx port.KVTx) error {
						return increment(ctx, tx, key("counter"))
					})
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
		requireValue(t, store, key("counter"), []byte(strconv.Itoa(workers*perWorker)))
	})
}

func increment(ctx context.Context, tx port.KVTx, key string) error {
	raw, ok, err := tx.Get(ctx, key)
	if err != nil {
		return err
	}
	n := 0
	if ok {
		if n, err = strconv.Atoi(string(raw)); err != nil {
			return err
		}
	}
	return tx.Put(ctx, key, []byte(strconv.Itoa(n+1)))
}

func requireValue(t *testing.T, store port.KVStore, key string, want []byte) {
	t.Helper()
	err := store.View(context.Background(), func(tx port.KVTx) error {
		v, ok, err := tx.Get(context.Background(), key)
		require.NoError(t, err)
		require.True(t, ok, "key %s missing", key)
		require.Equal(t, want, v)
		return nil
	})
	require.NoError(t, err)
}

func requireMissing(t *testing.T, store port.KVStore, key string) {
	t.Helper()
	err := store.View(context.Background(), func(tx port.KVTx) error {
		_, ok, err := tx.Get(context.Background(), key)
		require.NoError(t, err)
		require.False(t, ok, "key %s present", key)
		return nil
	})
	require.NoError(t, err)
}
