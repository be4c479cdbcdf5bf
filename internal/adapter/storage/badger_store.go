package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rl1809/kitties/internal/port"
)

const (
	badgerMaxRetries = 5
	badgerRetryDelay = 100 * time.Millisecond
)

// BadgerStore persists the ledger in an embedded badger database. An empty
// dir opens an in-memory database.
type BadgerStore struct {
	db *badger.DB
	// the directory is owned by a single process, so in-process writers are queued
	writeMu sync.Mutex
}

func NewBadgerStore(dir string, logger badger.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = logger
	if len(dir) <= 0 {
		opts.InMemory = true
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Update(ctx context.Context, fn func(tx port.KVTx) error) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	update := func() error {
		return b.db.Update(func(txn *badger.Txn) error {
			if err := fn(&badgerTx{txn: txn}); err != nil {
				return err
			}
			return ctx.Err()
		})
	}

	err := update()
	attempts := 1
	for errors.Is(err, badger.ErrConflict) && attempts <= badgerMaxRetries {
		time.Sleep(badgerRetryDelay)
		err = update()
		attempts++
	}
	return err
}

func (b *BadgerStore) View(_ context.Context, fn func(tx port.KVTx) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn, readOnly: true})
	})
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

type badgerTx struct {
	txn      *badger.Txn
	readOnly bool
}

func (t *badgerTx) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, err := t.txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *badgerTx) Put(_ context.Context, key string, value []byte) error {
	if t.readOnly {
		return port.ErrReadOnlyTx
	}
	return t.txn.Set([]byte(key), copyBytes(value))
}

func (t *badgerTx) Delete(_ context.Context, key string) error {
	if t.readOnly {
		return port.ErrReadOnlyTx
	}
	return t.txn.Delete([]byte(key))
}
