package port

import (
	"context"
	"errors"
)

var (
	ErrReadOnlyTx = errors.New("write in read-only transaction")
	ErrTxConflict = errors.New("transaction conflict, retries exhausted")
)

// KVStore holds the whole ledger state. Update runs fn inside one atomic,
// serializable transaction: either every write of fn is committed or none is.
// fn may be invoked more than once when the backend retries on conflicts.
type KVStore interface {
	// Update runs fn in a read-write transaction, committing when fn returns nil
	Update(ctx context.Context, fn func(tx KVTx) error) error

	// View runs fn in a read-only transaction; writes fail with ErrReadOnlyTx
	View(ctx context.Context, fn func(tx KVTx) error) error

	Close() error
}

type KVTx interface {
	// Get returns the value for key and whether it exists
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Put(ctx context.Context, key string, value []byte) error

	Delete(ctx context.Context, key string) error
}
