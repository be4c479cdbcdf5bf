package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rl1809/kitties/internal/port"
)

const (
	postgresMaxRetries        = 10
	serializationFailureState = "40001"
	deadlockDetectedState     = "40P01"
)

// PostgresStore keeps the ledger in a key/value table; every update runs at
// serializable isolation and is retried on serialization failures.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_kv (
			k TEXT PRIMARY KEY,
			v BYTEA NOT NULL
		)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Update(ctx context.Context, fn func(tx port.KVTx) error) error {
	var err error
	for attempt := 0; attempt < postgresMaxRetries; attempt++ {
		err = p.run(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn, false)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return fmt.Errorf("%w: %v", port.ErrTxConflict, err)
}

func (p *PostgresStore) View(ctx context.Context, fn func(tx port.KVTx) error) error {
	return p.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn, true)
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) run(
	ctx context.Context, opts pgx.TxOptions, fn func(tx port.KVTx) error, readOnly bool,
) error {
	tx, err := p.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx, readOnly: readOnly}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailureState || pgErr.Code == deadlockDetectedState
}

type pgTx struct {
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRow(ctx, `SELECT v FROM ledger_kv WHERE k = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", key, err)
	}
	return value, true, nil
}

func (t *pgTx) Put(ctx context.Context, key string, value []byte) error {
	if t.readOnly {
		return port.ErrReadOnlyTx
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_kv (k, v) VALUES ($1, $2)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`, key, value)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, key string) error {
	if t.readOnly {
		return port.ErrReadOnlyTx
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM ledger_kv WHERE k = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
