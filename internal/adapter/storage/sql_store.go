package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rl1809/kitties/internal/port"
)

const sqlMaxRetries = 10

type sqlDialect struct {
	name        string
	createTable string
	selectValue string
	upsert      string
	deleteKey   string
	txOptions   *sql.TxOptions
	retryable   func(err error) bool
}

var mysqlDialect = sqlDialect{
	name: "mysql",
	createTable: `
		CREATE TABLE IF NOT EXISTS ledger_kv (
			k VARCHAR(1024) CHARACTER SET ascii NOT NULL PRIMARY KEY,
			v LONGBLOB NOT NULL
		)`,
	selectValue: `SELECT v FROM ledger_kv WHERE k = ? FOR UPDATE`,
	upsert:      `INSERT INTO ledger_kv (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)`,
	deleteKey:   `DELETE FROM ledger_kv WHERE k = ?`,
	txOptions:   &sql.TxOptions{Isolation: sql.LevelSerializable},
	retryable: func(err error) bool {
		var mysqlErr *mysql.MySQLError
		if !errors.As(err, &mysqlErr) {
			return false
		}
		// deadlock found, lock wait timeout
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	},
}

var sqliteDialect = sqlDialect{
	name: "sqlite",
	createTable: `
		CREATE TABLE IF NOT EXISTS ledger_kv (
			k TEXT NOT NULL PRIMARY KEY,
			v BLOB NOT NULL
		)`,
	selectValue: `SELECT v FROM ledger_kv WHERE k = ?`,
	upsert:      `INSERT INTO ledger_kv (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v`,
	deleteKey:   `DELETE FROM ledger_kv WHERE k = ?`,
	retryable: func(err error) bool {
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	},
}

// SQLStore keeps the ledger in a single key/value table of a MySQL or SQLite database.
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

func NewMySQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	return newSQLStore(ctx, db, mysqlDialect)
}

// NewSQLiteStore opens the database at path. An empty path or ":memory:"
// opens a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	inMemory := path == "" || path == ":memory:"
	if inMemory {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if inMemory {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	store, err := newSQLStore(ctx, db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect sqlDialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping %s: %w", dialect.name, err)
	}
	if _, err := db.ExecContext(ctx, dialect.createTable); err != nil {
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

func (s *SQLStore) Update(ctx context.Context, fn func(tx port.KVTx) error) error {
	var err error
	for attempt := 0; attempt < sqlMaxRetries; attempt++ {
		err = s.update(ctx, fn)
		if err == nil || !s.dialect.retryable(err) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return fmt.Errorf("%w: %v", port.ErrTxConflict, err)
}

func (s *SQLStore) update(ctx context.Context, fn func(tx port.KVTx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.txOptions)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, dialect: &s.dialect}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) View(ctx context.Context, fn func(tx port.KVTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: s.dialect.name != "sqlite"})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{tx: tx, dialect: &s.dialect, readOnly: true}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx       *sql.Tx
	dialect  *sqlDialect
	readOnly bool
}

func (t *sqlTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query := t.dialect.selectValue
	if t.readOnly && t.dialect.name == "mysql" {
		query = `SELECT v FROM ledger_kv WHERE k = ?`
	}

	var value []byte
	err := t.tx.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query %s: %w", key, err)
	}
	return value, true, nil
}

func (t *sqlTx) Put(ctx context.Context, key string, value []byte) error {
	if t.readOnly {
		return port.ErrReadOnlyTx
	}
	if _, err := t.tx.ExecContext(ctx, t.dialect.upsert, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (t *sqlTx) Delete(ctx context.Context, key string) error {
	if t.readOnly {
		return port.ErrReadOnlyTx
	}
	if _, err := t.tx.ExecContext(ctx, t.dialect.deleteKey, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
