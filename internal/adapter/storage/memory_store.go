package storage

import (
	"context"
	"sync"

	"github.com/rl1809/kitties/internal/port"
)

// MemoryStore keeps the ledger in process memory. Update holds an exclusive
// lock for the whole transaction and applies staged writes only on success.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Update(ctx context.Context, fn func(tx port.KVTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := newStagedTx(m.get, false)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for key, w := range tx.writes {
		if w.deleted {
			delete(m.data, key)
			continue
		}
		m.data[key] = w.value
	}
	return nil
}

func (m *MemoryStore) View(_ context.Context, fn func(tx port.KVTx) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return fn(newStagedTx(m.get, true))
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

type stagedWrite struct {
	value   []byte
	deleted bool
}

// stagedTx buffers writes on top of a reader so they can be applied at commit.
// It is shared by the backends that stage writes client side.
type stagedTx struct {
	read     func(ctx context.Context, key string) ([]byte, bool, error)
	writes   map[string]stagedWrite
	order    []string
	readOnly bool
}

func newStagedTx(read func(ctx context.Context, key string) ([]byte, bool, error), readOnly bool) *stagedTx {
	return &stagedTx{
		read:     read,
		writes:   make(map[string]stagedWrite),
		readOnly: readOnly,
	}
}

func (t *stagedTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if w, ok := t.writes[key]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return copyBytes(w.value), true, nil
	}
	v, ok, err := t.read(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return copyBytes(v), true, nil
}

func (t *stagedTx) Put(_ context.Context, key string, value []byte) error {
	if t.readOnly {
		return port.ErrReadOnlyTx
	}
	t.stage(key, stagedWrite{value: copyBytes(value)})
	return nil
}

func (t *stagedTx) Delete(_ context.Context, key string) error {
	if t.readOnly {
		return port.ErrReadOnlyTx
	}
	t.stage(key, stagedWrite{deleted: true})
	return nil
}

func (t *stagedTx) stage(key string, w stagedWrite) {
	if _, ok := t.writes[key]; !ok {
		t.order = append(t.order, key)
	}
	t.writes[key] = w
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
