package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rl1809/kitties/internal/core/domain"
	"github.com/rl1809/kitties/internal/port"
)

var (
	ErrCapacityExceeded = errors.New("owner list is full")
	ErrNotFound         = errors.New("kitty not found")
)

// OwnershipIndex keeps, per owner, the bounded list of held kitties.
// List order is an implementation detail: removal swaps the last entry into
// the freed slot.
type OwnershipIndex struct {
	tx       port.KVTx
	capacity int
}

func NewOwnershipIndex(tx port.KVTx, capacity int) *OwnershipIndex {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &OwnershipIndex{tx: tx, capacity: capacity}
}

func (i *OwnershipIndex) Capacity() int {
	return i.capacity
}

// ListOf returns an empty list for unknown owners.
func (i *OwnershipIndex) ListOf(ctx context.Context, owner domain.AccountID) ([]domain.DNA, error) {
	raw, ok, err := i.tx.Get(ctx, ownerKey(owner))
	if err != nil {
		return nil, fmt.Errorf("get kitties of %s: %w", owner, err)
	}
	if !ok {
		return []domain.DNA{}, nil
	}

	list := make([]domain.DNA, 0, i.capacity)
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode kitties of %s: %w", owner, err)
	}
	return list, nil
}

func (i *OwnershipIndex) Append(ctx context.Context, owner domain.AccountID, dna domain.DNA) error {
	list, err := i.ListOf(ctx, owner)
	if err != nil {
		return err
	}
	if len(list) >= i.capacity {
		return ErrCapacityExceeded
	}
	return i.store(ctx, owner, append(list, dna))
}

func (i *OwnershipIndex) RemoveByValue(ctx context.Context, owner domain.AccountID, dna domain.DNA) error {
	list, err := i.ListOf(ctx, owner)
	if err != nil {
		return err
	}

	idx := -1
	for j, held := range list {
		if bytes.Equal(held, dna) {
			idx = j
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	last := len(list) - 1
	list[idx] = list[last]
	return i.store(ctx, owner, list[:last])
}

func (i *OwnershipIndex) store(ctx context.Context, owner domain.AccountID, list []domain.DNA) error {
	key := ownerKey(owner)
	if len(list) == 0 {
		if err := i.tx.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear kitties of %s: %w", owner, err)
		}
		return nil
	}

	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode kitties of %s: %w", owner, err)
	}
	if err := i.tx.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("put kitties of %s: %w", owner, err)
	}
	return nil
}
