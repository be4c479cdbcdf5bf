package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rl1809/kitties/internal/core/domain"
	"github.com/rl1809/kitties/internal/port"
)

// AssetLedger maps kitty identities to their records and keeps the global
// quantity counter. It must be used within a single store transaction.
type AssetLedger struct {
	tx port.KVTx
}

func NewAssetLedger(tx port.KVTx) *AssetLedger {
	return &AssetLedger{tx: tx}
}

func (l *AssetLedger) Exists(ctx context.Context, dna domain.DNA) (bool, error) {
	_, ok, err := l.tx.Get(ctx, kittyKey(dna))
	if err != nil {
		return false, fmt.Errorf("lookup kitty %s: %w", dna, err)
	}
	return ok, nil
}

// Get returns nil when no record exists for dna.
func (l *AssetLedger) Get(ctx context.Context, dna domain.DNA) (*domain.Kitty, error) {
	raw, ok, err := l.tx.Get(ctx, kittyKey(dna))
	if err != nil {
		return nil, fmt.Errorf("get kitty %s: %w", dna, err)
	}
	if !ok {
		return nil, nil
	}

	var kitty domain.Kitty
	if err := json.Unmarshal(raw, &kitty); err != nil {
		return nil, fmt.Errorf("decode kitty %s: %w", dna, err)
	}
	return &kitty, nil
}

// Insert stores the record and increments the counter. It does not guard
// against overwrites: callers check Exists in the same transaction.
func (l *AssetLedger) Insert(ctx context.Context, kitty domain.Kitty) error {
	if err := l.put(ctx, kitty); err != nil {
		return err
	}

	count, err := l.Count(ctx)
	if err != nil {
		return err
	}
	value := strconv.FormatUint(count+1, 10)
	if err := l.tx.Put(ctx, countKey, []byte(value)); err != nil {
		return fmt.Errorf("update kitty count: %w", err)
	}
	return nil
}

func (l *AssetLedger) SetOwner(ctx context.Context, dna domain.DNA, owner domain.AccountID) error {
	kitty, err := l.Get(ctx, dna)
	if err != nil {
		return err
	}
	if kitty == nil {
		return fmt.Errorf("set owner of kitty %s: %w", dna, ErrNotFound)
	}
	kitty.Owner = owner
	return l.put(ctx, *kitty)
}

func (l *AssetLedger) Count(ctx context.Context) (uint64, error) {
	raw, ok, err := l.tx.Get(ctx, countKey)
	if err != nil {
		return 0, fmt.Errorf("get kitty count: %w", err)
	}
	if !ok {
		return 0, nil
	}
	count, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode kitty count: %w", err)
	}
	return count, nil
}

func (l *AssetLedger) put(ctx context.Context, kitty domain.Kitty) error {
	raw, err := json.Marshal(kitty)
	if err != nil {
		return fmt.Errorf("encode kitty %s: %w", kitty.DNA, err)
	}
	if err := l.tx.Put(ctx, kittyKey(kitty.DNA), raw); err != nil {
		return fmt.Errorf("put kitty %s: %w", kitty.DNA, err)
	}
	return nil
}
