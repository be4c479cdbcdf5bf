package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/rl1809/kitties/internal/core/domain"
	"github.com/rl1809/kitties/internal/core/ledger"
	"github.com/rl1809/kitties/internal/port"
)

type RegistryService struct {
	store    port.KVStore
	auth     port.Authenticator
	clock    port.Clock
	notifier port.Notifier
	capacity int

	// writes are applied by a single writer at a time
	writeMu sync.Mutex
}

func NewRegistryService(
	store port.KVStore, auth port.Authenticator, clock port.Clock,
	notifier port.Notifier, capacity int,
) *RegistryService {
	if capacity <= 0 {
		capacity = ledger.DefaultCapacity
	}
	return &RegistryService{
		store:    store,
		auth:     auth,
		clock:    clock,
		notifier: notifier,
		capacity: capacity,
	}
}

func (s *RegistryService) CreateKitty(
	ctx context.Context, origin domain.Origin, dna domain.DNA, price uint32,
) error {
	caller, err := s.authenticate(ctx, origin)
	if err != nil {
		return err
	}
	if price == 0 {
		return ErrPriceTooLow
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var kitty domain.Kitty
	err = s.store.Update(ctx, func(tx port.KVTx) error {
		assets := ledger.NewAssetLedger(tx)
		owners := ledger.NewOwnershipIndex(tx, s.capacity)

		exists, err := assets.Exists(ctx, dna)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyExisted
		}

		kitty = domain.Kitty{
			DNA:       dna,
			Price:     price,
			Gender:    domain.DeriveGender(dna),
			Owner:     caller,
			CreatedAt: s.clock.Now().Unix(),
		}
		if err := assets.Insert(ctx, kitty); err != nil {
			return err
		}
		if err := owners.Append(ctx, caller, dna); err != nil {
			if errors.Is(err, ledger.ErrCapacityExceeded) {
				return fmt.Errorf("%w: %w", ErrOutOfBound, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"dna":   dna.String(),
		"owner": caller,
		"price": price,
	}).Debug("kitty created")

	s.notifier.Notify(ctx, domain.NewKittyCreatedEvent(dna, caller, kitty.CreatedAt))
	return nil
}

// TransferKitty moves a kitty from the caller to another account. The record's
// owner field is re-stamped in the same transaction, so it always agrees with
// the ownership index.
func (s *RegistryService) TransferKitty(
	ctx context.Context, origin domain.Origin, dna domain.DNA, to domain.AccountID,
) error {
	caller, err := s.authenticate(ctx, origin)
	if err != nil {
		return err
	}
	if to == caller {
		return ErrOwnerAlready
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err = s.store.Update(ctx, func(tx port.KVTx) error {
		assets := ledger.NewAssetLedger(tx)
		owners := ledger.NewOwnershipIndex(tx, s.capacity)

		exists, err := assets.Exists(ctx, dna)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNoneExisted
		}

		if err := owners.RemoveByValue(ctx, caller, dna); err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return ErrNotOwner
			}
			return err
		}
		if err := owners.Append(ctx, to, dna); err != nil {
			if errors.Is(err, ledger.ErrCapacityExceeded) {
				return fmt.Errorf("%w: %w", ErrOutOfBound, err)
			}
			return err
		}
		return assets.SetOwner(ctx, dna, to)
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"dna":  dna.String(),
		"from": caller,
		"to":   to,
	}).Debug("kitty transferred")

	s.notifier.Notify(ctx, domain.NewKittyTransferredEvent(dna, caller, to, s.clock.Now().Unix()))
	return nil
}

func (s *RegistryService) GetKitty(ctx context.Context, dna domain.DNA) (*domain.Kitty, error) {
	var kitty *domain.Kitty
	err := s.store.View(ctx, func(tx port.KVTx) error {
		var err error
		kitty, err = ledger.NewAssetLedger(tx).Get(ctx, dna)
		return err
	})
	if err != nil {
		return nil, err
	}
	if kitty == nil {
		return nil, ErrNoneExisted
	}
	return kitty, nil
}

func (s *RegistryService) KittiesOf(ctx context.Context, owner domain.AccountID) ([]domain.DNA, error) {
	var list []domain.DNA
	err := s.store.View(ctx, func(tx port.KVTx) error {
		var err error
		list, err = ledger.NewOwnershipIndex(tx, s.capacity).ListOf(ctx, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (s *RegistryService) KittyCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := s.store.View(ctx, func(tx port.KVTx) error {
		var err error
		count, err = ledger.NewAssetLedger(tx).Count(ctx)
		return err
	})
	return count, err
}

func (s *RegistryService) authenticate(ctx context.Context, origin domain.Origin) (domain.AccountID, error) {
	caller, err := s.auth.Authenticate(ctx, origin)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if caller == "" {
		return "", ErrUnauthorized
	}
	return caller, nil
}
