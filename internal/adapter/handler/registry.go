package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/kitties/internal/core/domain"
	"github.com/rl1809/kitties/internal/core/service"
)

const MaxDNASize = 256

// KittyRegistry is the set of registry operations exposed over the network.
type KittyRegistry interface {
	CreateKitty(ctx context.Context, origin domain.Origin, dna domain.DNA, price uint32) error
	TransferKitty(ctx context.Context, origin domain.Origin, dna domain.DNA, to domain.AccountID) error
	GetKitty(ctx context.Context, dna domain.DNA) (*domain.Kitty, error)
	KittiesOf(ctx context.Context, owner domain.AccountID) ([]domain.DNA, error)
	KittyCount(ctx context.Context) (uint64, error)
}

var errInvalidArgument = errors.New("invalid argument")

func parseDNA(raw string) (domain.DNA, error) {
	dna, err := domain.ParseDNA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: dna must be hex encoded", errInvalidArgument)
	}
	if len(dna) == 0 {
		return nil, fmt.Errorf("%w: dna is required", errInvalidArgument)
	}
	if len(dna) > MaxDNASize {
		return nil, fmt.Errorf("%w: dna exceeds %d bytes", errInvalidArgument, MaxDNASize)
	}
	return dna, nil
}

type errorStatus struct {
	http int
	grpc codes.Code
}

var errorStatuses = map[service.ErrorCode]errorStatus{
	service.CodeUnauthorized:   {http.StatusUnauthorized, codes.Unauthenticated},
	service.CodePriceTooLow:    {http.StatusBadRequest, codes.InvalidArgument},
	service.CodeAlreadyExisted: {http.StatusConflict, codes.AlreadyExists},
	service.CodeNoneExisted:    {http.StatusNotFound, codes.NotFound},
	service.CodeNotOwner:       {http.StatusForbidden, codes.PermissionDenied},
	service.CodeOwnerAlready:   {http.StatusBadRequest, codes.FailedPrecondition},
	service.CodeOutOfBound:     {http.StatusUnprocessableEntity, codes.ResourceExhausted},
}

// classify maps an operation error to the status pair and the message exposed to clients.
func classify(err error) (errorStatus, string) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		if st, ok := errorStatuses[svcErr.Code]; ok {
			return st, svcErr.Name
		}
	}
	if errors.Is(err, errInvalidArgument) {
		return errorStatus{http.StatusBadRequest, codes.InvalidArgument}, err.Error()
	}
	return errorStatus{http.StatusInternalServerError, codes.Internal}, "internal error"
}

func errInvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidArgument, fmt.Sprintf(format, args...))
}
