package handler

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/rl1809/kitties/internal/core/domain"
)

const (
	accountMetadataKey  = "x-account"
	macaroonMetadataKey = "macaroon"
)

type GRPCHandler struct {
	registry KittyRegistry
}

func NewGRPCHandler(registry KittyRegistry) *GRPCHandler {
	return &GRPCHandler{registry: registry}
}

func (h *GRPCHandler) CreateKitty(ctx context.Context, req *CreateKittyRequest) (*CreateKittyResponse, error) {
	dna, err := parseDNA(req.DNA)
	if err != nil {
		return nil, err
	}
	if err := h.registry.CreateKitty(ctx, grpcOrigin(ctx), dna, req.Price); err != nil {
		return nil, err
	}

	kitty, err := h.registry.GetKitty(ctx, dna)
	if err != nil {
		return nil, err
	}
	return &CreateKittyResponse{Kitty: kitty}, nil
}

func (h *GRPCHandler) TransferKitty(ctx context.Context, req *TransferKittyRequest) (*TransferKittyResponse, error) {
	dna, err := parseDNA(req.DNA)
	if err != nil {
		return nil, err
	}
	if req.To == "" {
		return nil, errInvalidArgumentf("recipient is required")
	}
	if err := h.registry.TransferKitty(ctx, grpcOrigin(ctx), dna, domain.AccountID(req.To)); err != nil {
		return nil, err
	}
	return &TransferKittyResponse{}, nil
}

func (h *GRPCHandler) GetKitty(ctx context.Context, req *GetKittyRequest) (*GetKittyResponse, error) {
	dna, err := parseDNA(req.DNA)
	if err != nil {
		return nil, err
	}
	kitty, err := h.registry.GetKitty(ctx, dna)
	if err != nil {
		return nil, err
	}
	return &GetKittyResponse{Kitty: kitty}, nil
}

func (h *GRPCHandler) ListKitties(ctx context.Context, req *ListKittiesRequest) (*ListKittiesResponse, error) {
	owner := domain.AccountID(req.Owner)
	if owner == "" {
		return nil, errInvalidArgumentf("owner is required")
	}
	kitties, err := h.registry.KittiesOf(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &ListKittiesResponse{Owner: owner, Kitties: kitties}, nil
}

func (h *GRPCHandler) GetStats(ctx context.Context, _ *GetStatsRequest) (*GetStatsResponse, error) {
	count, err := h.registry.KittyCount(ctx)
	if err != nil {
		return nil, err
	}
	return &GetStatsResponse{Count: count}, nil
}

func grpcOrigin(ctx context.Context) domain.Origin {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Origin{}
	}
	var origin domain.Origin
	if v := md.Get(accountMetadataKey); len(v) > 0 {
		origin.Account = domain.AccountID(v[0])
	}
	if v := md.Get(macaroonMetadataKey); len(v) > 0 {
		origin.Token = v[0]
	}
	return origin
}
