package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/rl1809/kitties/internal/core/domain"
)

// GRPCClient calls the kitty service, attaching the configured credentials to every call.
type GRPCClient struct {
	conn   grpc.ClientConnInterface
	origin domain.Origin
}

func NewGRPCClient(conn grpc.ClientConnInterface, origin domain.Origin) *GRPCClient {
	return &GRPCClient{conn: conn, origin: origin}
}

func (c *GRPCClient) CreateKitty(ctx context.Context, dna domain.DNA, price uint32) (*domain.Kitty, error) {
	resp := new(CreateKittyResponse)
	req := &CreateKittyRequest{DNA: dna.String(), Price: price}
	if err := c.invoke(ctx, "CreateKitty", req, resp); err != nil {
		return nil, err
	}
	return resp.Kitty, nil
}

func (c *GRPCClient) TransferKitty(ctx context.Context, dna domain.DNA, to domain.AccountID) error {
	req := &TransferKittyRequest{DNA: dna.String(), To: string(to)}
	return c.invoke(ctx, "TransferKitty", req, new(TransferKittyResponse))
}

func (c *GRPCClient) GetKitty(ctx context.Context, dna domain.DNA) (*domain.Kitty, error) {
	resp := new(GetKittyResponse)
	if err := c.invoke(ctx, "GetKitty", &GetKittyRequest{DNA: dna.String()}, resp); err != nil {
		return nil, err
	}
	return resp.Kitty, nil
}

func (c *GRPCClient) ListKitties(ctx context.Context, owner domain.AccountID) ([]domain.DNA, error) {
	resp := new(ListKittiesResponse)
	if err := c.invoke(ctx, "ListKitties", &ListKittiesRequest{Owner: string(owner)}, resp); err != nil {
		return nil, err
	}
	return resp.Kitties, nil
}

func (c *GRPCClient) GetStats(ctx context.Context) (uint64, error) {
	resp := new(GetStatsResponse)
	if err := c.invoke(ctx, "GetStats", &GetStatsRequest{}, resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	var pairs []string
	if c.origin.Account != "" {
		pairs = append(pairs, accountMetadataKey, string(c.origin.Account))
	}
	if c.origin.Token != "" {
		pairs = append(pairs, macaroonMetadataKey, c.origin.Token)
	}
	if len(pairs) > 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
	}
	return c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(JSONCodecName))
}
