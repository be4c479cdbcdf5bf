package handler

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/kitties/internal/core/domain"
)

const kittyServiceName = "kitties.v1.KittyService"

type CreateKittyRequest struct {
	DNA   string `json:"dna"`
	Price uint32 `json:"price"`
}

type CreateKittyResponse struct {
	Kitty *domain.Kitty `json:"kitty"`
}

type TransferKittyRequest struct {
	DNA string `json:"dna"`
	To  string `json:"to"`
}

type TransferKittyResponse struct{}

type GetKittyRequest struct {
	DNA string `json:"dna"`
}

type GetKittyResponse struct {
	Kitty *domain.Kitty `json:"kitty"`
}

type ListKittiesRequest struct {
	Owner string `json:"owner"`
}

type ListKittiesResponse struct {
	Owner   domain.AccountID `json:"owner"`
	Kitties []domain.DNA     `json:"kitties"`
}

type GetStatsRequest struct{}

type GetStatsResponse struct {
	Count uint64 `json:"count"`
}

type KittyServiceServer interface {
	CreateKitty(context.Context, *CreateKittyRequest) (*CreateKittyResponse, error)
	TransferKitty(context.Context, *TransferKittyRequest) (*TransferKittyResponse, error)
	GetKitty(context.Context, *GetKittyRequest) (*GetKittyResponse, error)
	ListKitties(context.Context, *ListKittiesRequest) (*ListKittiesResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*GetStatsResponse, error)
}

var kittyServiceDesc = grpc.ServiceDesc{
	ServiceName: kittyServiceName,
	HandlerType: (*KittyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CreateKitty", KittyServiceServer.CreateKitty),
		unaryMethod("TransferKitty", KittyServiceServer.TransferKitty),
		unaryMethod("GetKitty", KittyServiceServer.GetKitty),
		unaryMethod("ListKitties", KittyServiceServer.ListKitties),
		unaryMethod("GetStats", KittyServiceServer.GetStats),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterKittyServiceServer(s grpc.ServiceRegistrar, srv KittyServiceServer) {
	s.RegisterService(&kittyServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + kittyServiceName + "/" + name
}

func unaryMethod[Req, Resp any](
	name string, call func(KittyServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(
			srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor,
		) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(KittyServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(KittyServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
