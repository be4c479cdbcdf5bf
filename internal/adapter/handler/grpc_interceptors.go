package handler

import (
	"context"
	"errors"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var errSomethingWentWrong = errors.New("something went wrong")

// ServerOptions returns the interceptor chain of the kitty gRPC server.
func ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			unaryLogger,
			unaryErrorConverter,
			unaryPanicRecoveryInterceptor(),
		),
	}
}

func unaryLogger(
	ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (any, error) {
	log.Debugf("gRPC method: %s", info.FullMethod)
	resp, err := handler(ctx, req)
	if err != nil {
		log.WithField("method", info.FullMethod).
			WithField("code", status.Code(err).String()).
			Debug("gRPC call failed")
	}
	return resp, err
}

func unaryErrorConverter(
	ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	if _, ok := status.FromError(err); ok {
		return nil, err
	}

	st, message := classify(err)
	if st.http >= 500 {
		log.WithError(err).WithField("method", info.FullMethod).Error("request failed")
	}
	return nil, status.Error(st.grpc, message)
}

func unaryPanicRecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context, req any,
		info *grpc.UnaryServerInfo, handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("panic-recovery middleware recovered from panic: %v", r)
				log.Errorf("stack trace: %v", string(debug.Stack()))
				err = errSomethingWentWrong
			}
		}()

		resp, err = handler(ctx, req)
		return resp, err
	}
}
