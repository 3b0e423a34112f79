package grpcreg

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor logs each unary call with its status code and latency.
// Expected outcomes (duplicates, bad input) log at info; the rest at warn.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
		}
		switch code {
		case codes.OK, codes.AlreadyExists, codes.InvalidArgument:
			logger.Info("rpc", fields...)
		default:
			logger.Warn("rpc", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
