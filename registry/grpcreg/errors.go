package grpcreg

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/origin/registry"
)

// mapErr converts a registry error into a gRPC status on the server side.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, registry.ErrInvalid):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, registry.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, registry.ErrTampered):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, registry.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// mapRPC converts a gRPC status back into a registry sentinel on the client side.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return registry.Unavailable("grpc", err)
	}
	switch st.Code() {
	case codes.AlreadyExists:
		return registry.ErrAlreadyRegistered
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", registry.ErrInvalid, st.Message())
	case codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%w: %s", registry.ErrTimeout, st.Message())
	case codes.DataLoss:
		return registry.ErrTampered
	default:
		return fmt.Errorf("%w: grpc %s: %s", registry.ErrUnavailable, st.Code(), st.Message())
	}
}
