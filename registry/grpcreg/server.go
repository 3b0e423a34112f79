package grpcreg

import (
	"context"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/origin/registry"
)

// Server exposes a registry.Registry over the Registry gRPC service.
type Server struct {
	UnimplementedRegistryServer
	Registry registry.Registry
}

func (s *Server) Register(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if s == nil || s.Registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing registry")
	}
	var req registerRequest
	if err := cbor.Unmarshal(in.GetValue(), &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed register request")
	}
	d, ok := digestFromBytes(req.Digest)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "malformed digest")
	}
	ref, err := s.Registry.Register(ctx, d, req.Owner, req.Note)
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.String(string(ref)), nil
}

// Get returns the CBOR record, or empty bytes when the digest is absent.
func (s *Server) Get(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing registry")
	}
	d, ok := digestFromBytes(in.GetValue())
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "malformed digest")
	}
	rec, err := s.Registry.Get(ctx, d)
	if err != nil {
		return nil, mapErr(err)
	}
	if !rec.Exists() {
		return wrapperspb.Bytes(nil), nil
	}
	b, err := registry.MarshalRecord(rec)
	if err != nil {
		return nil, status.Error(codes.Internal, "record encoding failed")
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Digests(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	if s == nil || s.Registry == nil {
		return nil, status.Error(codes.FailedPrecondition, "missing registry")
	}
	lister, ok := s.Registry.(registry.Lister)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "backend cannot list digests")
	}
	ds, err := lister.Digests(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	b, err := encodeDigests(ds)
	if err != nil {
		return nil, status.Error(codes.Internal, "digest list encoding failed")
	}
	return wrapperspb.Bytes(b), nil
}
