// Package grpcreg carries the registry contract over gRPC: Server wraps any
// registry.Registry and Client implements registry.Registry against it.
package grpcreg

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/registry"
)

// Client implements registry.Registry over the Registry gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client RegistryClient

	// Timeout applies per RPC when non-zero, on top of the caller's context.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, registry.Unavailable("grpc: dial", err)
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection. Close closes cc.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewRegistryClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Register(ctx context.Context, digest fingerprint.Digest, owner, note string) (registry.RecordRef, error) {
	if err := registry.Validate(digest, owner, note); err != nil {
		return "", err
	}
	if err := registry.CheckContext(ctx); err != nil {
		return "", err
	}
	body, err := cbor.Marshal(registerRequest{Digest: digest[:], Owner: owner, Note: note})
	if err != nil {
		return "", err
	}

	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Register(ctx, wrapperspb.Bytes(body))
	if err != nil {
		return "", mapRPC(err)
	}
	return registry.RecordRef(reply.GetValue()), nil
}

func (c *Client) Get(ctx context.Context, digest fingerprint.Digest) (registry.Record, error) {
	if err := registry.CheckContext(ctx); err != nil {
		return registry.Record{}, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.Bytes(digest[:]))
	if err != nil {
		return registry.Record{}, mapRPC(err)
	}
	rec, err := registry.UnmarshalRecord(reply.GetValue())
	if err != nil {
		return registry.Record{}, err
	}
	if rec.Exists() && rec.Digest != digest {
		return registry.Record{}, registry.ErrTampered
	}
	return rec, nil
}

func (c *Client) Digests(ctx context.Context) ([]fingerprint.Digest, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Digests(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, mapRPC(err)
	}
	ds, err := decodeDigests(reply.GetValue())
	if err != nil {
		return nil, registry.ErrTampered
	}
	return ds, nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
