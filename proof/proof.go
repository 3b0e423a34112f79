// Package proof implements registration and verification of file
// fingerprints against a registry.
//
// A Service built without a registry is Unconfigured: every registry
// operation fails with KindNotConfigured and nothing else changes.
package proof

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/keys"
	"xdao.co/origin/model"
	"xdao.co/origin/registry"
)

type Options struct {
	// Registry is nil for an unconfigured service.
	Registry registry.Registry
	// Backend names the registry backend for status reporting.
	Backend string
	// Owner is the default owner when a caller supplies none, normally the
	// service account address.
	Owner string
	// Signer, when set, signs a receipt for every registration.
	Signer keys.Signer
	// Timeout bounds each registry call. Zero means the caller's context only.
	Timeout time.Duration
	Logger  *zap.Logger
}

type Service struct {
	reg     registry.Registry
	backend string
	owner   string
	signer  keys.Signer
	timeout time.Duration
	logger  *zap.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		reg:     opts.Registry,
		backend: opts.Backend,
		owner:   strings.TrimSpace(opts.Owner),
		signer:  opts.Signer,
		timeout: opts.Timeout,
		logger:  logger,
	}
}

func (s *Service) Configured() bool { return s.reg != nil }

func (s *Service) State() model.RegistryState {
	if s.Configured() {
		return model.RegistryConfigured
	}
	return model.RegistryUnconfigured
}

func (s *Service) Backend() string { return s.backend }

func (s *Service) Owner() string { return s.owner }

var errNotConfigured = model.NewError(model.KindNotConfigured, "registry not configured")

// RegisterFile fingerprints data and records owner as its registrant.
// An empty owner means the service owner.
func (s *Service) RegisterFile(ctx context.Context, data []byte, owner, note string) (model.RegisterResult, error) {
	if !s.Configured() {
		return model.RegisterResult{}, errNotConfigured
	}
	return s.RegisterDigest(ctx, fingerprint.Sum(data), owner, note)
}

// RegisterReader is RegisterFile for streamed content.
func (s *Service) RegisterReader(ctx context.Context, r io.Reader, owner, note string) (model.RegisterResult, error) {
	if !s.Configured() {
		return model.RegisterResult{}, errNotConfigured
	}
	d, err := fingerprint.SumReader(r)
	if err != nil {
		return model.RegisterResult{}, model.WrapError(model.KindInternal, "failed to read file", err)
	}
	return s.RegisterDigest(ctx, d, owner, note)
}

// RegisterDigest performs exactly one registry write. It never retries.
func (s *Service) RegisterDigest(ctx context.Context, d fingerprint.Digest, owner, note string) (model.RegisterResult, error) {
	if !s.Configured() {
		return model.RegisterResult{}, errNotConfigured
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = s.owner
	}
	if owner == "" {
		return model.RegisterResult{}, model.NewError(model.KindNotConfigured, "no owner account configured")
	}
	if err := registry.Validate(d, owner, note); err != nil {
		return model.RegisterResult{}, Classify(err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ref, err := s.reg.Register(ctx, d, owner, note)
	if err != nil {
		e := Classify(err)
		s.logger.Info("register rejected",
			zap.String("digest", d.String()),
			zap.String("kind", string(e.Kind)),
			zap.Error(err),
		)
		return model.RegisterResult{}, e
	}

	res := model.RegisterResult{Digest: d.String(), RecordRef: string(ref), Owner: owner}
	if s.signer != nil {
		receipt, err := keys.SignReceipt(s.signer, res.Digest, res.RecordRef, res.Owner)
		if err != nil {
			// The record is committed; report it without a receipt.
			s.logger.Error("receipt signing failed", zap.String("digest", res.Digest), zap.Error(err))
		} else {
			res.Receipt = receipt
		}
	}
	s.logger.Info("registered",
		zap.String("digest", res.Digest),
		zap.String("recordRef", res.RecordRef),
		zap.String("owner", owner),
	)
	return res, nil
}

// VerifyFile reports whether data's fingerprint is registered. Read-only.
func (s *Service) VerifyFile(ctx context.Context, data []byte) (model.VerifyResult, error) {
	if !s.Configured() {
		return model.VerifyResult{}, errNotConfigured
	}
	return s.verify(ctx, fingerprint.Sum(data))
}

func (s *Service) VerifyReader(ctx context.Context, r io.Reader) (model.VerifyResult, error) {
	if !s.Configured() {
		return model.VerifyResult{}, errNotConfigured
	}
	d, err := fingerprint.SumReader(r)
	if err != nil {
		return model.VerifyResult{}, model.WrapError(model.KindInternal, "failed to read file", err)
	}
	return s.verify(ctx, d)
}

// VerifyDigest looks up a digest given in its wire form ("0x" + 64 hex).
func (s *Service) VerifyDigest(ctx context.Context, digest string) (model.VerifyResult, error) {
	if !s.Configured() {
		return model.VerifyResult{}, errNotConfigured
	}
	d, err := fingerprint.Parse(digest)
	if err != nil {
		return model.VerifyResult{}, model.WrapError(model.KindValidation, "invalid digest", err)
	}
	return s.verify(ctx, d)
}

func (s *Service) verify(ctx context.Context, d fingerprint.Digest) (model.VerifyResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rec, err := s.reg.Get(ctx, d)
	if err != nil {
		return model.VerifyResult{}, Classify(err)
	}
	return ResultFromRecord(d, rec), nil
}

// ResultFromRecord maps a registry record to its verification view.
func ResultFromRecord(d fingerprint.Digest, rec registry.Record) model.VerifyResult {
	res := model.VerifyResult{Digest: d.String()}
	if !rec.Exists() {
		return res
	}
	res.Exists = true
	res.Owner = rec.Owner
	res.Note = rec.Note
	res.RecordRef = string(rec.Ref)
	res.Timestamp = rec.Timestamp.Unix()
	res.RegisteredAt = rec.Timestamp.UTC().Format(time.RFC3339)
	return res
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
