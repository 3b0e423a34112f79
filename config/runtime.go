package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"xdao.co/origin/codec"
	"xdao.co/origin/keys"
	"xdao.co/origin/proof"
	"xdao.co/origin/registry/backends"
)

// NewLogger builds the process logger. Format "console" gives the
// development encoder.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(c.Log.Level))
	if err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if strings.EqualFold(c.Log.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// HasAccount reports whether an account key source is configured.
func (c Config) HasAccount() bool {
	return strings.TrimSpace(c.Account.SeedHex) != "" || strings.TrimSpace(c.Account.KeyFile) != ""
}

// LoadAccount returns nil without error when no key source is configured.
func (c Config) LoadAccount() (*keys.Account, error) {
	if !c.HasAccount() {
		return nil, nil
	}
	seed, err := keys.LoadSeed(c.Account.SeedHex, c.Account.KeyFile, c.Account.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("config: account: %w", err)
	}
	return keys.NewAccount(seed)
}

// OpenProof assembles the registration service. Without a backend or an
// account the service is unconfigured; that is reported, not an error.
// A configured backend that fails to open is an error.
func (c Config) OpenProof(usage backends.Usage, logger *zap.Logger) (*proof.Service, func() error, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := strings.TrimSpace(c.Registry.Backend)
	if backend == "" || !c.HasAccount() {
		logger.Warn("registry not configured",
			zap.Bool("backend", backend != ""),
			zap.Bool("account", c.HasAccount()),
		)
		return proof.NewService(proof.Options{Logger: logger}), noop, nil
	}

	acct, err := c.LoadAccount()
	if err != nil {
		return nil, nil, err
	}
	var signer keys.Signer
	if !strings.EqualFold(c.Account.Scheme, "none") {
		signer, err = acct.NewSigner(c.Account.Scheme)
		if err != nil {
			return nil, nil, fmt.Errorf("config: account: %w", err)
		}
	}

	reg, closeFn, err := backends.Open(backend, usage, c.Registry.Options)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("registry configured", zap.String("backend", backend), zap.String("owner", acct.Address()))
	return proof.NewService(proof.Options{
		Registry: reg,
		Backend:  backend,
		Owner:    acct.Address(),
		Signer:   signer,
		Timeout:  c.Registry.Timeout,
		Logger:   logger,
	}), closeFn, nil
}

// NewCodec builds the watermark gateway around the external engine.
func (c Config) NewCodec(logger *zap.Logger) *codec.Gateway {
	engine := codec.NewProcessEngine(c.Codec.Interpreter, c.Codec.ScriptDir)
	return codec.NewGateway(engine, codec.Options{
		Workers: c.Codec.Workers,
		Timeout: c.CodecTimeout(),
		TempDir: c.Codec.TempDir,
		MinSize: c.Codec.MinSize,
		Logger:  logger,
	})
}
