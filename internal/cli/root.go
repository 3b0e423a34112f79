// Package cli implements the origin command line.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"xdao.co/origin/config"
	"xdao.co/origin/keys"
	"xdao.co/origin/model"
	"xdao.co/origin/proof"
	"xdao.co/origin/registry"
	"xdao.co/origin/registry/backends"
)

const defaultPassphraseEnv = "ORIGIN_ACCOUNT_PASSPHRASE"

// globals are the flags shared by every subcommand.
type globals struct {
	configFile string
	envFile    string
	backend    string
	opts       []string
	keyDir     string
	keyName    string
	keyFile    string
	seedHex    string
	verbose    bool
}

func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "origin",
		Short: "Proof-of-origin for media files",
		Long: `origin fingerprints files, records who registered them first and
verifies later copies against that record. It also drives the watermark
engine and serves everything over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (YAML)")
	pf.StringVar(&g.envFile, "env-file", "", "env file to load (default .env when present)")
	pf.StringVar(&g.backend, "backend", "", "registry backend (see `origin backends`)")
	pf.StringArrayVar(&g.opts, "opt", nil, "registry backend option key=value (repeatable)")
	pf.StringVar(&g.keyDir, "key-dir", "", "key store directory (default ~/.xdao/origin/keys)")
	pf.StringVar(&g.keyName, "account", "", "account key name in the key store")
	pf.StringVar(&g.keyFile, "key-file", "", "account key file")
	pf.StringVar(&g.seedHex, "seed-hex", "", "account seed as 64 hex chars")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log to stderr")

	root.AddCommand(
		serveCmd(g),
		fingerprintCmd(),
		registerCmd(g),
		verifyCmd(g),
		keyCmd(g),
		exportCmd(g),
		importCmd(g),
		auditCmd(g),
		watermarkCmd(g),
		backendsCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, out, errOut io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

func exitCode(err error) int {
	switch model.KindOf(err) {
	case model.KindValidation:
		return 2
	case model.KindAlreadyRegistered:
		return 3
	default:
		return 1
	}
}

// loadConfig reads the config and applies command line overrides.
func (g *globals) loadConfig() (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: g.configFile, EnvFile: g.envFile})
	if err != nil {
		return cfg, err
	}
	if g.backend != "" {
		cfg.Registry.Backend = g.backend
	}
	if len(g.opts) > 0 {
		extra, err := backends.ParseOptions(g.opts)
		if err != nil {
			return cfg, err
		}
		if cfg.Registry.Options == nil {
			cfg.Registry.Options = map[string]string{}
		}
		for k, v := range extra {
			cfg.Registry.Options[k] = v
		}
	}
	switch {
	case g.seedHex != "":
		cfg.Account.SeedHex = g.seedHex
		cfg.Account.KeyFile = ""
	case g.keyFile != "":
		cfg.Account.SeedHex = ""
		cfg.Account.KeyFile = g.keyFile
	case g.keyName != "":
		ks, err := g.keyStore()
		if err != nil {
			return cfg, err
		}
		if err := keys.CheckName(g.keyName); err != nil {
			return cfg, err
		}
		cfg.Account.SeedHex = ""
		cfg.Account.KeyFile = ks.Path(g.keyName)
	}
	return cfg, nil
}

func (g *globals) keyStore() (*keys.KeyStore, error) {
	return keys.CreateKeyStore(g.keyDir)
}

func (g *globals) logger() *zap.Logger {
	if !g.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// openRegistry opens the configured backend without needing an account.
func (g *globals) openRegistry(cfg config.Config) (registry.Registry, func() error, error) {
	name := strings.TrimSpace(cfg.Registry.Backend)
	if name == "" {
		return nil, nil, model.NewError(model.KindNotConfigured,
			"registry not configured: pass --backend (and --opt) or set registry.backend")
	}
	return backends.Open(name, backends.UsageCLI, cfg.Registry.Options)
}

// readService is a registry-backed service for lookups; it has no owner.
func (g *globals) readService(cfg config.Config) (*proof.Service, func() error, error) {
	reg, closeFn, err := g.openRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	svc := proof.NewService(proof.Options{
		Registry: reg,
		Backend:  cfg.Registry.Backend,
		Timeout:  cfg.Registry.Timeout,
		Logger:   g.logger(),
	})
	return svc, closeFn, nil
}

// writeService needs both a backend and an account.
func (g *globals) writeService(cfg config.Config) (*proof.Service, func() error, error) {
	if strings.TrimSpace(cfg.Registry.Backend) == "" {
		_, _, err := g.openRegistry(cfg)
		return nil, nil, err
	}
	if !cfg.HasAccount() {
		return nil, nil, model.NewError(model.KindNotConfigured,
			"no account configured: pass --account, --key-file or --seed-hex")
	}
	return cfg.OpenProof(backends.UsageCLI, g.logger())
}
