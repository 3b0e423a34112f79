// Package config loads service configuration from an optional YAML file,
// a .env file and the environment, and assembles the pieces it describes.
//
// Environment variables use the ORIGIN_ prefix with "." replaced by "_"
// (ORIGIN_CODEC_WORKERS). Backend options come from the file or from
// ORIGIN_REGISTRY_OPTS as comma separated key=value pairs. The variable
// names of earlier deployments are still honoured: PORT, PYTHON_BIN,
// WATERMARK_DIR and PRIVATE_KEY.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"xdao.co/origin/keys"
	"xdao.co/origin/registry/backends"
)

const (
	EnvPrefix   = "ORIGIN"
	DefaultAddr = ":4000"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Registry RegistryConfig `mapstructure:"registry"`
	Account  AccountConfig  `mapstructure:"account"`
	Codec    CodecConfig    `mapstructure:"codec"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowOrigins   []string      `mapstructure:"allow_origins"`
}

type RegistryConfig struct {
	// Backend is a registry backend name; empty leaves the registry unconfigured.
	Backend string            `mapstructure:"backend"`
	Options map[string]string `mapstructure:"options"`
	// Timeout bounds each registry call.
	Timeout time.Duration `mapstructure:"timeout"`
}

type AccountConfig struct {
	SeedHex    string `mapstructure:"seed_hex"`
	KeyFile    string `mapstructure:"key_file"`
	Passphrase string `mapstructure:"passphrase"`
	// Scheme selects the receipt signature; "none" disables receipts.
	Scheme string `mapstructure:"scheme"`
}

type CodecConfig struct {
	Interpreter string        `mapstructure:"interpreter"`
	ScriptDir   string        `mapstructure:"script_dir"`
	Workers     int           `mapstructure:"workers"`
	// Timeout bounds one engine run. A shorter server.request_timeout wins.
	Timeout     time.Duration `mapstructure:"timeout"`
	MinSize     int           `mapstructure:"min_size"`
	TempDir     string        `mapstructure:"temp_dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LoadOptions struct {
	// ConfigFile is an optional YAML (or any viper-supported) file.
	ConfigFile string
	// EnvFile is loaded into the process environment first. Empty means
	// ".env" when it exists. Variables already set win.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.max_upload_bytes", int64(200<<20))
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.allow_origins", []string{})

	v.SetDefault("registry.backend", "")
	v.SetDefault("registry.timeout", 30*time.Second)

	v.SetDefault("account.seed_hex", "")
	v.SetDefault("account.key_file", "")
	v.SetDefault("account.passphrase", "")
	v.SetDefault("account.scheme", keys.SchemeEd25519)

	v.SetDefault("codec.interpreter", "python3")
	v.SetDefault("codec.script_dir", "../watermarking")
	v.SetDefault("codec.workers", 0)
	v.SetDefault("codec.timeout", 4*time.Minute)
	v.SetDefault("codec.min_size", 512)
	v.SetDefault("codec.temp_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// legacyEnv maps keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"codec.interpreter": "PYTHON_BIN",
	"codec.script_dir":  "WATERMARK_DIR",
	"account.seed_hex":  "PRIVATE_KEY",
}

func Load(opts LoadOptions) (Config, error) {
	if err := loadEnvFile(opts.EnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.addr"); err != nil {
		return Config{}, err
	}
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, err
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", opts.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	// PORT only applies when the address was not chosen explicitly.
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
		if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
			cfg.Server.Addr = ":" + port
		}
	}
	if raw := strings.TrimSpace(os.Getenv(EnvPrefix + "_REGISTRY_OPTS")); raw != "" {
		extra, err := backends.ParseOptions(strings.Split(raw, ","))
		if err != nil {
			return Config{}, fmt.Errorf("config: %s_REGISTRY_OPTS: %w", EnvPrefix, err)
		}
		if cfg.Registry.Options == nil {
			cfg.Registry.Options = map[string]string{}
		}
		for k, val := range extra {
			cfg.Registry.Options[k] = val
		}
	}
	return cfg, cfg.Validate()
}

func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: env file %s not found", path)
		}
		return fmt.Errorf("config: loading %s: %w", path, err)
	}
	return nil
}

// CodecTimeout is the engine run limit actually applied: codec.timeout capped
// by server.request_timeout. Zero means no limit.
func (c Config) CodecTimeout() time.Duration {
	run, req := c.Codec.Timeout, c.Server.RequestTimeout
	if req > 0 && (run <= 0 || run > req) {
		return req
	}
	return run
}

func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("config: server.max_upload_bytes must be positive")
	}
	if c.Server.RequestTimeout < 0 || c.Registry.Timeout < 0 || c.Codec.Timeout < 0 {
		return errors.New("config: timeouts cannot be negative")
	}
	if c.Codec.Workers < 0 {
		return errors.New("config: codec.workers cannot be negative")
	}
	if strings.TrimSpace(c.Codec.Interpreter) == "" {
		return errors.New("config: codec.interpreter is required")
	}
	switch strings.ToLower(c.Account.Scheme) {
	case "", "none", keys.SchemeEd25519, keys.SchemeDilithium3:
	default:
		return fmt.Errorf("config: unsupported account.scheme %q", c.Account.Scheme)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("config: unsupported log.format %q", c.Log.Format)
	}
	return nil
}
