package grpcreg

import (
	"fmt"
	"strings"
	"time"

	"xdao.co/origin/registry"
	"xdao.co/origin/registry/backends"
)

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "grpc",
		Description: "gRPC registry client (talks to origin-registryd)",
		Usage:       backends.UsageCLI | backends.UsageServer,
		Options: []backends.Option{
			{Key: "target", Help: "host:port of the registry daemon", Required: true},
			{Key: "dial-timeout", Help: "dial timeout (default 5s)"},
			{Key: "timeout", Help: "per-RPC timeout (default none)"},
		},
		Open: func(opts map[string]string) (registry.Registry, func() error, error) {
			dialTimeout, err := durationOpt(opts, "dial-timeout", 5*time.Second)
			if err != nil {
				return nil, nil, err
			}
			rpcTimeout, err := durationOpt(opts, "timeout", 0)
			if err != nil {
				return nil, nil, err
			}
			client, err := Dial(strings.TrimSpace(opts["target"]), DialOptions{Timeout: dialTimeout})
			if err != nil {
				return nil, nil, err
			}
			client.Timeout = rpcTimeout
			return client, client.Close, nil
		},
	})
}

func durationOpt(opts map[string]string, key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(opts[key])
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("grpc backend: invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
