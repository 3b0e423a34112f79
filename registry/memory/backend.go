package memory

import (
	"xdao.co/origin/registry"
	"xdao.co/origin/registry/backends"
)

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "memory",
		Description: "In-process registry (lost on exit)",
		Usage:       backends.UsageCLI | backends.UsageServer | backends.UsageDaemon,
		Open: func(map[string]string) (registry.Registry, func() error, error) {
			return New(), nil, nil
		},
	})
}
