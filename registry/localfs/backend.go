package localfs

import (
	"xdao.co/origin/registry"
	"xdao.co/origin/registry/backends"
)

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "localfs",
		Description: "Local filesystem registry (one immutable file per digest)",
		Usage:       backends.UsageCLI | backends.UsageServer | backends.UsageDaemon,
		Options:     []backends.Option{{Key: "dir", Help: "registry directory", Required: true}},
		Open: func(opts map[string]string) (registry.Registry, func() error, error) {
			reg, err := New(opts["dir"])
			if err != nil {
				return nil, nil, err
			}
			return reg, nil, nil
		},
	})
}
