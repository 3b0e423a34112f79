package sqlite

import (
	"xdao.co/origin/registry"
	"xdao.co/origin/registry/backends"
)

func init() {
	backends.MustRegister(backends.Backend{
		Name:        "sqlite",
		Description: "SQLite registry (digest primary key)",
		Usage:       backends.UsageCLI | backends.UsageServer | backends.UsageDaemon,
		Options:     []backends.Option{{Key: "path", Help: "database file, or :memory:", Required: true}},
		Open: func(opts map[string]string) (registry.Registry, func() error, error) {
			reg, err := Open(opts["path"])
			if err != nil {
				return nil, nil, err
			}
			return reg, reg.Close, nil
		},
	})
}
