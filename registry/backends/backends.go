// Package backends is the build-time plugin table of registry backends.
//
// Backends register themselves in init():
//
//	backends.MustRegister(backends.Backend{ ... })
//
// A binary enables a backend by importing its package (often as a blank import).
package backends

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"xdao.co/origin/registry"
)

// Option documents one key accepted in the options map passed to Open.
type Option struct {
	Key      string
	Help     string
	Required bool
}

type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Options     []Option

	// Open constructs the registry from backend-specific options.
	// It returns an optional close function.
	Open func(opts map[string]string) (registry.Registry, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("backends: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("backends: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("backends: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("backends: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// Open opens the named backend if it exists and matches usage.
// Required options are checked before the backend sees them.
func Open(name string, usage Usage, opts map[string]string) (registry.Registry, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown registry backend %q (available: %s)", name, strings.Join(Names(usage), ", "))
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("registry backend %q not supported in this binary", name)
	}
	for _, o := range b.Options {
		if o.Required && strings.TrimSpace(opts[o.Key]) == "" {
			return nil, nil, fmt.Errorf("registry backend %q: missing option %q", name, o.Key)
		}
	}
	if opts == nil {
		opts = map[string]string{}
	}
	reg, closeFn, err := b.Open(opts)
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	return reg, closeFn, nil
}

// ParseOptions turns "k=v" pairs into an options map.
func ParseOptions(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid backend option %q (want key=value)", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
