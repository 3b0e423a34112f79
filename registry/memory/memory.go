// Package memory is an in-process registry backend. State is lost on exit.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/registry"
)

// Registry keeps records in a sync.Map keyed by digest.
// LoadOrStore gives first-writer-wins without a global lock.
type Registry struct {
	records sync.Map // fingerprint.Digest -> registry.Record

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

func New() *Registry { return &Registry{} }

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Registry) Register(ctx context.Context, digest fingerprint.Digest, owner, note string) (registry.RecordRef, error) {
	if err := registry.Validate(digest, owner, note); err != nil {
		return "", err
	}
	if _, ok := r.records.Load(digest); ok {
		return "", registry.ErrAlreadyRegistered
	}
	rec, err := registry.NewRecord(digest, owner, note, r.now())
	if err != nil {
		return "", err
	}
	if err := registry.CheckContext(ctx); err != nil {
		return "", err
	}
	if _, loaded := r.records.LoadOrStore(digest, rec); loaded {
		return "", registry.ErrAlreadyRegistered
	}
	return rec.Ref, nil
}

func (r *Registry) Import(ctx context.Context, rec registry.Record) error {
	if err := registry.CheckImport(rec); err != nil {
		return err
	}
	if err := registry.CheckContext(ctx); err != nil {
		return err
	}
	prev, loaded := r.records.LoadOrStore(rec.Digest, rec)
	if loaded && !prev.(registry.Record).Equal(rec) {
		return registry.ErrAlreadyRegistered
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, digest fingerprint.Digest) (registry.Record, error) {
	if err := registry.CheckContext(ctx); err != nil {
		return registry.Record{}, err
	}
	v, ok := r.records.Load(digest)
	if !ok {
		return registry.Record{}, nil
	}
	return v.(registry.Record), nil
}

func (r *Registry) Digests(ctx context.Context) ([]fingerprint.Digest, error) {
	if err := registry.CheckContext(ctx); err != nil {
		return nil, err
	}
	var out []fingerprint.Digest
	r.records.Range(func(k, _ any) bool {
		out = append(out, k.(fingerprint.Digest))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out, nil
}
