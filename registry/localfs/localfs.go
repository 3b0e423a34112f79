// Package localfs is a filesystem registry backend.
//
// Each record is one immutable file named by its digest. Creation goes through
// a temp file plus os.Link, so a record file is either absent or complete, and
// the link is the single commit point that decides the first writer.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/registry"
)

const recordExt = ".cbor"

type Registry struct {
	root string

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// New constructs a filesystem registry rooted at root. The directory will be created if needed.
func New(root string) (*Registry, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, registry.Unavailable("localfs: mkdir", err)
	}
	return &Registry{root: root}, nil
}

func (r *Registry) Root() string { return r.root }

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
	path := r.pathFor(digest)
	if _, err := os.Lstat(path); err == nil {
		return "", registry.ErrAlreadyRegistered
	}

	rec, err := registry.NewRecord(digest, owner, note, r.now())
	if err != nil {
		return "", err
	}
	if err := r.commit(ctx, rec); err != nil {
		return "", err
	}
	return rec.Ref, nil
}

// Import adopts rec unless a different record already holds its digest.
func (r *Registry) Import(ctx context.Context, rec registry.Record) error {
	if err := registry.CheckImport(rec); err != nil {
		return err
	}
	err := r.commit(ctx, rec)
	if !errors.Is(err, registry.ErrAlreadyRegistered) {
		return err
	}
	prev, gerr := r.Get(ctx, rec.Digest)
	if gerr != nil {
		return gerr
	}
	if prev.Equal(rec) {
		return nil
	}
	return err
}

// commit writes rec to a temp file and links it into place. The link fails
// with EEXIST when another writer got there first.
func (r *Registry) commit(ctx context.Context, rec registry.Record) error {
	b, err := registry.MarshalRecord(rec)
	if err != nil {
		return err
	}

	path := r.pathFor(rec.Digest)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return registry.Unavailable("localfs: mkdir", err)
	}
	tmp, err := os.CreateTemp(dir, ".pending-*")
	if err != nil {
		return registry.Unavailable("localfs: create temp", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return registry.Unavailable("localfs: write", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return registry.Unavailable("localfs: sync", err)
	}
	if err := tmp.Close(); err != nil {
		return registry.Unavailable("localfs: close", err)
	}
	if err := os.Chmod(tmpPath, 0o444); err != nil {
		return registry.Unavailable("localfs: chmod", err)
	}

	if err := registry.CheckContext(ctx); err != nil {
		return err
	}
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return registry.ErrAlreadyRegistered
		}
		return registry.Unavailable("localfs: link", err)
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, digest fingerprint.Digest) (registry.Record, error) {
	if err := registry.CheckContext(ctx); err != nil {
		return registry.Record{}, err
	}
	b, err := os.ReadFile(r.pathFor(digest))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return registry.Record{}, nil
		}
		return registry.Record{}, registry.Unavailable("localfs: read", err)
	}
	rec, err := registry.UnmarshalRecord(b)
	if err != nil {
		return registry.Record{}, err
	}
	if rec.Digest != digest {
		return registry.Record{}, registry.ErrTampered
	}
	return rec, nil
}

// Digests lists every committed record in ascending digest order.
func (r *Registry) Digests(ctx context.Context) ([]fingerprint.Digest, error) {
	var out []fingerprint.Digest
	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), recordExt) {
			return nil
		}
		digest, err := fingerprint.Parse(fingerprint.Prefix + strings.TrimSuffix(d.Name(), recordExt))
		if err != nil {
			return nil
		}
		out = append(out, digest)
		return nil
	})
	if err != nil {
		return nil, registry.Unavailable("localfs: walk", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out, nil
}

func (r *Registry) pathFor(d fingerprint.Digest) string {
	h := d.Hex()
	return filepath.Join(r.root, h[:2], h+recordExt)
}

func (r *Registry) String() string { return fmt.Sprintf("localfs(%s)", r.root) }
