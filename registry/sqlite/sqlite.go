// Package sqlite is a registry backend on SQLite. The digest primary key is
// the commit point: a duplicate insert fails on the constraint.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/registry"
)

const memoryDSN = ":memory:"

type Registry struct {
	db *sql.DB

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Registry, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	dsn := path
	if path != memoryDSN {
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=FULL", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == memoryDSN {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// New wraps an existing connection. The caller owns db.
func New(db *sql.DB) (*Registry, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Registry{db: db}, nil
}

func (r *Registry) Close() error { return r.db.Close() }

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Registry) Register(ctx context.Context, digest fingerprint.Digest, owner, note string) (registry.RecordRef, error) {
	rec, err := registry.NewRecord(digest, owner, note, r.now())
	if err != nil {
		return "", err
	}
	if err := r.insert(ctx, rec); err != nil {
		return "", err
	}
	return rec.Ref, nil
}

// Import adopts rec unless a different record already holds its digest.
func (r *Registry) Import(ctx context.Context, rec registry.Record) error {
	if err := registry.CheckImport(rec); err != nil {
		return err
	}
	err := r.insert(ctx, rec)
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

func (r *Registry) insert(ctx context.Context, rec registry.Record) error {
	if err := registry.CheckContext(ctx); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO fingerprints (digest, owner, note, created_ns, nonce, record_ref) VALUES (?, ?, ?, ?, ?, ?)",
		rec.Digest[:], rec.Owner, rec.Note, rec.Timestamp.UnixNano(), rec.Nonce[:], string(rec.Ref),
	)
	if err != nil {
		if isPrimaryKeyViolation(err) {
			return registry.ErrAlreadyRegistered
		}
		return registry.Unavailable("sqlite: insert", err)
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, digest fingerprint.Digest) (registry.Record, error) {
	if err := registry.CheckContext(ctx); err != nil {
		return registry.Record{}, err
	}
	var (
		raw   []byte
		nonce []byte
		ns    int64
		ref   string
		rec   registry.Record
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT digest, owner, note, created_ns, nonce, record_ref FROM fingerprints WHERE digest = ?",
		digest[:],
	).Scan(&raw, &rec.Owner, &rec.Note, &ns, &nonce, &ref)
	if err == sql.ErrNoRows {
		return registry.Record{}, nil
	}
	if err != nil {
		return registry.Record{}, registry.Unavailable("sqlite: select", err)
	}
	if len(raw) != fingerprint.Size || len(nonce) != registry.NonceSize {
		return registry.Record{}, registry.ErrTampered
	}
	copy(rec.Digest[:], raw)
	copy(rec.Nonce[:], nonce)
	rec.Timestamp = time.Unix(0, ns).UTC()
	rec.Ref = registry.RecordRef(ref)
	if rec.Digest != digest {
		return registry.Record{}, registry.ErrTampered
	}
	if err := rec.VerifyRef(); err != nil {
		return registry.Record{}, err
	}
	return rec, nil
}

func (r *Registry) Digests(ctx context.Context) ([]fingerprint.Digest, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT digest FROM fingerprints ORDER BY digest")
	if err != nil {
		return nil, registry.Unavailable("sqlite: list", err)
	}
	defer rows.Close()

	var out []fingerprint.Digest
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, registry.Unavailable("sqlite: scan", err)
		}
		if len(raw) != fingerprint.Size {
			return nil, registry.ErrTampered
		}
		var d fingerprint.Digest
		copy(d[:], raw)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, registry.Unavailable("sqlite: list", err)
	}
	return out, nil
}

func isPrimaryKeyViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}
