// Package registry defines the append-only fingerprint registry contract.
//
// A registry maps a content digest to exactly one immutable ownership record.
// Backends live in sub-packages and all pass registry/testkit.
package registry

import (
	"context"

	"xdao.co/origin/fingerprint"
)

// Registry is the authoritative digest -> record store.
//
// Contract:
//   - Register MUST create at most one record per digest. A second Register for
//     the same digest fails with ErrAlreadyRegistered and leaves state unchanged.
//   - Concurrent Register calls for the same digest yield exactly one success.
//     Calls for different digests MUST NOT block one another.
//   - The timestamp is assigned by the registry at write time.
//   - Records are immutable. There is no update or delete.
//   - Get MUST return the zero Record (empty Owner) when the digest is absent;
//     absence is data, not an error.
//   - Backend failures surface as ErrUnavailable; an expired context surfaces
//     as ErrTimeout and commits nothing.
type Registry interface {
	Register(ctx context.Context, digest fingerprint.Digest, owner, note string) (RecordRef, error)
	Get(ctx context.Context, digest fingerprint.Digest) (Record, error)
}

// Lister is implemented by backends that can enumerate their digests,
// in ascending byte order. Used for audit export.
type Lister interface {
	Digests(ctx context.Context) ([]fingerprint.Digest, error)
}

// Importer is implemented by backends that can adopt a record committed
// elsewhere, keeping its timestamp, nonce and reference. The first record for
// a digest wins as with Register; importing a record equal to the stored one
// succeeds without change. Used to restore exported archives.
type Importer interface {
	Import(ctx context.Context, rec Record) error
}

// Exists is the existence predicate derived from Get.
func Exists(ctx context.Context, r Registry, digest fingerprint.Digest) (bool, error) {
	rec, err := r.Get(ctx, digest)
	if err != nil {
		return false, err
	}
	return rec.Exists(), nil
}
