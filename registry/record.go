package registry

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"xdao.co/origin/fingerprint"
	"xdao.co/origin/model"
)

// NonceSize is the length of the per-record nonce mixed into the RecordRef.
const NonceSize = 16

// RecordRef identifies the write that created a record: "0x" + hex(sha256(tx)).
// It is distinct from the digest and unique per registration.
type RecordRef string

// Record is the immutable ownership record for one digest.
// The zero Record means "not registered".
type Record struct {
	Digest    fingerprint.Digest
	Owner     string
	Note      string
	Timestamp time.Time
	Ref       RecordRef
	Nonce     [NonceSize]byte
}

func (r Record) Exists() bool { return r.Owner != "" }

// tx is the canonical transaction body. Field order is fixed by toarray.
type tx struct {
	_         struct{} `cbor:",toarray"`
	Digest    []byte
	Owner     string
	Note      string
	Timestamp int64
	Nonce     []byte
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

func (r Record) tx() tx {
	return tx{
		Digest:    r.Digest[:],
		Owner:     r.Owner,
		Note:      r.Note,
		Timestamp: r.Timestamp.UnixNano(),
		Nonce:     r.Nonce[:],
	}
}

func computeRef(r Record) (RecordRef, error) {
	b, err := encMode.Marshal(r.tx())
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return RecordRef(fingerprint.Prefix + hex.EncodeToString(sum[:])), nil
}

// NewRecord validates a registration and builds the record a backend will
// commit. now is the registry-assigned time.
func NewRecord(digest fingerprint.Digest, owner, note string, now time.Time) (Record, error) {
	if err := Validate(digest, owner, note); err != nil {
		return Record{}, err
	}
	rec := Record{
		Digest:    digest,
		Owner:     owner,
		Note:      note,
		Timestamp: time.Unix(0, now.UnixNano()).UTC(),
	}
	if _, err := rand.Read(rec.Nonce[:]); err != nil {
		return Record{}, fmt.Errorf("registry: nonce: %w", err)
	}
	ref, err := computeRef(rec)
	if err != nil {
		return Record{}, fmt.Errorf("registry: encode tx: %w", err)
	}
	rec.Ref = ref
	return rec, nil
}

// VerifyRef recomputes the record reference. A mismatch means the stored
// record was altered after it was written.
func (r Record) VerifyRef() error {
	want, err := computeRef(r)
	if err != nil {
		return err
	}
	if want != r.Ref {
		return ErrTampered
	}
	return nil
}

// Validate checks a registration request without touching any backend.
func Validate(digest fingerprint.Digest, owner, note string) error {
	if digest.IsZero() {
		return fmt.Errorf("%w: zero digest", ErrInvalid)
	}
	if err := model.CheckOwner(owner); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := model.CheckNote(note); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// stored is the persisted form used by file and wire encodings.
type stored struct {
	_         struct{} `cbor:",toarray"`
	Digest    []byte
	Owner     string
	Note      string
	Timestamp int64
	Nonce     []byte
	Ref       string
}

// MarshalRecord encodes r deterministically (CBOR, core deterministic mode).
func MarshalRecord(r Record) ([]byte, error) {
	return encMode.Marshal(stored{
		Digest:    r.Digest[:],
		Owner:     r.Owner,
		Note:      r.Note,
		Timestamp: r.Timestamp.UnixNano(),
		Nonce:     r.Nonce[:],
		Ref:       string(r.Ref),
	})
}

// UnmarshalRecord decodes and integrity-checks a record produced by MarshalRecord.
// An empty input decodes to the zero Record.
func UnmarshalRecord(b []byte) (Record, error) {
	if len(b) == 0 {
		return Record{}, nil
	}
	var s stored
	if err := cbor.Unmarshal(b, &s); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrTampered, err)
	}
	if len(s.Digest) != fingerprint.Size || len(s.Nonce) != NonceSize {
		return Record{}, ErrTampered
	}
	var r Record
	copy(r.Digest[:], s.Digest)
	copy(r.Nonce[:], s.Nonce)
	r.Owner = s.Owner
	r.Note = s.Note
	r.Timestamp = time.Unix(0, s.Timestamp).UTC()
	r.Ref = RecordRef(s.Ref)
	if err := r.VerifyRef(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Equal reports whether two records are identical in every field.
func (r Record) Equal(o Record) bool {
	return r.Digest == o.Digest &&
		r.Owner == o.Owner &&
		r.Note == o.Note &&
		r.Timestamp.Equal(o.Timestamp) &&
		r.Ref == o.Ref &&
		bytes.Equal(r.Nonce[:], o.Nonce[:])
}

// CheckImport validates a record built by another registry before adoption.
func CheckImport(r Record) error {
	if err := Validate(r.Digest, r.Owner, r.Note); err != nil {
		return err
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalid)
	}
	return r.VerifyRef()
}
