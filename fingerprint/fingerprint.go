// Package fingerprint derives the content digest that keys the registry.
//
// A Digest is sha256 over the complete file bytes in their original order.
// Its external form is "0x" followed by 64 lowercase hex characters; clients
// and registry backends must agree on this encoding byte for byte.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/origin/cidutil"
)

// Size is the digest length in bytes.
const Size = sha256.Size

// Prefix marks the hex encoding at the registry boundary.
const Prefix = "0x"

// ErrMalformed is returned by Parse for anything that is not Prefix + 64 hex chars.
var ErrMalformed = errors.New("fingerprint: malformed digest")

// Digest is the sha256 fingerprint of a file.
type Digest [Size]byte

// Sum fingerprints b.
func Sum(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// SumReader fingerprints everything read from r until EOF.
func SumReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return Digest{}, fmt.Errorf("fingerprint: reading content: %w", err)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// Parse decodes the external form produced by Digest.String.
// Upper-case hex is accepted; the prefix is required.
func Parse(s string) (Digest, error) {
	var d Digest
	s = strings.TrimSpace(s)
	if len(s) != len(Prefix)+2*Size || !strings.EqualFold(s[:len(Prefix)], Prefix) {
		return d, ErrMalformed
	}
	if _, err := hex.Decode(d[:], []byte(s[len(Prefix):])); err != nil {
		return d, ErrMalformed
	}
	return d, nil
}

// FromCID recovers the digest carried by a CIDv1 sha2-256 CID.
func FromCID(id cid.Cid) (Digest, error) {
	raw, err := cidutil.SHA256Of(id)
	if err != nil {
		return Digest{}, err
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

func (d Digest) String() string {
	return Prefix + hex.EncodeToString(d[:])
}

// Hex returns the lowercase hex encoding without the prefix.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) IsZero() bool {
	return d == Digest{}
}

// CID returns the CIDv1 (raw + sha2-256) naming the same bytes.
func (d Digest) CID() cid.Cid {
	id, err := cidutil.FromSHA256(d[:])
	if err != nil {
		// Size is fixed at 32 bytes, so encoding cannot fail.
		return cid.Undef
	}
	return id
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
