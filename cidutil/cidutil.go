package cidutil

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ErrNotSHA256 is returned when a CID does not carry a 32-byte sha2-256 multihash.
var ErrNotSHA256 = errors.New("cidutil: cid is not sha2-256")

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	id, err := CIDv1RawSHA256CID(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// FromSHA256 wraps an already computed sha256 digest in a CIDv1 (raw + sha2-256)
// without rehashing. The result equals CIDv1RawSHA256CID of the original bytes.
func FromSHA256(digest []byte) (cid.Cid, error) {
	if len(digest) != 32 {
		return cid.Undef, fmt.Errorf("cidutil: sha256 digest must be 32 bytes, got %d", len(digest))
	}
	mh, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// SHA256Of extracts the raw sha256 digest carried by id.
func SHA256Of(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrNotSHA256
	}
	dec, err := multihash.Decode(id.Hash())
	if err != nil {
		return nil, err
	}
	if dec.Code != multihash.SHA2_256 || len(dec.Digest) != 32 {
		return nil, ErrNotSHA256
	}
	return dec.Digest, nil
}
