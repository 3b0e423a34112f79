package cidutil

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/ipfs/go-cid"
)

func TestFromSHA256_MatchesRehash(t *testing.T) {
	data := []byte("my original work")
	sum := sha256.Sum256(data)

	want, err := CIDv1RawSHA256CID(data)
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID: %v", err)
	}
	got, err := FromSHA256(sum[:])
	if err != nil {
		t.Fatalf("FromSHA256: %v", err)
	}
	if got != want {
		t.Fatalf("cid mismatch: got %s want %s", got, want)
	}
	if CIDv1RawSHA256(data) != want.String() {
		t.Fatalf("string form mismatch")
	}
}

func TestSHA256Of_RoundTrip(t *testing.T) {
	sum := sha256.Sum256([]byte("frame"))
	id, err := FromSHA256(sum[:])
	if err != nil {
		t.Fatalf("FromSHA256: %v", err)
	}
	got, err := SHA256Of(id)
	if err != nil {
		t.Fatalf("SHA256Of: %v", err)
	}
	if !bytes.Equal(got, sum[:]) {
		t.Fatalf("digest mismatch")
	}
}

func TestSHA256Of_RejectsUndef(t *testing.T) {
	if _, err := SHA256Of(cid.Undef); err != ErrNotSHA256 {
		t.Fatalf("got %v want ErrNotSHA256", err)
	}
}

func TestFromSHA256_RejectsShortDigest(t *testing.T) {
	if _, err := FromSHA256([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error for short digest")
	}
}
