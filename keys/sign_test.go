package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func TestSignEd25519SHA256_Verifies(t *testing.T) {
	priv := ed25519.NewKeyFromSeed(testSeed(0))
	pub := priv.Public().(ed25519.PublicKey)

	msg := []byte("hello")
	sigB64 := SignEd25519SHA256(msg, priv)
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	digest := sha256.Sum256(msg)
	if !ed25519.Verify(pub, digest[:], sig) {
		t.Fatalf("signature did not verify")
	}
}

func TestSignDilithium3_Verifies_SHA3_256(t *testing.T) {
	pk, sk, err := GenerateDilithium3Keypair(io.Reader(&deterministicReader{}))
	if err != nil {
		t.Fatalf("GenerateDilithium3Keypair: %v", err)
	}

	msg := []byte("hello")
	sigB64, err := SignDilithium3(msg, "sha3-256", sk)
	if err != nil {
		t.Fatalf("SignDilithium3: %v", err)
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(sig) != mode3.SignatureSize {
		t.Fatalf("unexpected signature size: got %d want %d", len(sig), mode3.SignatureSize)
	}

	digest, err := digestFor("sha3-256", msg)
	if err != nil {
		t.Fatalf("digestFor: %v", err)
	}
	if !mode3.Verify(pk, digest, sig) {
		t.Fatalf("signature did not verify")
	}
}

func TestReceiptRoundTrip(t *testing.T) {
	acct, err := NewAccount(testSeed(7))
	if err != nil {
		t.Fatalf("NewAccount: %v", err)
	}
	for _, scheme := range []string{SchemeEd25519, SchemeDilithium3} {
		signer, err := acct.NewSigner(scheme)
		if err != nil {
			t.Fatalf("NewSigner(%s): %v", scheme, err)
		}
		if !strings.HasPrefix(signer.PublicKey(), scheme+":") {
			t.Fatalf("%s: public key %q lacks scheme prefix", scheme, signer.PublicKey())
		}
		r, err := SignReceipt(signer, "0xd1", "0xr1", acct.Address())
		if err != nil {
			t.Fatalf("%s: SignReceipt: %v", scheme, err)
		}
		if err := VerifyReceipt(r, "0xd1", "0xr1", acct.Address()); err != nil {
			t.Fatalf("%s: VerifyReceipt: %v", scheme, err)
		}
		if err := VerifyReceipt(r, "0xd1", "0xr2", acct.Address()); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("%s: tampered ref: got %v want ErrBadSignature", scheme, err)
		}
	}
}

func TestDilithiumSignerIsDeterministicPerSeed(t *testing.T) {
	a, _ := NewAccount(testSeed(1))
	b, _ := NewAccount(testSeed(1))
	sa, err := a.NewSigner(SchemeDilithium3)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	sb, err := b.NewSigner(SchemeDilithium3)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if sa.PublicKey() != sb.PublicKey() {
		t.Fatalf("same seed derived different dilithium keys")
	}
}

func TestNewSignerRejectsUnknownScheme(t *testing.T) {
	acct, _ := NewAccount(testSeed(0))
	if _, err := acct.NewSigner("rsa"); err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
}
