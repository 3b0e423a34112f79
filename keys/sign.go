package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"xdao.co/origin/model"
)

const (
	SchemeEd25519    = "ed25519"
	SchemeDilithium3 = "dilithium3"
)

var ErrBadSignature = errors.New("keys: signature verification failed")

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", hashAlg)
	}
}

// SignEd25519SHA256 returns a base64 signature over sha256(message).
func SignEd25519SHA256(message []byte, privateKey ed25519.PrivateKey) string {
	digest := sha256.Sum256(message)
	sig := ed25519.Sign(privateKey, digest[:])
	return base64.StdEncoding.EncodeToString(sig)
}

// SignDilithium3 returns a base64 dilithium3 signature over hash(message).
// hashAlg must be one of: sha256, sha512, sha3-256.
func SignDilithium3(message []byte, hashAlg string, privateKey *mode3.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("missing private key")
	}
	digest, err := digestFor(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(privateKey, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

// Signer produces registration receipts.
type Signer interface {
	Scheme() string
	PublicKey() string
	Sign(message []byte) (string, error)
}

type ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  string
}

func (s *ed25519Signer) Scheme() string    { return SchemeEd25519 }
func (s *ed25519Signer) PublicKey() string { return s.pub }
func (s *ed25519Signer) Sign(message []byte) (string, error) {
	return SignEd25519SHA256(message, s.priv), nil
}

type dilithiumSigner struct {
	priv *mode3.PrivateKey
	pub  string
}

func (s *dilithiumSigner) Scheme() string    { return SchemeDilithium3 }
func (s *dilithiumSigner) PublicKey() string { return s.pub }
func (s *dilithiumSigner) Sign(message []byte) (string, error) {
	return SignDilithium3(message, "sha3-256", s.priv)
}

// NewSigner returns the account's signer for scheme ("" means ed25519).
// The dilithium3 key is derived from the account seed.
func (a *Account) NewSigner(scheme string) (Signer, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", SchemeEd25519:
		pub, err := PublicKeyString(a.PublicKey())
		if err != nil {
			return nil, err
		}
		return &ed25519Signer{priv: a.priv, pub: pub}, nil
	case SchemeDilithium3:
		derived, err := DeriveSeed(a.seed, SchemeDilithium3)
		if err != nil {
			return nil, err
		}
		var seed [mode3.SeedSize]byte
		copy(seed[:], derived)
		pk, sk := mode3.NewKeyFromSeed(&seed)
		return &dilithiumSigner{
			priv: sk,
			pub:  SchemeDilithium3 + ":" + base64.StdEncoding.EncodeToString(pk.Bytes()),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported signature scheme %q", scheme)
	}
}

// ReceiptMessage is the byte string a registration receipt signs.
func ReceiptMessage(digest, recordRef, owner string) []byte {
	return []byte("xdao-origin-receipt-v1\n" + digest + "\n" + recordRef + "\n" + owner)
}

// SignReceipt signs digest|recordRef|owner.
func SignReceipt(s Signer, digest, recordRef, owner string) (*model.Receipt, error) {
	sig, err := s.Sign(ReceiptMessage(digest, recordRef, owner))
	if err != nil {
		return nil, err
	}
	return &model.Receipt{Scheme: s.Scheme(), PublicKey: s.PublicKey(), Signature: sig}, nil
}

// VerifyReceipt checks r against digest|recordRef|owner.
func VerifyReceipt(r *model.Receipt, digest, recordRef, owner string) error {
	if r == nil {
		return errors.New("keys: missing receipt")
	}
	sig, err := base64.StdEncoding.DecodeString(r.Signature)
	if err != nil {
		return fmt.Errorf("keys: decode signature: %w", err)
	}
	scheme, b64, ok := strings.Cut(r.PublicKey, ":")
	if !ok || scheme != r.Scheme {
		return fmt.Errorf("keys: public key %q does not match scheme %q", r.PublicKey, r.Scheme)
	}
	pubBytes, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("keys: decode public key: %w", err)
	}
	msg := ReceiptMessage(digest, recordRef, owner)

	switch r.Scheme {
	case SchemeEd25519:
		if len(pubBytes) != ed25519.PublicKeySize {
			return fmt.Errorf("keys: ed25519 public key must be %d bytes", ed25519.PublicKeySize)
		}
		d := sha256.Sum256(msg)
		if !ed25519.Verify(ed25519.PublicKey(pubBytes), d[:], sig) {
			return ErrBadSignature
		}
		return nil
	case SchemeDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pubBytes); err != nil {
			return fmt.Errorf("keys: dilithium3 public key: %w", err)
		}
		d, _ := digestFor("sha3-256", msg)
		if !mode3.Verify(&pk, d, sig) {
			return ErrBadSignature
		}
		return nil
	default:
		return fmt.Errorf("keys: unsupported signature scheme %q", r.Scheme)
	}
}
