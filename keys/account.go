package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/sha3"
)

// Account is the service identity: an Ed25519 key with a derived address.
type Account struct {
	seed []byte
	priv ed25519.PrivateKey
}

// NewAccount builds an account from a 32-byte seed.
func NewAccount(seed []byte) (*Account, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	s := append([]byte(nil), seed...)
	return &Account{seed: s, priv: ed25519.NewKeyFromSeed(s)}, nil
}

// GenerateSeed reads a fresh seed from rand.
func GenerateSeed(rand io.Reader) ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(rand, seed); err != nil {
		return nil, err
	}
	return seed, nil
}

func (a *Account) PublicKey() ed25519.PublicKey { return a.priv.Public().(ed25519.PublicKey) }

// Address is "0x" + hex of the last 20 bytes of keccak256(public key).
func (a *Account) Address() string { return AddressOf(a.PublicKey()) }

func AddressOf(pub ed25519.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(pub)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

// PublicKeyString encodes an Ed25519 public key as "ed25519:" + base64.
func PublicKeyString(pub ed25519.PublicKey) (string, error) {
	if l := len(pub); l != ed25519.PublicKeySize {
		return "", fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, l)
	}
	return SchemeEd25519 + ":" + base64.StdEncoding.EncodeToString(pub), nil
}

// Seed returns a copy of the account seed.
func (a *Account) Seed() []byte { return append([]byte(nil), a.seed...) }
