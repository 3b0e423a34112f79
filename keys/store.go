package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"filippo.io/age"
)

const ageHeader = "age-encryption.org/v1"

// ScryptWorkFactor is the log2 scrypt cost used when sealing key files.
var ScryptWorkFactor = 18

var ErrPassphraseRequired = errors.New("keys: key file is encrypted; passphrase required")

// KeyStore keeps named account seeds under Directory as <name>.key.
type KeyStore struct {
	Directory string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xdao", "origin", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) Path(name string) string {
	return filepath.Join(ks.Directory, name+".key")
}

// Init writes seed under name and returns the account and file path.
func (ks *KeyStore) Init(name string, seed []byte, passphrase string, overwrite bool) (*Account, string, error) {
	if err := CheckName(name); err != nil {
		return nil, "", err
	}
	acct, err := NewAccount(seed)
	if err != nil {
		return nil, "", err
	}
	path := ks.Path(name)
	if err := SaveKeyFile(path, seed, passphrase, overwrite); err != nil {
		return nil, "", err
	}
	return acct, path, nil
}

func (ks *KeyStore) Load(name, passphrase string) (*Account, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	seed, err := LoadKeyFile(ks.Path(name), passphrase)
	if err != nil {
		return nil, err
	}
	return NewAccount(seed)
}

// List returns stored key names, sorted.
func (ks *KeyStore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".key") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".key"))
	}
	sort.Strings(names)
	return names, nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

// SaveKeyFile writes seed as hex. A non-empty passphrase seals it with age scrypt.
func SaveKeyFile(path string, seed []byte, passphrase string, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	payload := []byte(hex.EncodeToString(seed) + "\n")
	if passphrase != "" {
		sealed, err := seal(payload, passphrase)
		if err != nil {
			return err
		}
		payload = sealed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.Write(payload); err != nil {
		return err
	}
	return file.Close()
}

// LoadKeyFile reads a seed written by SaveKeyFile. Encrypted files are
// recognised by their age header.
func LoadKeyFile(path, passphrase string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, []byte(ageHeader)) {
		if passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		data, err = unseal(data, passphrase)
		if err != nil {
			return nil, err
		}
	}
	return ParseSeedHex(string(data))
}

// LoadSeed resolves a seed from an explicit hex value or a key file, in that order.
func LoadSeed(seedHex, keyFile, passphrase string) ([]byte, error) {
	if strings.TrimSpace(seedHex) != "" {
		return ParseSeedHex(seedHex)
	}
	if keyFile != "" {
		return LoadKeyFile(keyFile, passphrase)
	}
	return nil, errors.New("no account key provided")
}

func seal(plaintext []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(ScryptWorkFactor)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func unseal(ciphertext []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting key file: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted key: %w", err)
	}
	return out, nil
}
