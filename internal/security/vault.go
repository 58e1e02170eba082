package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// ErrSecretNotFound is returned when a secret name has no stored value.
var ErrSecretNotFound = errors.New("secret not found")

// vaultFile is the on-disk layout: the argon2 salt travels with the
// ciphertext so the vault can be reopened with only the passphrase.
type vaultFile struct {
	Salt  []byte `json:"salt"`
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

// Vault is an AES-256-GCM encrypted JSON map of secrets stored in one file.
type Vault struct {
	mu         sync.Mutex
	path       string
	passphrase string
}

// NewVault returns a vault at path sealed with passphrase.
func NewVault(path, passphrase string) *Vault {
	return &Vault{path: path, passphrase: passphrase}
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func (v *Vault) Get(name string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	secrets, err := v.load()
	if err != nil {
		return "", err
	}
	val, ok := secrets[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return val, nil
}

func (v *Vault) Set(name, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	secrets, err := v.load()
	if err != nil {
		return err
	}
	secrets[name] = value
	return v.save(secrets)
}

func (v *Vault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	secrets, err := v.load()
	if err != nil {
		return err
	}
	if _, ok := secrets[name]; !ok {
		return nil
	}
	delete(secrets, name)
	return v.save(secrets)
}

func (v *Vault) load() (map[string]string, error) {
	if v.passphrase == "" {
		return nil, errors.New("vault passphrase not set")
	}
	raw, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	var f vaultFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse vault: %w", err)
	}
	gcm, err := newGCM(deriveKey(v.passphrase, f.Salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, f.Nonce, f.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt vault: %w", err)
	}

	secrets := make(map[string]string)
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("parse vault contents: %w", err)
	}
	return secrets, nil
}

func (v *Vault) save(secrets map[string]string) error {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return err
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := newGCM(deriveKey(v.passphrase, salt))
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	out, err := json.Marshal(vaultFile{
		Salt:  salt,
		Nonce: nonce,
		Data:  gcm.Seal(nil, nonce, plaintext, nil),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(v.path, out, 0600)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
