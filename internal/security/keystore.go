// Package security keeps the assistant credential out of the config record.
package security

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"flowdesk/internal/log"
)

const keyringService = "flowdesk"

// SecretStore stores named secrets.
type SecretStore interface {
	Get(name string) (string, error)
	Set(name, value string) error
	Delete(name string) error
}

// KeyStore uses the OS keyring and falls back to an encrypted vault file
// when the keyring is unavailable (headless servers, containers).
type KeyStore struct {
	vault *Vault
}

// NewKeyStore creates a key store. vault may be nil, in which case only the
// OS keyring is used.
func NewKeyStore(vault *Vault) *KeyStore {
	return &KeyStore{vault: vault}
}

func (ks *KeyStore) Set(name, value string) error {
	err := keyring.Set(keyringService, name, value)
	if err == nil {
		return nil
	}
	if ks.vault == nil {
		return fmt.Errorf("keyring set %s: %w", name, err)
	}
	log.Debugf("[security] keyring unavailable (%v), using vault", err)
	return ks.vault.Set(name, value)
}

func (ks *KeyStore) Get(name string) (string, error) {
	val, err := keyring.Get(keyringService, name)
	if err == nil {
		return val, nil
	}
	if ks.vault == nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
		}
		return "", fmt.Errorf("keyring get %s: %w", name, err)
	}
	return ks.vault.Get(name)
}

// Delete removes the secret from both backends.
func (ks *KeyStore) Delete(name string) error {
	if err := keyring.Delete(keyringService, name); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		log.Debugf("[security] keyring delete %s: %v", name, err)
	}
	if ks.vault == nil {
		return nil
	}
	return ks.vault.Delete(name)
}

// MaskKey returns a display form of an API key.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "..." + key[len(key)-4:]
}
