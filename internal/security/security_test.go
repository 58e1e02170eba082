package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestVaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.enc")
	v := NewVault(path, "correct horse")

	require.NoError(t, v.Set("openai_api_key", "sk-abc123"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-abc123")

	reopened := NewVault(path, "correct horse")
	got, err := reopened.Get("openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-abc123", got)
}

func TestVaultWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.enc")
	require.NoError(t, NewVault(path, "one").Set("k", "v"))

	_, err := NewVault(path, "two").Get("k")
	assert.Error(t, err)
}

func TestVaultMissingAndDelete(t *testing.T) {
	v := NewVault(filepath.Join(t.TempDir(), "vault.enc"), "pw")

	_, err := v.Get("missing")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, v.Set("k", "v"))
	require.NoError(t, v.Delete("k"))
	require.NoError(t, v.Delete("k"))

	_, err = v.Get("k")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestVaultRequiresPassphrase(t *testing.T) {
	v := NewVault(filepath.Join(t.TempDir(), "vault.enc"), "")
	assert.Error(t, v.Set("k", "v"))
}

func TestKeyStoreUsesKeyring(t *testing.T) {
	keyring.MockInit()
	ks := NewKeyStore(nil)

	require.NoError(t, ks.Set("openai_api_key", "sk-live"))
	got, err := ks.Get("openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-live", got)

	require.NoError(t, ks.Delete("openai_api_key"))
	_, err = ks.Get("openai_api_key")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestKeyStoreFallsBackToVault(t *testing.T) {
	keyring.MockInitWithError(assert.AnError)
	defer keyring.MockInit()

	ks := NewKeyStore(NewVault(filepath.Join(t.TempDir(), "vault.enc"), "pw"))
	require.NoError(t, ks.Set("openai_api_key", "sk-vault"))

	got, err := ks.Get("openai_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-vault", got)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "sk-...cdef", MaskKey("sk-1234567890abcdef"))
}
