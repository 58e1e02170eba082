package config

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowdesk/internal/security"
	"flowdesk/internal/store"
)

type memSecrets struct {
	values  map[string]string
	failSet bool
}

func (m *memSecrets) Get(name string) (string, error) {
	v, ok := m.values[name]
	if !ok {
		return "", security.ErrSecretNotFound
	}
	return v, nil
}

func (m *memSecrets) Set(name, value string) error {
	if m.failSet {
		return errors.New("keyring locked")
	}
	m.values[name] = value
	return nil
}

func (m *memSecrets) Delete(name string) error {
	delete(m.values, name)
	return nil
}

func newTestStore(t *testing.T) (*Store, *store.SQLiteKV, *memSecrets) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	kv, err := store.NewSQLiteKV(context.Background(), db)
	require.NoError(t, err)

	secrets := &memSecrets{values: map[string]string{}}
	s := NewStore(kv, secrets)
	clock := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s, kv, secrets
}

func validInput() AssistantInput {
	return AssistantInput{
		APIKey:    "sk-test-1234567890",
		Model:     "gpt-4o-realtime-preview",
		Voice:     "verse",
		FetchURL:  "https://flows.example/fetch",
		ActionURL: "https://flows.example/action",
		ManageURL: "https://flows.example/manage",
	}
}

func TestLoadNotConfigured(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSaveAndLoad(t *testing.T) {
	s, kv, secrets := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, validInput()))

	raw, err := kv.Get(ctx, namespace, keyConfig)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-test-1234567890")
	assert.Equal(t, "sk-test-1234567890", secrets.values[secretAPIKey])

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890", cfg.APIKey)
	assert.Equal(t, "verse", cfg.Voice)
	assert.Equal(t, "https://flows.example/action", cfg.ActionURL)
	assert.True(t, cfg.SetupComplete)
	require.Len(t, cfg.History, 1)
	assert.Equal(t, "created", cfg.History[0].Action)
}

func TestSaveKeepsKeyInRecordWhenKeystoreFails(t *testing.T) {
	s, _, secrets := newTestStore(t)
	secrets.failSet = true
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, validInput()))
	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-1234567890", cfg.APIKey)
}

func TestSaveMissingFields(t *testing.T) {
	s, _, _ := newTestStore(t)
	in := validInput()
	in.ManageURL = ""
	assert.ErrorIs(t, s.Save(context.Background(), in), ErrMissingFields)
}

func TestSaveHistoryCapped(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, s.Save(ctx, validInput()))
	}

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.History, maxHistory)
	for _, h := range cfg.History {
		assert.Equal(t, "updated", h.Action)
	}
	assert.True(t, cfg.History[0].Timestamp.Before(cfg.History[9].Timestamp))
}

func TestLoadInvalidRecord(t *testing.T) {
	s, kv, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, kv.Set(ctx, namespace, keyConfig, []byte("not json")))

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadDefaultsVoice(t *testing.T) {
	s, kv, _ := newTestStore(t)
	ctx := context.Background()
	raw, _ := json.Marshal(Assistant{APIKey: "k", Model: "m", FetchURL: "f", ActionURL: "a", ManageURL: "g"})
	require.NoError(t, kv.Set(ctx, namespace, keyConfig, raw))

	cfg, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultVoice, cfg.Voice)
}

func TestStatusAndReset(t *testing.T) {
	s, _, secrets := newTestStore(t)
	ctx := context.Background()

	exists, complete, err := s.Status(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, complete)

	require.NoError(t, s.Save(ctx, validInput()))
	exists, complete, err = s.Status(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.True(t, complete)

	require.NoError(t, s.Reset(ctx))
	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, secrets.values)
}

func TestSettingsDefaultsAndRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	settings, ok, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0.8, settings.Temperature)

	zero := 0.0
	saved, err := s.SaveSettings(ctx, SettingsInput{
		Instructions:     "Be brief.",
		Temperature:      &zero,
		FetchDescription: "Look up client records.",
		FetchSchema:      json.RawMessage(`{"type":"object","properties":{}}`),
		ActionSchema:     json.RawMessage(`null`),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, saved.Temperature)
	assert.Equal(t, 0.5, saved.VADThreshold)
	assert.Equal(t, 300, saved.PrefixPaddingMS)
	assert.Equal(t, 500, saved.SilenceDurationMS)
	assert.Equal(t, DefaultTextChatModel, saved.TextChatModel)
	assert.Nil(t, saved.ActionSchema)

	loaded, ok, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Be brief.", loaded.Instructions)
	assert.JSONEq(t, `{"type":"object","properties":{}}`, string(loaded.FetchSchema))
	assert.False(t, HasSchema(loaded.ActionSchema))

	require.NoError(t, s.ResetSettings(ctx))
	_, ok, err = s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
