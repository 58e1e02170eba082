package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flowdesk/internal/log"
	"flowdesk/internal/security"
	"flowdesk/internal/store"
)

const (
	namespace          = "assistant-config"
	keyConfig          = "config"
	keySettings        = "settings"
	secretAPIKey       = "openai_api_key"
	keyringPlaceholder = "[keyring]"
	maxHistory         = 10
)

var (
	// ErrNotConfigured means setup has never completed.
	ErrNotConfigured = errors.New("configuration not found, please complete setup first")
	// ErrInvalidConfig means the stored configuration could not be read.
	ErrInvalidConfig = errors.New("invalid configuration format")
	// ErrMissingFields is returned by Save when a required field is empty.
	ErrMissingFields = errors.New("missing required fields")
)

// Provider supplies the assistant configuration. It is read once per
// conversation and never mutated by the reader.
type Provider interface {
	Load(ctx context.Context) (*Assistant, error)
}

// Store persists assistant configuration and settings in a KV store. The
// API key lives in a SecretStore; the record only holds a placeholder.
type Store struct {
	kv      store.KV
	secrets security.SecretStore
	now     func() time.Time
}

// NewStore creates a store. secrets may be nil, in which case the key is
// kept in the record.
func NewStore(kv store.KV, secrets security.SecretStore) *Store {
	return &Store{kv: kv, secrets: secrets, now: time.Now}
}

// Load implements Provider.
func (s *Store) Load(ctx context.Context) (*Assistant, error) {
	cfg, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.APIKey == keyringPlaceholder {
		if s.secrets == nil {
			return nil, fmt.Errorf("%w: api key stored in keyring but no keystore available", ErrInvalidConfig)
		}
		key, err := s.secrets.Get(secretAPIKey)
		if err != nil {
			return nil, fmt.Errorf("%w: read api key: %v", ErrInvalidConfig, err)
		}
		cfg.APIKey = key
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}
	return cfg, nil
}

func (s *Store) read(ctx context.Context) (*Assistant, error) {
	raw, err := s.kv.Get(ctx, namespace, keyConfig)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Assistant
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Save validates and writes the configuration, appending to its history.
func (s *Store) Save(ctx context.Context, in AssistantInput) error {
	if in.APIKey == "" || in.Model == "" || in.Voice == "" ||
		in.FetchURL == "" || in.ActionURL == "" || in.ManageURL == "" {
		return ErrMissingFields
	}

	now := s.now().UTC()
	action := "created"
	var history []HistoryEntry
	existing, err := s.read(ctx)
	switch {
	case err == nil:
		action = "updated"
		history = existing.History
	case errors.Is(err, ErrInvalidConfig):
		action = "updated"
		log.Warnf("[config] existing config unreadable, history reset: %v", err)
	case !errors.Is(err, ErrNotConfigured):
		return err
	}
	history = append(history, HistoryEntry{Timestamp: now, Action: action})
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	key := in.APIKey
	if s.secrets != nil {
		if err := s.secrets.Set(secretAPIKey, in.APIKey); err != nil {
			log.Warnf("[config] failed to store api key in keystore, keeping it in the record: %v", err)
		} else {
			key = keyringPlaceholder
		}
	}

	data, err := json.Marshal(Assistant{
		APIKey:        key,
		Model:         in.Model,
		Voice:         in.Voice,
		FetchURL:      in.FetchURL,
		ActionURL:     in.ActionURL,
		ManageURL:     in.ManageURL,
		SetupComplete: true,
		LastUpdated:   now,
		History:       history,
	})
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, namespace, keyConfig, data)
}

// Status reports whether a configuration exists and completed setup.
func (s *Store) Status(ctx context.Context) (exists, setupComplete bool, err error) {
	cfg, err := s.read(ctx)
	if errors.Is(err, ErrNotConfigured) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, cfg.SetupComplete, nil
}

// Reset deletes the configuration and its stored key.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.kv.Delete(ctx, namespace, keyConfig); err != nil {
		return err
	}
	if s.secrets != nil {
		if err := s.secrets.Delete(secretAPIKey); err != nil {
			log.Warnf("[config] failed to delete api key from keystore: %v", err)
		}
	}
	return nil
}

// LoadSettings returns the stored settings. ok is false when none are saved.
func (s *Store) LoadSettings(ctx context.Context) (settings Settings, ok bool, err error) {
	raw, err := s.kv.Get(ctx, namespace, keySettings)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultSettings(), false, nil
	}
	if err != nil {
		return Settings{}, false, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(raw, &settings); err != nil {
		return Settings{}, false, fmt.Errorf("parse settings: %w", err)
	}
	return settings, true, nil
}

// SaveSettings resolves defaults and writes the settings.
func (s *Store) SaveSettings(ctx context.Context, in SettingsInput) (Settings, error) {
	settings := in.Resolve()
	settings.LastUpdated = s.now().UTC()
	data, err := json.Marshal(settings)
	if err != nil {
		return Settings{}, err
	}
	return settings, s.kv.Set(ctx, namespace, keySettings, data)
}

// ResetSettings deletes the stored settings.
func (s *Store) ResetSettings(ctx context.Context) error {
	return s.kv.Delete(ctx, namespace, keySettings)
}
