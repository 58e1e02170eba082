package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Loader reads the server config from an optional JSON file and then
// applies FLOWDESK_* environment overrides (optionally from .env files).
type Loader struct {
	mu       sync.RWMutex
	config   *Server
	filePath string
	envFiles []string
}

// NewLoader creates a loader. filePath may be empty.
func NewLoader(filePath string, envFiles ...string) *Loader {
	return &Loader{filePath: filePath, envFiles: envFiles}
}

// Load builds the config. A missing file or .env file is not an error.
func (l *Loader) Load() (*Server, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg := ServerDefaults()

	if l.filePath != "" {
		data, err := os.ReadFile(l.filePath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	for _, f := range l.envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	l.config = cfg
	return cfg, nil
}

// Get returns the last loaded config, or defaults.
func (l *Loader) Get() *Server {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.config == nil {
		return ServerDefaults()
	}
	return l.config
}

func applyEnv(cfg *Server) error {
	if v := os.Getenv("FLOWDESK_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("FLOWDESK_CORS_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("FLOWDESK_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("FLOWDESK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWDESK_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("FLOWDESK_SEQUENTIAL_DISPATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("FLOWDESK_SEQUENTIAL_DISPATCH: " + err.Error())
		}
		cfg.Agent.SequentialDispatch = b
	}
	if v := os.Getenv("FLOWDESK_VAULT_PASSPHRASE"); v != "" {
		cfg.Security.VaultPassphrase = v
	}
	if v := os.Getenv("FLOWDESK_FALLBACK_API_KEY"); v != "" {
		fb := LLMConfig{Provider: "anthropic", MaxRetries: cfg.LLM.MaxRetries}
		if cfg.FallbackLLM != nil {
			fb = *cfg.FallbackLLM
		}
		fb.APIKey = v
		if p := os.Getenv("FLOWDESK_FALLBACK_PROVIDER"); p != "" {
			fb.Provider = p
		}
		if m := os.Getenv("FLOWDESK_FALLBACK_MODEL"); m != "" {
			fb.Model = m
		}
		cfg.FallbackLLM = &fb
	}
	if v := os.Getenv("FLOWDESK_TELEGRAM_TOKEN"); v != "" {
		tg := &TelegramConfig{Token: v}
		for _, s := range splitAndTrim(os.Getenv("FLOWDESK_TELEGRAM_ALLOWED_IDS")) {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return errors.New("FLOWDESK_TELEGRAM_ALLOWED_IDS: " + err.Error())
			}
			tg.AllowedIDs = append(tg.AllowedIDs, id)
		}
		cfg.Channels.Telegram = tg
	}
	return nil
}

func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
