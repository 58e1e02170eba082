package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/panjf2000/ants/v2"

	"flowdesk/internal/agent"
	"flowdesk/internal/channel"
	"flowdesk/internal/config"
	"flowdesk/internal/dispatch"
	"flowdesk/internal/eventbus"
	"flowdesk/internal/llm"
	"flowdesk/internal/log"
	"flowdesk/internal/logsvc"
	"flowdesk/internal/memory"
	"flowdesk/internal/realtime"
	"flowdesk/internal/security"
	"flowdesk/internal/server"
	"flowdesk/internal/store"
	"flowdesk/internal/tool"
)

const (
	keyringPlaceholder      = "[keyring]"
	secretNameTelegramToken = "telegram_token"
)

// App holds the wired application.
type App struct {
	cfg         *config.Server
	db          *sql.DB
	bus         *eventbus.Bus
	keyStore    *security.KeyStore
	configs     *config.Store
	logs        *logsvc.Service
	transcripts *memory.SQLiteTranscripts
	pool        *ants.Pool
	driver      *agent.Driver
	issuer      *realtime.Issuer
	chanMgr     *channel.Manager
}

// NewApp opens storage and wires every component from cfg.
func NewApp(ctx context.Context, cfg *config.Server) (*App, error) {
	a := &App{cfg: cfg, bus: eventbus.New()}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := store.Open(filepath.Join(cfg.Storage.DataDir, "flowdesk.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	kv, err := store.NewSQLiteKV(ctx, a.db)
	if err != nil {
		return fmt.Errorf("init kv store: %w", err)
	}

	// Secure key store: OS keyring first, encrypted vault when a passphrase
	// is configured.
	var vault *security.Vault
	if a.cfg.Security.VaultPassphrase != "" {
		vault = security.NewVault(filepath.Join(a.cfg.Storage.DataDir, "secrets.vault"), a.cfg.Security.VaultPassphrase)
	}
	a.keyStore = security.NewKeyStore(vault)
	a.resolveSecrets()

	a.configs = config.NewStore(kv, a.keyStore)

	a.logs = logsvc.New(a.cfg.Storage.LogRingSize, logsvc.WithStore(kv))
	if err := a.logs.Restore(ctx); err != nil {
		log.Warnf("restore diagnostic logs: %v", err)
	}
	a.logs.Subscribe(a.bus)

	a.transcripts, err = memory.NewSQLiteTranscripts(ctx, a.db)
	if err != nil {
		return fmt.Errorf("init transcripts: %w", err)
	}

	agentCfg := a.cfg.Agent
	opts := []agent.Option{
		agent.WithBus(a.bus),
		agent.WithTranscripts(a.transcripts),
		agent.WithSettings(a.configs),
		agent.WithSystemPrompt(agentCfg.SystemPrompt),
		agent.WithDefaultModel(agentCfg.DefaultModel),
		agent.WithModelTimeout(seconds(agentCfg.ModelTimeoutSecs)),
	}
	if agentCfg.SequentialDispatch {
		opts = append(opts, agent.WithSequentialDispatch())
	} else {
		a.pool, err = ants.NewPool(agentCfg.DispatchPoolSize, ants.WithPanicHandler(func(p any) {
			log.Errorf("tool dispatch panicked: %v", p)
		}))
		if err != nil {
			return fmt.Errorf("create dispatch pool: %w", err)
		}
		opts = append(opts, agent.WithPool(a.pool))
	}

	catalog := tool.Default()
	dispatcher := dispatch.New(catalog, dispatch.WithTimeout(seconds(agentCfg.DispatchTimeoutSecs)))
	a.driver = agent.New(a.configs, a.newModel, catalog, dispatcher, opts...)
	a.issuer = realtime.NewIssuer(a.configs, a.configs, catalog)

	a.chanMgr = channel.NewManager(a.bus)
	if tg := a.cfg.Channels.Telegram; tg != nil && tg.Token != "" && tg.Token != keyringPlaceholder {
		a.chanMgr.Register(channel.NewTelegramChannel(channel.TelegramConfig{
			Token:      tg.Token,
			AllowedIDs: tg.AllowedIDs,
		}))
	}
	return nil
}

// newModel builds the chat provider for one conversation. The stored
// assistant key is used unless the server config names its own.
func (a *App) newModel(assistant *config.Assistant) (llm.Provider, error) {
	primary := a.cfg.LLM
	if primary.APIKey == "" {
		primary.APIKey = assistant.APIKey
	}
	return llm.NewChain(primary, a.cfg.FallbackLLM)
}

// resolveSecrets loads the Telegram token from the key store, or moves a
// plaintext token into it on first run.
func (a *App) resolveSecrets() {
	tg := a.cfg.Channels.Telegram
	if tg == nil || tg.Token == "" {
		return
	}
	if tg.Token == keyringPlaceholder {
		val, err := a.keyStore.Get(secretNameTelegramToken)
		if err != nil {
			log.Warnf("failed to read Telegram token from keyring: %v", err)
			return
		}
		tg.Token = val
		return
	}
	if err := a.keyStore.Set(secretNameTelegramToken, tg.Token); err != nil {
		log.Debugf("Telegram token stays in config: %v", err)
		return
	}
	log.Infof("Stored Telegram token in secure storage; config may use %q from now on", keyringPlaceholder)
}

// Serve runs the HTTP API and any messaging channels until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	a.chanMgr.Route(ctx, a.driver)
	if err := a.chanMgr.StartAll(ctx); err != nil {
		log.Errorf("failed to start channels: %v", err)
	}
	defer a.chanMgr.StopAll(context.Background())

	srv := server.New(a.driver, a.configs,
		server.WithLogs(a.logs),
		server.WithIssuer(a.issuer),
		server.WithTranscripts(a.transcripts),
		server.WithAllowedOrigins(a.cfg.HTTP.AllowedOrigins...),
	)
	return srv.ListenAndServe(ctx, a.cfg.HTTP)
}

// Chat runs an interactive session on in and out until input ends or ctx
// is done.
func (a *App) Chat(ctx context.Context, in io.Reader, out io.Writer) error {
	console := channel.NewConsoleChannel(in, out)
	mgr := channel.NewManager(a.bus)
	mgr.Register(console)
	mgr.Route(ctx, a.driver)
	if err := mgr.StartAll(ctx); err != nil {
		return err
	}
	defer mgr.StopAll(context.Background())

	select {
	case <-console.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Close releases every resource NewApp acquired.
func (a *App) Close() {
	if a.driver != nil {
		a.driver.Close()
	}
	if a.pool != nil {
		a.pool.Release()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warnf("close database: %v", err)
		}
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
