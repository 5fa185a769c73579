// Package app wires all Hanako subsystems: persona, store, authorization,
// LLM clients, memory, the turn pipeline, and the Matrix transport.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdobrica/Hanako/common/crypto"
	"github.com/bdobrica/Hanako/common/version"
	"github.com/bdobrica/Hanako/internal/hanako/assistant"
	"github.com/bdobrica/Hanako/internal/hanako/auth"
	"github.com/bdobrica/Hanako/internal/hanako/chat"
	"github.com/bdobrica/Hanako/internal/hanako/history"
	"github.com/bdobrica/Hanako/internal/hanako/llm"
	"github.com/bdobrica/Hanako/internal/hanako/matrix"
	"github.com/bdobrica/Hanako/internal/hanako/memory"
	"github.com/bdobrica/Hanako/internal/hanako/observability"
	"github.com/bdobrica/Hanako/internal/hanako/persona"
	"github.com/bdobrica/Hanako/internal/hanako/store"
	"github.com/bdobrica/Hanako/internal/hanako/tokenizer"
)

// Config holds the Hanako application configuration. All values are loaded
// from environment variables by cmd/hanako/main.go; everything behavioral
// lives in the persona file.
type Config struct {
	// PersonaFile is the path to the persona YAML.
	PersonaFile string

	// DatabasePath is the path to the SQLite database file.
	DatabasePath string

	// MasterKeyHex is the 64-char hex AES key protecting user API keys at
	// rest.
	MasterKeyHex string

	// Matrix holds the Matrix connection settings.
	Matrix matrix.Config

	// AllowedRooms lists the rooms the bot joins and answers in.
	AllowedRooms []string

	// LLM holds the upstream provider settings.
	LLM LLMConfig

	// LogLevel is "debug", "info", "warn", or "error". Defaults to "info".
	LogLevel string
	// LogFormat is "text" or "json". Defaults to "text".
	LogFormat string
}

// LLMConfig configures the upstream OpenAI-compatible provider.
type LLMConfig struct {
	// APIKey is the shared service key backing premium and trial users.
	APIKey string
	// BaseURL overrides the API base URL (e.g. a local proxy).
	BaseURL string
}

// App is the assembled Hanako application.
type App struct {
	cfg       *Config
	db        *store.Store
	matrixCli *matrix.Client
	asst      *assistant.Assistant
	stopCh    chan struct{}
}

// New creates and initialises all subsystems. It does NOT start any
// goroutines; call Run() for that. A configuration that cannot produce a
// viable token budget fails here instead of failing every turn.
func New(cfg *Config) (*App, error) {
	observability.Setup(cfg.LogLevel, cfg.LogFormat)

	p, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}

	masterKey, err := crypto.ParseMasterKey(cfg.MasterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse master key: %w", err)
	}

	codec := tokenizer.ForModelOrDefault(p.Models.Chat)
	promptCost := codec.CountMessage(chat.TextMessage(chat.RoleSystem, p.SystemPrompt))
	if err := p.CheckBudget(promptCost); err != nil {
		return nil, fmt.Errorf("persona budget: %w", err)
	}

	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	matrixCli, err := matrix.New(&cfg.Matrix, matrix.NewSyncStore(db.DB()))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create matrix client: %w", err)
	}

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
	})

	// With memory disabled the noop embedder produces nil vectors, which
	// turns recall and writeback into no-ops without a separate code path.
	var embedder memory.Embedder = memory.NoopEmbedder{}
	if p.Memory.Enabled {
		embedder = memory.NewOpenAIEmbedder(memory.OpenAIEmbedderConfig{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   p.Models.Embedding,
		})
	}
	index := memory.NewSQLiteIndex(db.DB(), slog.Default())
	augmenter := memory.NewAugmenter(embedder, index, memory.AugmenterConfig{})

	asst := assistant.New(assistant.Config{
		Persona:     p,
		Store:       db,
		Auth:        auth.New(db, masterKey, cfg.LLM.APIKey, p.TrialTokenQuota),
		Sender:      matrixCli,
		Completer:   client,
		Transcriber: client,
		Augmenter:   augmenter,
		Reducer:     history.NewReducer(codec),
		ServiceKey:  cfg.LLM.APIKey,
	})

	return &App{
		cfg:       cfg,
		db:        db,
		matrixCli: matrixCli,
		asst:      asst,
		stopCh:    make(chan struct{}),
	}, nil
}

// Run starts the Matrix sync loop and blocks until SIGINT/SIGTERM or Stop().
func (a *App) Run() error {
	slog.Info("hanako starting",
		"version", version.Version,
		"commit", version.GitCommit,
		"user", a.matrixCli.UserID(),
		"rooms", len(a.cfg.AllowedRooms))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.matrixCli.Start(ctx, a.cfg.AllowedRooms, a.asst.HandleEvent); err != nil {
		return fmt.Errorf("start matrix client: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case <-a.stopCh:
		slog.Info("shutting down", "reason", "stop requested")
	}

	a.matrixCli.Stop()
	cancel()
	if err := a.db.Close(); err != nil {
		slog.Warn("error closing database", "err", err)
	}
	return nil
}

// Stop asks Run to shut down. Safe to call once.
func (a *App) Stop() {
	close(a.stopCh)
}
