package saathi

import (
	"context"
	"fmt"

	"github.com/segfault-society/saathi/gemini"
	"github.com/segfault-society/saathi/logger"
	"github.com/segfault-society/saathi/server"
	"github.com/segfault-society/saathi/sessions"
	"github.com/segfault-society/saathi/stores"
)

// Service bundles the wired components of a running chat backend.
type Service struct {
	Config  *Config
	Store   stores.SessionStore
	Manager *sessions.Manager
	Server  *server.Server
}

// NewService wires the store, generator, session manager and HTTP server
// from a validated configuration.
func NewService(ctx context.Context, cfg *Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode, err := sessions.ParseMode(cfg.Chat.Mode)
	if err != nil {
		return nil, err
	}

	var store stores.SessionStore
	if mode == sessions.ModeServerPersisted {
		store, err = stores.NewStore(stores.NewStoreConfig(cfg.Store.Type, cfg.Store.Connection))
		if err != nil {
			if !cfg.Chat.AllowDegraded {
				return nil, fmt.Errorf("failed to open session store: %w", err)
			}
			logger.L.Error("session store unavailable, continuing degraded", "error", err)
			store = nil
		}
	}

	generator, err := newGenerator(ctx, &cfg.LLM)
	if err != nil {
		return nil, err
	}

	manager := sessions.NewManager(mode, generator).
		WithStore(store).
		WithHistoryLimit(cfg.Chat.HistoryLimit).
		WithAutoCreateSessions(cfg.Chat.AutoCreateSessions).
		WithDegradedMode(cfg.Chat.AllowDegraded)

	return &Service{
		Config:  cfg,
		Store:   store,
		Manager: manager,
		Server:  server.NewServer(manager),
	}, nil
}

func newGenerator(ctx context.Context, cfg *LLMConfig) (sessions.Generator, error) {
	switch cfg.Transport {
	case "", "rest":
		return gemini.NewClient(cfg.Model, cfg.SystemPrompt, cfg.APIKey), nil
	case "sdk":
		return gemini.NewSDKClient(ctx, cfg.Model, cfg.SystemPrompt, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unsupported llm transport: %s", cfg.Transport)
	}
}

// Close releases the store connection if one is open.
func (s *Service) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}
