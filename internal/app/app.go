// Package app wires configuration into the review moderation components
// shared by the HTTP server and the command line tool.
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/review-moderation/backend/internal/analysis"
	"github.com/review-moderation/backend/internal/api"
	"github.com/review-moderation/backend/internal/llm"
	"github.com/review-moderation/backend/internal/moderation"
	"github.com/review-moderation/backend/internal/reviewform"
	"github.com/review-moderation/backend/internal/session"
	"github.com/review-moderation/backend/pkg/config"
	"github.com/review-moderation/backend/pkg/logger"
)

type App struct {
	Config     *config.Config
	Store      session.Store
	Controller *reviewform.Controller
}

// New builds the session store and the moderation and analysis clients.
// Callers must Close the returned App.
func New(cfg *config.Config) (*App, error) {
	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}

	moderator := moderation.NewClient(moderation.Config{
		BaseURL:          cfg.Moderation.BaseURL,
		APIUser:          cfg.Moderation.APIUser,
		APISecret:        cfg.Moderation.APISecret,
		Lang:             cfg.Moderation.Lang,
		Timeout:          time.Duration(cfg.Moderation.TimeoutSec) * time.Second,
		FailureThreshold: uint32(cfg.Moderation.FailureThreshold),
		OpenTimeout:      time.Duration(cfg.Moderation.OpenTimeoutSec) * time.Second,
	})

	llmClient := llm.NewClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	if cfg.Moderation.APIUser == "" || cfg.Moderation.APISecret == "" {
		logger.Warn("SightEngine credentials missing, moderation will degrade")
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn("OpenAI API key missing, analyses will fail")
	}

	controller := reviewform.NewController(
		store,
		moderator,
		analysis.NewAnalyzer(llmClient),
		time.Duration(cfg.Session.NoticeSec)*time.Second,
	)

	return &App{
		Config:     cfg,
		Store:      store,
		Controller: controller,
	}, nil
}

// NewStore picks the session backend named in the configuration.
func NewStore(cfg *config.Config) (session.Store, error) {
	ttl := time.Duration(cfg.Session.TTLMin) * time.Minute

	switch cfg.Session.Backend {
	case "", "memory":
		logger.Info("Using in-memory session store", zap.Duration("ttl", ttl))
		return session.NewMemoryStore(ttl), nil
	case "redis":
		addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		store, err := session.NewRedisStore(addr, cfg.Redis.Password, cfg.Redis.DB, ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to connect session store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

func (a *App) ServerOptions() api.Options {
	s := a.Config.Server
	return api.Options{
		ReadTimeout:    time.Duration(s.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(s.WriteTimeout) * time.Second,
		BodyLimit:      s.BodyLimit,
		MaxReviewChars: s.MaxReviewChars,
		AllowedOrigins: s.AllowedOrigins,
		IsDevelopment:  s.IsDevelopment,
		SessionTTL:     time.Duration(a.Config.Session.TTLMin) * time.Minute,
		AccessLog:      true,
	}
}

func (a *App) Addr() string {
	return fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
}

func (a *App) Close() error {
	return a.Store.Close()
}
