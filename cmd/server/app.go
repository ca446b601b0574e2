// File: cmd/server/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/iyunix/go-chatreplay/internal/config"
	"github.com/iyunix/go-chatreplay/internal/domain"
	"github.com/iyunix/go-chatreplay/internal/events"
	"github.com/iyunix/go-chatreplay/internal/handlers"
	"github.com/iyunix/go-chatreplay/internal/ratelimit"
	"github.com/iyunix/go-chatreplay/internal/registry"
	"github.com/iyunix/go-chatreplay/internal/replay"
	"github.com/iyunix/go-chatreplay/internal/repository/conversation"
	"github.com/iyunix/go-chatreplay/internal/services"
	"github.com/iyunix/go-chatreplay/internal/services/ai"
	"github.com/iyunix/go-chatreplay/internal/services/retrieval"
	"github.com/iyunix/go-chatreplay/internal/streaming"
)

// Application is the wired server. Close releases what NewApplication opened, in
// reverse order.
type Application struct {
	Handler  http.Handler
	Chats    *services.ChatService
	Replays  *services.ReplayService
	Compare  *services.CompareService
	Registry *registry.Registry

	closers []func() error
}

// NewApplication builds every component from cfg. transport overrides the OpenAI
// provider when non-nil.
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, transport ai.Transport) (*Application, error) {
	app := &Application{}

	store, err := app.openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := registry.New(services.NewSlogLogger(logger, "registry"))
	if err := loadRegistry(reg, cfg); err != nil {
		app.Close()
		return nil, err
	}

	if transport == nil {
		provider, err := ai.NewOpenAIProvider(&ai.Config{
			APIKey:              cfg.LLMAPIKey,
			BaseURL:             cfg.LLMBaseURL,
			Timeout:             cfg.LLMTimeout,
			DefaultSystemPrompt: cfg.SystemPrompt,
		}, services.NewSlogLogger(logger, "ai"))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init model provider: %w", err)
		}
		if cfg.ModelSync {
			n, err := reg.Sync(ctx, provider.Client())
			if err != nil {
				logger.Warn("model sync failed; using configured models only", "error", err)
			} else {
				logger.Info("model sync complete", "added", n)
			}
		}
		if cfg.RetrievalEnabled() {
			if err := app.enableRetrieval(cfg, provider, reg, logger); err != nil {
				app.Close()
				return nil, err
			}
		}
		transport = provider
	}

	tracker := streaming.NewTracker()
	broadcaster := events.NewBroadcaster(services.NewSlogLogger(logger, "events"))

	chatConfig := services.DefaultChatConfig()
	chatConfig.DefaultModel = cfg.DefaultModel
	chatConfig.DefaultTemperature = cfg.DefaultTemperature
	chats, err := services.NewChatService(chatConfig, store, reg, transport, tracker, broadcaster,
		services.NewSlogLogger(logger, "chat"))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init chat service: %w", err)
	}

	strategy, err := replay.ParseStrategy(cfg.ReplayRetryStrategy)
	if err != nil {
		app.Close()
		return nil, err
	}
	replays, err := services.NewReplayService(store, replay.Deps{
		Registry:  reg,
		Transport: transport,
		Tracker:   tracker,
		Strategy:  strategy,
		Events:    broadcaster,
	}, replay.Options{AutoAdvance: cfg.ReplayAutoAdvance}, services.NewSlogLogger(logger, "replay"))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init replay service: %w", err)
	}
	chats.AddListener(replays)

	comparisons, err := services.NewCompareService(chats, services.NewSlogLogger(logger, "compare"))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init compare service: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = ratelimit.NewLimiter(ratelimit.InvocationConfig(cfg.RateLimitPerMinute))
		app.closers = append(app.closers, func() error { limiter.Close(); return nil })
	}

	app.Handler = handlers.NewRouter(handlers.RouterDeps{
		Chats:       chats,
		Replays:     replays,
		Compare:     comparisons,
		Registry:    reg,
		Broadcaster: broadcaster,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})
	app.Chats = chats
	app.Replays = replays
	app.Compare = comparisons
	app.Registry = reg
	return app, nil
}

func (a *Application) openStore(cfg *config.Config, logger *slog.Logger) (conversation.ConversationStore, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("using in-memory conversation store; data is lost on restart")
		return conversation.NewMemoryRepository(), nil

	case config.StoreRemote:
		store, err := conversation.NewRemoteRepository(&conversation.RemoteConfig{
			BaseURL: cfg.RemoteStoreURL,
			Token:   cfg.RemoteStoreToken,
			Timeout: cfg.RemoteStoreTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init remote store: %w", err)
		}
		return store, nil

	default:
		var dialector gorm.Dialector
		if cfg.DBDriver == config.DriverPostgres {
			dialector = postgres.Open(cfg.DatabaseDSN)
		} else {
			dialector = sqlite.Open(cfg.DatabaseDSN)
		}
		db, err := gorm.Open(dialector, &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, sqlDB.Close)
		if err := conversation.AutoMigrate(db); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("conversation store ready", "driver", cfg.DBDriver)
		return conversation.NewGormRepository(db), nil
	}
}

func (a *Application) enableRetrieval(cfg *config.Config, provider *ai.OpenAIProvider, reg *registry.Registry, logger *slog.Logger) error {
	rc := retrieval.DefaultConfig()
	rc.APIKey = cfg.PineconeAPIKey
	rc.IndexHost = cfg.PineconeIndexHost
	if cfg.PineconeNamespace != "" {
		rc.Namespace = cfg.PineconeNamespace
	}
	if cfg.EmbeddingModel != "" {
		rc.EmbeddingModel = cfg.EmbeddingModel
	}
	rc.TopK = cfg.RetrievalTopK
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("retrieval config: %w", err)
	}

	querier, err := retrieval.NewPineconeQuerier(rc)
	if err != nil {
		return fmt.Errorf("init pinecone: %w", err)
	}
	a.closers = append(a.closers, querier.Close)

	embedder := retrieval.NewOpenAIEmbedder(provider.Client(), rc.EmbeddingModel)
	provider.RegisterAugmenter(retrieval.AddonID, retrieval.NewAugmenter(rc, embedder, querier,
		services.NewSlogLogger(logger, "retrieval")))
	reg.RegisterAddon(domain.Addon{ID: retrieval.AddonID, Name: "Knowledge retrieval"})
	logger.Info("retrieval addon enabled", "namespace", rc.Namespace, "top_k", rc.TopK)
	return nil
}

// loadRegistry reads the registry file when present and always makes the default
// model resolvable.
func loadRegistry(reg *registry.Registry, cfg *config.Config) error {
	if cfg.ModelRegistryFile != "" {
		if _, err := os.Stat(cfg.ModelRegistryFile); err == nil {
			if err := reg.LoadFile(cfg.ModelRegistryFile); err != nil {
				return err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat registry file: %w", err)
		}
	}
	if _, ok := reg.Resolve(cfg.DefaultModel); !ok {
		reg.Register(domain.Model{EntityInfo: domain.EntityInfo{EntityID: cfg.DefaultModel}})
	}
	return nil
}

// Close runs the registered closers and joins their errors.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
