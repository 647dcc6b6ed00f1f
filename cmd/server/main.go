// File: cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/iyunix/go-lmproxy/internal/config"
	"github.com/iyunix/go-lmproxy/internal/handlers"
	"github.com/iyunix/go-lmproxy/internal/ratelimit"
	"github.com/iyunix/go-lmproxy/internal/repository/chat"
	"github.com/iyunix/go-lmproxy/internal/services"
	"github.com/iyunix/go-lmproxy/internal/services/ai"
	chatservice "github.com/iyunix/go-lmproxy/internal/services/chat"
	"github.com/iyunix/go-lmproxy/internal/services/models"
)

func main() {
	cfg := config.Load()
	logger := services.NewLogger("lmproxy", cfg.Environment, cfg.LogLevel, cfg.VerboseLM)

	// --- Chat Store ---
	chatRepo, err := openChatStore(cfg, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to open chat store: %v", err)
	}

	// --- Backend ---
	aiConfig := ai.DefaultConfig()
	aiConfig.BaseURL = cfg.LMStudioURL
	aiConfig.APIKey = cfg.LMStudioAPIKey
	aiConfig.Timeout = cfg.RequestTimeout
	aiConfig.MaxRetries = cfg.MaxRetries
	aiConfig.SystemPrompt = cfg.SystemPrompt
	aiConfig.Verbose = cfg.VerboseLM
	if err := aiConfig.Validate(); err != nil {
		log.Fatalf("FATAL: Invalid backend configuration: %v", err)
	}

	provider := ai.NewOpenAIProvider(aiConfig, nil, logger)
	registry := models.NewRegistry(provider, &models.Config{
		TTL:         models.DefaultTTL,
		RawPatterns: cfg.ForceRawModels,
	}, logger)
	cascade := ai.NewCascade(provider, registry, ai.NewRetryConfig(aiConfig), aiConfig.SystemPrompt, logger)

	// --- Services ---
	chatConfig := chatservice.DefaultConfig()
	chatConfig.DefaultModel = cfg.DefaultModel
	chatConfig.DefaultMaxTokens = cfg.DefaultMaxTokens
	chatConfig.DefaultTemperature = cfg.DefaultTemperature

	chatService, err := services.NewChatService(chatConfig, chatRepo, provider, registry, cascade, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Chat Service: %v", err)
	}

	// --- Handlers ---
	apiHandler, err := handlers.NewAPIHandler(chatService, cfg.LMStudioURL, logger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize API Handler: %v", err)
	}

	limiter := ratelimit.NewMemoryRateLimiter(&ratelimit.Config{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
		CleanupPeriod:     5 * time.Minute,
	})
	defer limiter.Close()

	r := handlers.NewRouter(handlers.RouterConfig{
		API:       apiHandler,
		Logs:      handlers.NewLogHandler(logger),
		Limiter:   limiter,
		StaticDir: cfg.StaticDir,
		Logger:    logger,
	})

	// --- Server Configuration ---
	port := ":3000"
	if cfg.ServerPort != "" {
		port = ":" + cfg.ServerPort
	}
	srv := &http.Server{
		Addr:              port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Startup Logging ---
	logger.Info("server starting",
		"port", port,
		"local", "http://localhost"+port,
		"lmstudio_url", cfg.LMStudioURL,
		"chat_storage", cfg.ChatStorage,
		"default_model", cfg.DefaultModel,
		"force_raw_models", cfg.ForceRawModels)

	if cfg.WarmupOnStart {
		go warmup(provider, registry, cfg.DefaultModel, logger)
	}

	// --- Start Server in Goroutine ---
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server startup failed: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	logger.Info("server stopped")
}

func openChatStore(cfg *config.Config, logger services.Logger) (chat.ChatRepository, error) {
	if cfg.ChatStorage == "sqlite" {
		db, err := gorm.Open(sqlite.Open(cfg.ChatSQLitePath), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		return chat.NewChatRepository(db, logger)
	}
	return chat.NewFileChatRepository(cfg.ChatsDir, logger), nil
}

// warmup loads a model into backend memory so the first user turn is fast.
// Failures are logged only.
func warmup(provider *ai.OpenAIProvider, registry *models.Registry, model string, logger services.Logger) {
	ctx := context.Background()
	if err := provider.Ping(ctx); err != nil {
		logger.Warn("warmup skipped: backend not reachable", "error", err)
		return
	}

	available := registry.Refresh(ctx, true)
	logger.Info("backend models", "count", len(available), "models", available)

	if model == "" {
		if len(available) == 0 {
			logger.Warn("warmup skipped: no models loaded")
			return
		}
		model = available[0]
	}

	start := time.Now()
	if err := provider.Warmup(ctx, model); err != nil {
		logger.Warn("warmup failed", "model", model, "error", err)
		return
	}
	logger.Info("model warmed up", "model", model, "duration", time.Since(start).String())
}
