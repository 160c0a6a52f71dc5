package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tradesync/internal/config"
	apphttp "tradesync/internal/http"
	"tradesync/internal/integrations/telegram"
	"tradesync/internal/integrations/webhook"
	"tradesync/internal/logging"
	syncsvc "tradesync/internal/service/sync"
	storepkg "tradesync/internal/store"
	"tradesync/internal/store/memory"
	"tradesync/internal/store/postgres"
	"tradesync/internal/store/sqlite"
)

func main() {
	dotEnvErr := config.LoadDotEnv(".env")
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	if dotEnvErr != nil {
		// Missing .env is the normal case in containers.
		log.Debug("no .env file loaded", zap.Error(dotEnvErr))
	}

	st := openStore(cfg, log)
	defer func() { _ = st.Close() }()

	hooks := []syncsvc.Hook{
		webhook.NewPublisher(cfg.SyncWebhookURL, cfg.WebhookTimeout, log),
		telegram.NewNotifier(cfg.TelegramBotToken, cfg.TelegramChatID),
	}
	syncService := syncsvc.NewService(st, cfg, log, hooks...)

	srv := apphttp.NewServer(cfg, st, syncService, log)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("tradesync API listening", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(cfg config.Config, log *zap.Logger) storepkg.Store {
	switch cfg.StoreMode {
	case "postgres":
		if cfg.DatabaseURL != "" {
			st, err := postgres.NewStore(cfg.DatabaseURL, cfg.TokenEncryptionKey)
			if err == nil {
				return st
			}
			log.Warn("postgres store unavailable, falling back to memory store", zap.Error(err))
		}
	case "sqlite":
		st, err := sqlite.NewStore(cfg.SQLitePath, cfg.TokenEncryptionKey)
		if err == nil {
			return st
		}
		log.Warn("sqlite store unavailable, falling back to memory store", zap.Error(err))
	}
	return memory.NewStore()
}
