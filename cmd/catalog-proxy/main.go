package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/catalog-pager/pkg/catalog"
	"github.com/Sternrassler/catalog-pager/pkg/logging"
	"github.com/Sternrassler/catalog-pager/pkg/prefs"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.loggingConfig())

	ctx := context.Background()

	store, pinger, closeStore := setupPrefs(ctx, cfg)
	defer closeStore()

	catalogClient, err := catalog.New(catalog.Config{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create catalog client")
	}
	defer catalogClient.Close()

	srv := newServer(catalogClient, store, pinger, cfg.RequestTimeout)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", httpServer.Addr).
			Str("catalog", cfg.BaseURL).
			Str("user_agent", cfg.UserAgent).
			Str("prefs_backend", cfg.PrefsBackend).
			Msg("Starting catalog proxy server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Catalog proxy stopped")
}

// setupPrefs builds the configured preference store.
func setupPrefs(ctx context.Context, cfg Config) (prefs.Store, pinger, func()) {
	if cfg.PrefsBackend == "memory" {
		return prefs.NewMemoryStore(), nil, func() {}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
		DB:   cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisURL).Msg("Failed to connect to Redis")
	}
	log.Info().Str("addr", cfg.RedisURL).Msg("Connected to Redis")

	return prefs.NewRedisStore(redisClient), redisPinger{redisClient}, func() { redisClient.Close() }
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
