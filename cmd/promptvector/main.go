package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"promptvector/internal/cache"
	"promptvector/internal/embedding"
	"promptvector/internal/handlers"
	"promptvector/internal/httpserver"
	"promptvector/internal/index"
	"promptvector/internal/metrics"
	"promptvector/pkg/logging"
)

type Config struct {
	Port string

	// cache
	CacheNamespace string
	CacheTTL       time.Duration
	CacheMax       int
	L2Enabled      bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// embedding
	Dimension     int
	RemoteEnabled bool
	Model         string
	APIKey        string
	BaseURL       string
	Priority      string
	LocalModelID  string
	LocalBaseURL  string
	MaxLength     int
	BatchSize     int
}

func LoadConfig() Config {
	return Config{
		Port: getenv("PORT", "8080"),

		CacheNamespace: getenv("CACHE_NAMESPACE", "promptvector"),
		CacheTTL:       time.Duration(getenvInt("CACHE_TTL_SECONDS", 3600)) * time.Second,
		CacheMax:       getenvInt("CACHE_MAX_ENTRIES", 1000),
		L2Enabled:      getenvBool("L2_ENABLED", false),
		RedisAddr:      getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getenvInt("REDIS_DB", 0),

		Dimension:     getenvInt("EMBEDDING_DIMENSION", 0),
		RemoteEnabled: getenvBool("EMBEDDING_ENABLED", true),
		Model:         getenv("EMBEDDING_MODEL", "text-embedding-3-small"),
		APIKey:        os.Getenv("EMBEDDING_API_KEY"),
		BaseURL:       getenv("EMBEDDING_BASE_URL", "https://api.openai.com"),
		Priority:      getenv("PROVIDER_PRIORITY", "remote_first"),
		LocalModelID:  getenv("LOCAL_MODEL_ID", "bge-m3"),
		LocalBaseURL:  getenv("LOCAL_MODEL_URL", "http://127.0.0.1:11434"),
		MaxLength:     getenvInt("EMBEDDING_MAX_LENGTH", 8192),
		BatchSize:     getenvInt("EMBEDDING_BATCH_SIZE", 12),
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("promptvector exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg := LoadConfig()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.Bool("l2_enabled", cfg.L2Enabled),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("provider_priority", cfg.Priority),
		zap.String("embedding_model", cfg.Model),
		zap.String("local_model_id", cfg.LocalModelID),
		zap.Int("dimension", cfg.Dimension),
	)

	// ----- Multi-level cache -----
	// Remote-tier failures degrade to L1-only inside the constructor; no
	// error can surface here.
	store := cache.NewMultiLevel(cache.Config{
		Namespace:     cfg.CacheNamespace,
		DefaultTTL:    cfg.CacheTTL,
		MaxEntries:    cfg.CacheMax,
		L2Enabled:     cfg.L2Enabled,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	}, nil, logger)
	defer store.Close()

	// ----- Embedding engine -----
	embedCfg := embedding.Config{
		Dimension:    cfg.Dimension,
		Enabled:      cfg.RemoteEnabled,
		Model:        cfg.Model,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		LocalModelID: cfg.LocalModelID,
		LocalBaseURL: cfg.LocalBaseURL,
		Priority:     embedding.Priority(cfg.Priority),
		MaxLength:    cfg.MaxLength,
		BatchSize:    cfg.BatchSize,
	}

	local := embedding.NewLocal(embedCfg, logger)
	remote := embedding.NewRemote(embedCfg, logger)

	service, err := embedding.NewService(
		embedCfg,
		local,
		remote,
		cache.NewLoggingStore(store),
		logger,
	)
	if err != nil {
		return err
	}

	// ----- Vector index -----
	// Dimension 0 lets the index pick up the width of the first embedded
	// prompt when the service resolves it dynamically.
	ix, err := index.New(cfg.Dimension)
	if err != nil {
		return err
	}

	// ----- Handlers -----
	embedHandler := handlers.NewEmbedHandler(service)
	searchHandler := handlers.NewSearchHandler(service, ix)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, embedHandler, searchHandler)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting promptvector",
		zap.String("addr", srv.Addr),
		zap.String("provider_priority", cfg.Priority),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// getenv returns the value of the environment variable key or def if not set.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
