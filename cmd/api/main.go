package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yourusername/buildle-api/internal/config"
	"github.com/yourusername/buildle-api/internal/domain/repository"
	"github.com/yourusername/buildle-api/internal/feed"
	"github.com/yourusername/buildle-api/internal/handler"
	"github.com/yourusername/buildle-api/internal/metrics"
	"github.com/yourusername/buildle-api/internal/middleware"
	pgRepo "github.com/yourusername/buildle-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/buildle-api/internal/repository/redis"
	"github.com/yourusername/buildle-api/internal/service"
	"github.com/yourusername/buildle-api/internal/service/session"
	ws "github.com/yourusername/buildle-api/internal/websocket"
	"github.com/yourusername/buildle-api/internal/words"
	"github.com/yourusername/buildle-api/pkg/auth"
	"github.com/yourusername/buildle-api/pkg/database"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
}

// setupLogger настраивает глобальный zerolog по секции log
func setupLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return log.Logger.With().Str("service", "buildle-api").Logger()
}

func run() error {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := setupLogger(cfg.Log)
	logger.Info().Str("config", configPath).Msg("конфигурация загружена")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Хранилище
	db, err := database.Open(cfg.Database)
	if err != nil {
		return err
	}
	sqlDB, err := database.GetSQLDB(db)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := database.MigrateDB(db, cfg.Database.Driver); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Redis нужен для кеша счета, ленты изменений между инстансами и rate limit
	var (
		redisClient redis.UniversalClient
		cache       repository.CacheRepository
	)
	if cfg.Redis.Enabled() {
		redisClient, err = database.NewUniversalRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info().Str("mode", cfg.Redis.Mode).Msg("successfully connected to Redis")

		cacheRepo, err := redisRepo.NewCacheRepo(redisClient, cfg.Redis.KeyPrefix)
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		cache = cacheRepo
	}

	// Метрики
	var (
		m              *metrics.Metrics
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	// Лента изменений
	var bus feed.Bus
	switch cfg.Feed.Driver {
	case "redis":
		bus, err = feed.NewRedisBus(redisClient, cfg.Feed.ChannelPrefix, cfg.Feed.BufferSize, m, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize redis feed: %w", err)
		}
	default:
		bus = feed.NewLocalBus(cfg.Feed.BufferSize, m, logger)
	}
	defer bus.Close()

	// Словарь
	dict, err := words.LoadDir(cfg.Game.WordsDir)
	if err != nil {
		return fmt.Errorf("failed to load words: %w", err)
	}
	dict, err = dict.Restrict(cfg.Game.AllowedLengths...)
	if err != nil {
		return fmt.Errorf("game.allowed_lengths: %w", err)
	}
	if !dict.Supports(cfg.Game.DefaultLength) {
		return fmt.Errorf("game.default_length %d is not in allowed_lengths %v", cfg.Game.DefaultLength, cfg.Game.AllowedLengths)
	}
	logger.Info().Ints("lengths", dict.Lengths()).Msg("word lists loaded")

	// Репозитории и сервисы
	challengeRepo := pgRepo.NewChallengeRepo(db)
	playerRepo := pgRepo.NewPlayerRepo(db)
	resultRepo := pgRepo.NewResultRepo(db)

	leaderboard := service.NewLeaderboardService(challengeRepo, resultRepo, cache,
		time.Duration(cfg.Redis.StandingsTTLSec)*time.Second, logger)
	challenges := service.NewChallengeService(challengeRepo, playerRepo, dict, bus, m, service.ChallengeConfig{
		PublicURL:         cfg.Server.PublicURL,
		DefaultLength:     cfg.Game.DefaultLength,
		DefaultTargetWins: cfg.Game.DefaultTargetWins,
		StartDelay:        cfg.Game.StartDelay(),
	}, logger)
	rounds := service.NewRoundService(challengeRepo, resultRepo, bus, m, logger)

	tickets, err := auth.NewTicketService(cfg.Auth.TicketSecret,
		time.Duration(cfg.Auth.TicketExpirySec)*time.Second, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("failed to initialize tickets: %w", err)
	}

	// WebSocket
	clientCfg := ws.ClientConfigFrom(cfg.WebSocket)
	hub := ws.NewHub(ws.HubConfig{
		SweepInterval: time.Duration(cfg.WebSocket.IdleSweepInterval) * time.Second,
		IdleTimeout:   2 * clientCfg.PongWait,
	}, m, logger)
	if err := hub.Start(); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	manager := ws.NewManager(hub, session.Deps{
		Challenges:   challenges,
		Leaderboard:  leaderboard,
		Rounds:       rounds,
		Feed:         bus,
		Metrics:      m,
		Logger:       logger,
		TickInterval: time.Duration(cfg.WebSocket.TickMillis) * time.Millisecond,
	}, clientCfg, logger)

	// HTTP
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled && cache != nil {
		limiter = middleware.NewRateLimiter(cache, logger)
	}
	router := handler.NewRouter(handler.RouterDeps{
		Challenges:  handler.NewChallengeHandler(challenges, leaderboard, dict, tickets, cfg.Game.DefaultLength, logger),
		WS:          handler.NewWSHandler(manager, tickets, cfg.Server.AllowedOrigins, logger),
		RateLimiter: limiter,
		RateLimit: middleware.RateLimitConfig{
			MaxRequests: cfg.RateLimit.Requests,
			Window:      time.Duration(cfg.RateLimit.WindowSec) * time.Second,
			KeyPrefix:   "rl:write",
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		Health: func(ctx context.Context) error {
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			if redisClient != nil {
				if err := redisClient.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("redis: %w", err)
				}
			}
			return nil
		},
		Logger: logger,
	})

	// WriteTimeout не задаем: WebSocket-соединения живут дольше любого таймаута
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Server.Port).Str("instance", hub.InstanceID).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	cancel()
	// Закрываем очереди клиентов: каждое соединение получит close-фрейм
	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("server exited properly")
	return nil
}
