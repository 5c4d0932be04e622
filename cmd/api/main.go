package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fixhub/internal/api"
	"fixhub/internal/config"
	"fixhub/internal/database"
	"fixhub/internal/domain"
	"fixhub/internal/events"
	"fixhub/internal/export"
	"fixhub/internal/google"
	"fixhub/internal/logging"
	"fixhub/internal/metrics"
	"fixhub/internal/models"
	"fixhub/internal/notify"
	"fixhub/internal/repository"
	"fixhub/internal/service"
	"fixhub/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	catalog, err := loadServiceCatalog(&logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	fanout := initFanout(redisClient, &logger)
	bus := events.NewEventBus()

	sheetsService := initGoogleSheets(cfg, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		sw := worker.NewSyncWorker(db, sheetsService, redisClient, worker.RetryPolicy{}, logging.Component(&logger, "sync-worker"))
		go sw.Start(ctx)
		syncWorker = sw
	}

	bookingService := service.NewBookingService(db, fanout, bus, syncWorker, &logger)

	if cfg.Notify.Enabled {
		bot, err := notify.NewBot(cfg.Notify)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		} else {
			notifier := notify.New(bot, cfg.Notify, logging.Component(&logger, "notify"))
			notifier.Attach(bus)
			logger.Info().Msg("telegram notifications enabled")
		}
	}

	exporter := export.NewExporter(bookingService, cfg.Exports.Path, logging.Component(&logger, "export"))

	httpServer := api.NewHTTPServer(cfg.API, bookingService, exporter, logging.Component(&logger, "http"))
	httpServer.SetServiceCatalog(catalog)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadServiceCatalog(logger *zerolog.Logger) ([]models.ServiceCatalogEntry, error) {
	catalogPath := os.Getenv("SERVICES_PATH")
	if catalogPath == "" {
		catalogPath = "configs/services.yaml"
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("services_path", catalogPath).Msg("read service catalog")
		return nil, err
	}

	var catalogConfig struct {
		Services []models.ServiceCatalogEntry `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &catalogConfig); err != nil {
		logger.Error().Err(err).Str("services_path", catalogPath).Msg("parse service catalog")
		return nil, err
	}

	return catalogConfig.Services, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initFanout wires the real-time transport: Redis pub/sub when available,
// failing over to the in-process hub.
func initFanout(redisClient *redis.Client, logger *zerolog.Logger) domain.EventPublisher {
	hub := repository.NewMemoryHub()
	if redisClient == nil {
		return hub
	}
	fanoutLogger := logging.Component(logger, "fanout")
	return repository.NewFailoverPublisher(
		repository.NewRedisPublisher(redisClient),
		hub,
		&fanoutLogger,
	)
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if !cfg.Google.Enabled {
		return nil
	}

	sheetsService, err := google.NewSheetsService(
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
