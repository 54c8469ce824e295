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

	"prostor/internal/api"
	"prostor/internal/config"
	"prostor/internal/database"
	"prostor/internal/domain"
	"prostor/internal/events"
	"prostor/internal/logging"
	"prostor/internal/metrics"
	"prostor/internal/models"
	"prostor/internal/repository"
	"prostor/internal/service"
	"prostor/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	places, spaces, err := loadCatalog(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, places, spaces, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	guard, guardCloser := initGuard(cfg, &logger)
	if guardCloser != nil {
		defer guardCloser.Close()
	}

	eventBus := initEventBus(&logger)

	reservations := service.NewReservationService(
		db, db, guard, eventBus, domain.SystemClock{}, cfg.Booking.MaxPerWeek, &logger)

	httpServer := api.NewHTTPServer(&cfg.API, reservations, db, cfg.Exports.Path, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	sweeper := worker.NewCompletionSweeper(db, eventBus, domain.SystemClock{}, cfg.Booking.SweepInterval(), &logger)
	go sweeper.Run(ctx)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

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

func loadCatalog(cfg *config.Config, logger *zerolog.Logger) ([]*models.Place, []*models.Space, error) {
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = cfg.Catalog.Path
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("read catalog")
		return nil, nil, err
	}

	var catalog struct {
		Places []models.Place `yaml:"places"`
		Spaces []models.Space `yaml:"spaces"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("parse catalog")
		return nil, nil, err
	}

	places := make([]*models.Place, len(catalog.Places))
	for i := range catalog.Places {
		places[i] = &catalog.Places[i]
	}
	spaces := make([]*models.Space, len(catalog.Spaces))
	for i := range catalog.Spaces {
		spaces[i] = &catalog.Spaces[i]
	}

	logger.Info().Int("places", len(places)).Int("spaces", len(spaces)).Msg("catalog loaded")
	return places, spaces, nil
}

func initDatabase(cfg *config.Config, places []*models.Place, spaces []*models.Space, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	db.SetCatalog(places, spaces)
	return db, nil
}

// initGuard picks the admission guard: in-process when redis is absent or
// unreachable, redis with in-process failover otherwise.
func initGuard(cfg *config.Config, logger *zerolog.Logger) (domain.AdmissionGuard, io.Closer) {
	memory := repository.NewMemoryGuard(cfg.Booking.GuardTimeout())

	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, using in-process admission guard")
		return memory, nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, using in-process admission guard")
		_ = client.Close()
		return memory, nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	redisGuard := repository.NewRedisGuard(client, cfg.Booking.GuardTTL(), cfg.Booking.GuardTimeout())
	return repository.NewFailoverGuard(redisGuard, memory, logger), client
}

func initEventBus(logger *zerolog.Logger) *events.EventBus {
	bus := events.NewEventBus()

	logEvent := func(event *events.Event) error {
		logger.Debug().
			Str("event_type", event.Type).
			RawJSON("payload", event.Payload).
			Msg("domain event")
		return nil
	}
	for _, eventType := range []string{
		events.EventReservationCreated,
		events.EventReservationUpdated,
		events.EventReservationCancelled,
		events.EventReservationDeleted,
		events.EventSweepCompleted,
	} {
		bus.Subscribe(eventType, logEvent)
	}

	return bus
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

	logger.Info().Int("http_port", cfg.API.Port).Msg("API server started")

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
