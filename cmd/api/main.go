package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/scoutear/gestor-turnos/internal/api"
	"github.com/scoutear/gestor-turnos/internal/booking"
	"github.com/scoutear/gestor-turnos/internal/config"
	"github.com/scoutear/gestor-turnos/internal/database"
	"github.com/scoutear/gestor-turnos/internal/domain"
	"github.com/scoutear/gestor-turnos/internal/events"
	"github.com/scoutear/gestor-turnos/internal/google"
	"github.com/scoutear/gestor-turnos/internal/logging"
	"github.com/scoutear/gestor-turnos/internal/metrics"
	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/repository"
	"github.com/scoutear/gestor-turnos/internal/service"
	"github.com/scoutear/gestor-turnos/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// backends holds the connections shared by adapters and the mirror worker.
type backends struct {
	db     *database.DB
	redis  *redis.Client
	sheets *google.SheetsService
}

func (b *backends) Close() {
	if b.db != nil {
		_ = b.db.Close()
	}
	_ = repository.Close(b.redis)
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	pricing, err := cfg.Pricing()
	if err != nil {
		return err
	}

	deps, err := openBackends(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer deps.Close()
	if deps.sheets != nil {
		deps.sheets.SetLocation(loc)
	}

	adapter, err := buildAdapter(cfg, deps, &logger)
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	bus.Subscribe(events.AllEvents, func(e *events.Event) error {
		logger.Debug().Str("event", e.Type).Msg("event published")
		return nil
	})

	store := booking.NewStore(
		booking.WithSpan(cfg.Court.SpanSlots),
		booking.WithPricing(pricing),
		booking.WithLocation(loc),
	)
	svc := service.NewReservationService(store, adapter, bus, startMirror(ctx, cfg, deps, &logger), logging.Component(&logger, "service"))

	if _, err := svc.LoadWeek(ctx, time.Now()); err != nil {
		logger.Warn().Err(err).Msg("initial week load failed, starting with an empty grid")
	}

	if cfg.Backup.Enabled && deps.db != nil {
		backup := database.NewBackupService(deps.db, cfg.Backup, logging.Component(&logger, "backup"))
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	health, _ := adapter.(domain.HealthChecker)
	httpServer := api.NewHTTPServer(cfg.API, svc, health, cfg.Court.UpcomingLimit, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	go probeHealth(ctx, health, grpcServer, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
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

func needs(cfg *config.Config, backend string) bool {
	return cfg.Storage.Backend == backend || cfg.Storage.Fallback == backend
}

func openBackends(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*backends, error) {
	deps := &backends{}

	if needs(cfg, config.BackendSQLite) || cfg.Google.Mirror {
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, err
		}
		deps.db = db
	}

	if cfg.Redis.Address != "" {
		client := repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, client); err != nil {
			_ = client.Close()
			if needs(cfg, config.BackendRedis) && cfg.Storage.Fallback == "" {
				deps.Close()
				return nil, err
			}
			// the failover adapter or the mirror poll loop covers for it
			logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		} else {
			logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
			deps.redis = client
		}
	}

	if needs(cfg, config.BackendSheets) || cfg.Google.Mirror {
		sheets, err := google.NewSimpleSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID, cfg.Google.SheetName)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("google sheets init: %w", err)
		}
		if err := sheets.EnsureHeader(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not write spreadsheet header")
		}
		if err := sheets.WarmUpCache(ctx); err != nil {
			logger.Warn().Err(err).Msg("spreadsheet row cache warm-up failed")
		}
		sheets.StartCacheRefresh(ctx, models.SheetsCacheTTL*time.Second)
		logger.Info().Str("spreadsheet_id", cfg.Google.SpreadsheetID).Msg("google sheets connected")
		deps.sheets = sheets
	}

	return deps, nil
}

func adapterFor(backend string, cfg *config.Config, deps *backends) (domain.SyncAdapter, error) {
	switch backend {
	case config.BackendMemory:
		return repository.NewMemoryAdapter(), nil
	case config.BackendSQLite:
		return deps.db, nil
	case config.BackendRedis:
		if deps.redis == nil {
			return nil, errors.New("redis backend selected but redis is unreachable")
		}
		return repository.NewRedisAdapter(deps.redis, cfg.Redis.KeyPrefix), nil
	case config.BackendSheets:
		return deps.sheets, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

func buildAdapter(cfg *config.Config, deps *backends, logger *zerolog.Logger) (domain.SyncAdapter, error) {
	if cfg.Storage.Fallback == "" {
		return adapterFor(cfg.Storage.Backend, cfg, deps)
	}

	fallback, err := adapterFor(cfg.Storage.Fallback, cfg, deps)
	if err != nil {
		return nil, err
	}
	primary, err := adapterFor(cfg.Storage.Backend, cfg, deps)
	if err != nil {
		logger.Warn().Err(err).Str("fallback", cfg.Storage.Fallback).Msg("primary storage unavailable, using fallback only")
		return fallback, nil
	}
	logger.Info().
		Str("primary", cfg.Storage.Backend).
		Str("fallback", cfg.Storage.Fallback).
		Msg("storage failover enabled")
	return repository.NewFailoverAdapter(primary, fallback, logging.Component(logger, "failover")), nil
}

// startMirror runs the spreadsheet mirror worker when configured. It returns nil
// otherwise so the service skips enqueueing.
func startMirror(ctx context.Context, cfg *config.Config, deps *backends, logger *zerolog.Logger) domain.SyncWorker {
	if !cfg.Google.Mirror || deps.db == nil || deps.sheets == nil {
		return nil
	}
	w := worker.NewSheetsWorker(
		deps.db,
		deps.sheets,
		deps.redis,
		worker.DefaultRetryPolicy(),
		logging.Component(logger, "sheets-worker"),
		worker.WithKeyPrefix(cfg.Redis.KeyPrefix),
	)
	go w.Start(ctx)
	return w
}

// probeHealth pings the adapter periodically and mirrors the result on the gRPC
// health service.
func probeHealth(ctx context.Context, health domain.HealthChecker, grpcServer *api.GRPCServer, logger *zerolog.Logger) {
	if health == nil {
		return
	}
	ticker := time.NewTicker(models.HealthProbeInterval * time.Second)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := health.Ping(pctx)
			cancel()

			ok := err == nil
			if ok != healthy {
				if ok {
					logger.Info().Msg("sync adapter reachable again")
				} else {
					logger.Warn().Err(err).Msg("sync adapter health check failed")
				}
				healthy = ok
			}
			if grpcServer != nil {
				grpcServer.SetServing(ok)
			}
		}
	}
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

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Int("http_port", cfg.API.HTTP.Port).
		Str("storage", cfg.Storage.Backend).
		Msg("reservation server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("reservation server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
