package di

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"api-backend/application/ports"
	"api-backend/infrastructure/config"
	"api-backend/infrastructure/observability"
	"api-backend/infrastructure/persistence/dynamodb"
	"api-backend/infrastructure/persistence/memory"
	"api-backend/infrastructure/persistence/postgres"
	"api-backend/infrastructure/persistence/resilience"
	"api-backend/infrastructure/persistence/sqlstore"
	"api-backend/interfaces/http/rest"
	"api-backend/interfaces/http/rest/handlers"
)

const instrumentationName = "api-backend"

// telemetryShutdownTimeout bounds the final span and metric flush.
const telemetryShutdownTimeout = 5 * time.Second

// ProvideAtomicLevel creates the log level shared by the logger and the
// config watcher.
func ProvideAtomicLevel(cfg *config.Config) zap.AtomicLevel {
	return zap.NewAtomicLevelAt(cfg.Level())
}

// ProvideLogger creates a zap logger based on environment
func ProvideLogger(cfg *config.Config, level zap.AtomicLevel) (*zap.Logger, func(), error) {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}

	logger = logger.With(zap.String("service", cfg.Tracing.ServiceName))
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvideTelemetry creates the tracer and meter providers.
func ProvideTelemetry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.Telemetry, func(), error) {
	telemetry, err := observability.NewTelemetry(ctx, observability.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Environment,
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Debug:          cfg.Tracing.Debug,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("Telemetry shutdown failed", zap.Error(err))
		}
	}
	return telemetry, cleanup, nil
}

// ProvideTracer creates the span coordinator used by services and handlers.
func ProvideTracer(telemetry *observability.Telemetry) *observability.Tracer {
	return telemetry.Tracer(instrumentationName)
}

// ProvideHTTPMetrics creates the request instruments.
func ProvideHTTPMetrics(telemetry *observability.Telemetry) (*observability.HTTPMetrics, error) {
	return observability.NewHTTPMetrics(telemetry.Meter(instrumentationName + "/http"))
}

// ProvideDomainMetrics creates the order and product counters.
func ProvideDomainMetrics(telemetry *observability.Telemetry) (*observability.DomainMetrics, error) {
	return observability.NewDomainMetrics(telemetry.Meter(instrumentationName + "/domain"))
}

// ProvideRepository opens the store selected by the config, optionally
// behind a circuit breaker.
func ProvideRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.Repository, func(), error) {
	repo, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Store.BreakerEnabled {
		breakerCfg := resilience.DefaultBreakerConfig("repository-" + cfg.Store.Driver)
		if cfg.Store.BreakerMaxFailures > 0 {
			breakerCfg.MaxFailures = cfg.Store.BreakerMaxFailures
		}
		if cfg.Store.BreakerTimeout > 0 {
			breakerCfg.Timeout = cfg.Store.BreakerTimeout
		}
		repo = resilience.NewRepository(repo, breakerCfg, logger)
	}

	logger.Info("Repository ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Bool("breaker", cfg.Store.BreakerEnabled),
	)

	cleanup := func() {
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close repository", zap.Error(err))
		}
	}
	return repo, cleanup, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (ports.Repository, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewStore(), nil
	case config.DriverSQLite:
		return sqlstore.Open(cfg.SQLiteDSN, logger)
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN, logger)
	case config.DriverDynamoDB:
		client, err := dynamodb.NewClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, err
		}
		return dynamodb.NewStore(client, cfg.DynamoDBTable, logger), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// ProvideProductRepository exposes the product half of the repository.
func ProvideProductRepository(repo ports.Repository) ports.ProductRepository {
	return repo
}

// ProvideOrderRepository exposes the order half of the repository.
func ProvideOrderRepository(repo ports.Repository) ports.OrderRepository {
	return repo
}

// ProvideBodyLimit returns the request body cap.
func ProvideBodyLimit(cfg *config.Config) handlers.BodyLimit {
	return handlers.BodyLimit(cfg.MaxBodyBytes)
}

// ProvideBasePath returns the API mount point.
func ProvideBasePath(cfg *config.Config) rest.BasePath {
	return rest.BasePath(cfg.BasePath)
}

// ProvideHTTPHandler builds the chi router.
func ProvideHTTPHandler(router *rest.Router) *chi.Mux {
	return router.Setup()
}
