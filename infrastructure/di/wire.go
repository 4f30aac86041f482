//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"api-backend/application/services"
	"api-backend/infrastructure/config"
	"api-backend/interfaces/http/rest"
	"api-backend/interfaces/http/rest/handlers"
)

// ObservabilitySet provides logging, tracing and metrics.
var ObservabilitySet = wire.NewSet(
	ProvideAtomicLevel,
	ProvideLogger,
	ProvideTelemetry,
	ProvideTracer,
	ProvideHTTPMetrics,
	ProvideDomainMetrics,
)

// PersistenceSet provides the repository selected by the config.
var PersistenceSet = wire.NewSet(
	ProvideRepository,
	ProvideProductRepository,
	ProvideOrderRepository,
)

// ApplicationSet provides the domain services.
var ApplicationSet = wire.NewSet(
	services.NewProductService,
	services.NewOrderService,
)

// InterfaceSet provides the HTTP layer.
var InterfaceSet = wire.NewSet(
	ProvideBodyLimit,
	ProvideBasePath,
	handlers.NewOrderHandler,
	handlers.NewProductHandler,
	rest.NewRouter,
	ProvideHTTPHandler,
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ObservabilitySet,
	PersistenceSet,
	ApplicationSet,
	InterfaceSet,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The returned cleanup
// closes the repository, flushes telemetry and syncs the logger.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
