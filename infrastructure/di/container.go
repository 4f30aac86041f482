package di

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"api-backend/application/ports"
	"api-backend/infrastructure/config"
	"api-backend/infrastructure/observability"
)

// Container holds all application dependencies
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Level      zap.AtomicLevel
	Telemetry  *observability.Telemetry
	Repository ports.Repository
	Router     *chi.Mux
}
