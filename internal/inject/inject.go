// Package inject wires the services shared by the CLI and the HTTP server.
package inject

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/yz4230/bluegreen/internal/config"
	"github.com/yz4230/bluegreen/internal/environment"
	"github.com/yz4230/bluegreen/internal/metrics"
	"github.com/yz4230/bluegreen/internal/repository"
	"github.com/yz4230/bluegreen/internal/runtime"
	"github.com/yz4230/bluegreen/internal/usecase"
	"gorm.io/gorm"
)

func New(cfg *config.Config, logger zerolog.Logger) *do.Injector {
	injector := do.New()
	Provide(injector, cfg, logger)
	return injector
}

// Provide registers every service on injector. Services are built lazily,
// so commands that never release do not need a container runtime.
func Provide(injector *do.Injector, cfg *config.Config, logger zerolog.Logger) {
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger)
	do.Provide(injector, func(i *do.Injector) (*config.Catalog, error) {
		return config.LoadCatalog(cfg.Catalog)
	})
	do.Provide(injector, func(i *do.Injector) (*gorm.DB, error) {
		return repository.NewSQLiteDB(cfg.StateDir)
	})
	do.Provide(injector, func(i *do.Injector) (repository.AttemptRepository, error) {
		db := do.MustInvoke[*gorm.DB](i)
		return repository.NewAttemptRepository(db), nil
	})
	do.Provide(injector, func(i *do.Injector) (*prometheus.Registry, error) {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return reg, nil
	})
	do.Provide(injector, func(i *do.Injector) (*metrics.Recorder, error) {
		return metrics.NewRecorder(do.MustInvoke[*prometheus.Registry](i)), nil
	})
	do.Provide(injector, func(i *do.Injector) (runtime.Runtime, error) {
		return runtime.NewDocker(cfg.StopTimeout, logger)
	})
	do.Provide(injector, environment.NewResolver)

	do.Provide(injector, usecase.NewReleaseUsecase)
	do.Provide(injector, usecase.NewGetEnvironmentUsecase)
	do.Provide(injector, usecase.NewListAttemptsUsecase)
	do.Provide(injector, usecase.NewGetAttemptUsecase)
}
