// Package environment builds the per-environment components of a release
// from the process config and the environment catalog.
package environment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/do"
	"github.com/yz4230/bluegreen/internal/config"
	"github.com/yz4230/bluegreen/internal/coordinator"
	"github.com/yz4230/bluegreen/internal/deployer"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/metrics"
	"github.com/yz4230/bluegreen/internal/prober"
	"github.com/yz4230/bluegreen/internal/repository"
	"github.com/yz4230/bluegreen/internal/router"
	"github.com/yz4230/bluegreen/internal/runtime"
	"github.com/yz4230/bluegreen/internal/storage"
)

type Resolver interface {
	Spec(name string) (config.Environment, error)
	Registry(name string) (storage.SlotRegistry, error)
	Router(name string) (*router.SymlinkRouter, error)
	Coordinator(name string) (*coordinator.Coordinator, error)
	// Status loads the persisted state of the environment and where the
	// router link points.
	Status(ctx context.Context, name string) (*Status, error)
}

type Status struct {
	*entity.Environment
	RouterSlot entity.SlotID `json:"router_slot,omitempty"`
	// InSync is false when the router link disagrees with the routing state.
	InSync bool `json:"in_sync"`
}

type resolverImpl struct {
	injector *do.Injector
	cfg      *config.Config
	catalog  *config.Catalog
	logger   zerolog.Logger
}

func NewResolver(i *do.Injector) (Resolver, error) {
	return &resolverImpl{
		injector: i,
		cfg:      do.MustInvoke[*config.Config](i),
		catalog:  do.MustInvoke[*config.Catalog](i),
		logger:   do.MustInvoke[zerolog.Logger](i),
	}, nil
}

func (r *resolverImpl) Spec(name string) (config.Environment, error) {
	return r.catalog.Environment(name)
}

func (r *resolverImpl) Registry(name string) (storage.SlotRegistry, error) {
	spec, err := r.Spec(name)
	if err != nil {
		return nil, err
	}
	return storage.NewSlotRegistry(r.cfg.StateDir, name, spec.Ports, r.logger), nil
}

func (r *resolverImpl) Router(name string) (*router.SymlinkRouter, error) {
	spec, err := r.Spec(name)
	if err != nil {
		return nil, err
	}
	return router.NewSymlinkRouter(name, spec.Router, spec.Ports), nil
}

func (r *resolverImpl) Coordinator(name string) (*coordinator.Coordinator, error) {
	spec, err := r.Spec(name)
	if err != nil {
		return nil, err
	}
	rt, err := do.Invoke[runtime.Runtime](r.injector)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrDeploy, err)
	}
	p, err := prober.New(spec.Health)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInvalid, err)
	}
	d := deployer.New(rt, deployer.Options{
		Env:           name,
		HostIP:        spec.Router.HostIP,
		ContainerPort: spec.ContainerPort,
		EnvVars:       spec.EnvVars(),
		StartTimeout:  r.cfg.StartTimeout,
	})
	return coordinator.New(coordinator.Components{
		Registry: storage.NewSlotRegistry(r.cfg.StateDir, name, spec.Ports, r.logger),
		Deployer: d,
		Prober:   p,
		Router:   router.NewSymlinkRouter(name, spec.Router, spec.Ports),
		History:  do.MustInvoke[repository.AttemptRepository](r.injector),
		Metrics:  do.MustInvoke[*metrics.Recorder](r.injector),
	}, coordinator.Options{
		Env:           name,
		ProbeTimeout:  r.cfg.ProbeTimeout,
		ProbeInterval: r.cfg.ProbeInterval,
		SwitchTimeout: r.cfg.SwitchTimeout,
		DrainDelay:    r.cfg.DrainDelay,
	}), nil
}

func (r *resolverImpl) Status(ctx context.Context, name string) (*Status, error) {
	registry, err := r.Registry(name)
	if err != nil {
		return nil, err
	}
	rt, err := r.Router(name)
	if err != nil {
		return nil, err
	}
	env, err := registry.Load(ctx)
	if err != nil {
		return nil, err
	}
	linked, _, err := rt.Active(ctx)
	if err != nil {
		return nil, err
	}
	active := entity.SlotID("")
	if env.Routing != nil {
		active = env.Routing.ActiveSlot
	}
	return &Status{Environment: env, RouterSlot: linked, InSync: linked == active}, nil
}
