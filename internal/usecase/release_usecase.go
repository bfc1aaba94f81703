package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/bluegreen/internal/coordinator"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/environment"
)

type ReleaseInput struct {
	Env          string
	Image        string
	GateExitCode *int
}

type ReleaseUsecase interface {
	Execute(ctx context.Context, input ReleaseInput) (*entity.DeploymentAttempt, error)
}

type releaseUsecaseImpl struct {
	resolver environment.Resolver
}

// Execute implements ReleaseUsecase.
func (r *releaseUsecaseImpl) Execute(ctx context.Context, input ReleaseInput) (*entity.DeploymentAttempt, error) {
	artifact, err := entity.ParseArtifactRef(input.Image)
	if err != nil {
		return nil, err
	}
	c, err := r.resolver.Coordinator(input.Env)
	if err != nil {
		return nil, err
	}
	return c.Release(ctx, coordinator.Request{Artifact: artifact, GateExitCode: input.GateExitCode})
}

func NewReleaseUsecase(injector *do.Injector) (ReleaseUsecase, error) {
	return &releaseUsecaseImpl{
		resolver: do.MustInvoke[environment.Resolver](injector),
	}, nil
}
