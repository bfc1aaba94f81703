package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/bluegreen/internal/environment"
)

type GetEnvironmentUsecase interface {
	Execute(ctx context.Context, name string) (*environment.Status, error)
}

type getEnvironmentUsecaseImpl struct {
	resolver environment.Resolver
}

// Execute implements GetEnvironmentUsecase.
func (g *getEnvironmentUsecaseImpl) Execute(ctx context.Context, name string) (*environment.Status, error) {
	return g.resolver.Status(ctx, name)
}

func NewGetEnvironmentUsecase(injector *do.Injector) (GetEnvironmentUsecase, error) {
	return &getEnvironmentUsecaseImpl{
		resolver: do.MustInvoke[environment.Resolver](injector),
	}, nil
}
