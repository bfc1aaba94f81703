package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/repository"
)

type GetAttemptUsecase interface {
	Execute(ctx context.Context, id entity.ID) (*entity.DeploymentAttempt, error)
}

type getAttemptUsecaseImpl struct {
	attemptRepository repository.AttemptRepository
}

// Execute implements GetAttemptUsecase.
func (g *getAttemptUsecaseImpl) Execute(ctx context.Context, id entity.ID) (*entity.DeploymentAttempt, error) {
	return g.attemptRepository.GetByID(ctx, id)
}

func NewGetAttemptUsecase(injector *do.Injector) (GetAttemptUsecase, error) {
	return &getAttemptUsecaseImpl{
		attemptRepository: do.MustInvoke[repository.AttemptRepository](injector),
	}, nil
}
