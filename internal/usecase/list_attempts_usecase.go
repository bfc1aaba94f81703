package usecase

import (
	"context"

	"github.com/samber/do"
	"github.com/yz4230/bluegreen/internal/config"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/repository"
)

type ListAttemptsUsecase interface {
	Execute(ctx context.Context, env string, limit int) ([]*entity.DeploymentAttempt, error)
}

type listAttemptsUsecaseImpl struct {
	attemptRepository repository.AttemptRepository
}

// Execute implements ListAttemptsUsecase.
func (l *listAttemptsUsecaseImpl) Execute(ctx context.Context, env string, limit int) ([]*entity.DeploymentAttempt, error) {
	if err := config.ValidateName(env); err != nil {
		return nil, err
	}
	return l.attemptRepository.ListByEnvironment(ctx, env, limit)
}

func NewListAttemptsUsecase(injector *do.Injector) (ListAttemptsUsecase, error) {
	return &listAttemptsUsecaseImpl{
		attemptRepository: do.MustInvoke[repository.AttemptRepository](injector),
	}, nil
}
