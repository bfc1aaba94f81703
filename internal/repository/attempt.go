package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yz4230/bluegreen/internal/entity"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	Create(ctx context.Context, attempt *entity.DeploymentAttempt) error
	// Update stores the attempt's current fields and any transitions not
	// yet recorded.
	Update(ctx context.Context, attempt *entity.DeploymentAttempt) error
	GetByID(ctx context.Context, id entity.ID) (*entity.DeploymentAttempt, error)
	ListByEnvironment(ctx context.Context, env string, limit int) ([]*entity.DeploymentAttempt, error)
}

type attemptRepositoryImpl struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepositoryImpl{db: db}
}

// Create a new attempt record.
func (r *attemptRepositoryImpl) Create(ctx context.Context, attempt *entity.DeploymentAttempt) error {
	var model Attempt
	model.FromEntity(attempt)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := gorm.G[Attempt](tx).Create(ctx, &model); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return fmt.Errorf("%w: attempt %s", entity.ErrConflict, attempt.ID)
			}
			return err
		}
		return appendTransitions(ctx, tx, attempt, 0)
	})
}

// Update implements AttemptRepository.
func (r *attemptRepositoryImpl) Update(ctx context.Context, attempt *entity.DeploymentAttempt) error {
	var model Attempt
	model.FromEntity(attempt)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Attempt
		if err := tx.Select("created_at").Where("id = ?", model.ID).Take(&existing).Error; err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: attempt %s", entity.ErrNotFound, attempt.ID)
			}
			return err
		}
		model.CreatedAt = existing.CreatedAt
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		recorded, err := gorm.G[Transition](tx).Where("attempt_id = ?", model.ID).Count(ctx, "id")
		if err != nil {
			return err
		}
		return appendTransitions(ctx, tx, attempt, int(recorded))
	})
}

// GetByID finds an attempt with its transitions.
func (r *attemptRepositoryImpl) GetByID(ctx context.Context, id entity.ID) (*entity.DeploymentAttempt, error) {
	found, err := gorm.G[Attempt](r.db).Where("id = ?", id.String()).First(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: attempt %s", entity.ErrNotFound, id)
		}
		return nil, err
	}
	transitions, err := gorm.G[Transition](r.db).Where("attempt_id = ?", found.ID).Order("seq").Find(ctx)
	if err != nil {
		return nil, err
	}
	return found.ToEntity(transitions), nil
}

// ListByEnvironment returns the newest attempts first. A non-positive
// limit returns all of them.
func (r *attemptRepositoryImpl) ListByEnvironment(ctx context.Context, env string, limit int) ([]*entity.DeploymentAttempt, error) {
	q := gorm.G[Attempt](r.db).Where("environment = ?", env).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	founds, err := q.Find(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]*entity.DeploymentAttempt, len(founds))
	for i, f := range founds {
		transitions, err := gorm.G[Transition](r.db).Where("attempt_id = ?", f.ID).Order("seq").Find(ctx)
		if err != nil {
			return nil, err
		}
		res[i] = f.ToEntity(transitions)
	}
	return res, nil
}

func appendTransitions(ctx context.Context, tx *gorm.DB, attempt *entity.DeploymentAttempt, from int) error {
	if from >= len(attempt.Transitions) {
		return nil
	}
	models := make([]Transition, 0, len(attempt.Transitions)-from)
	for i := from; i < len(attempt.Transitions); i++ {
		var m Transition
		m.FromEntity(attempt.ID, i, attempt.Transitions[i])
		models = append(models, m)
	}
	return gorm.G[Transition](tx).CreateInBatches(ctx, &models, len(models))
}
