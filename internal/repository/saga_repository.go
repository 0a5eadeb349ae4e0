package repository

import (
	"context"
	"time"

	"github.com/sjperalta/khata-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SagaRepository persists the step log of sale sagas
type SagaRepository interface {
	Create(ctx context.Context, saga *models.SaleSaga) error
	Update(ctx context.Context, saga *models.SaleSaga) error
	AddStep(ctx context.Context, step *models.SagaStep) error
	UpdateStep(ctx context.Context, step *models.SagaStep) error
	FindByID(ctx context.Context, id uint) (*models.SaleSaga, error)
	FindRecoverable(ctx context.Context, staleBefore time.Time) ([]models.SaleSaga, error)
	CountByState(ctx context.Context, state string) (int64, error)
}

type sagaRepository struct {
	db *gorm.DB
}

// NewSagaRepository creates a new saga repository
func NewSagaRepository(db *gorm.DB) SagaRepository {
	return &sagaRepository{db: db}
}

func (r *sagaRepository) Create(ctx context.Context, saga *models.SaleSaga) error {
	return conn(ctx, r.db).Omit(clause.Associations).Create(saga).Error
}

func (r *sagaRepository) Update(ctx context.Context, saga *models.SaleSaga) error {
	return conn(ctx, r.db).Omit(clause.Associations).Save(saga).Error
}

func (r *sagaRepository) AddStep(ctx context.Context, step *models.SagaStep) error {
	return conn(ctx, r.db).Create(step).Error
}

func (r *sagaRepository) UpdateStep(ctx context.Context, step *models.SagaStep) error {
	return conn(ctx, r.db).Save(step).Error
}

func (r *sagaRepository) FindByID(ctx context.Context, id uint) (*models.SaleSaga, error) {
	var saga models.SaleSaga
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		First(&saga, id).Error
	if err != nil {
		return nil, err
	}
	return &saga, nil
}

// FindRecoverable returns sagas whose compensation failed, and running sagas
// that stopped updating before staleBefore. Recovery runs across owners.
func (r *sagaRepository) FindRecoverable(ctx context.Context, staleBefore time.Time) ([]models.SaleSaga, error) {
	var sagas []models.SaleSaga
	err := conn(ctx, r.db).
		Where("state = ? OR (state = ? AND updated_at < ?)",
			models.SagaStateCompensationFailed, models.SagaStateRunning, staleBefore).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		}).
		Order("id ASC").
		Find(&sagas).Error
	return sagas, err
}

func (r *sagaRepository) CountByState(ctx context.Context, state string) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.SaleSaga{}).Where("state = ?", state).Count(&count).Error
	return count, err
}
