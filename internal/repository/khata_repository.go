package repository

import (
	"context"
	"time"

	"github.com/sjperalta/khata-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KhataRepository defines the interface for khata and installment data access
type KhataRepository interface {
	Create(ctx context.Context, khata *models.Khata) error
	FindByID(ctx context.Context, id uint) (*models.Khata, error)
	FindByIDWithDetails(ctx context.Context, id uint) (*models.Khata, error)
	FindOpenByCustomer(ctx context.Context, customerID uint) (*models.Khata, error)
	Update(ctx context.Context, khata *models.Khata) error
	List(ctx context.Context, query *KhataQuery) ([]models.Khata, int64, error)
	ListAll(ctx context.Context) ([]models.Khata, error)

	CreateInstallments(ctx context.Context, installments []models.Installment) error
	FindInstallment(ctx context.Context, id uint) (*models.Installment, error)
	UpdateInstallment(ctx context.Context, installment *models.Installment) error
	ListOverdueInstallments(ctx context.Context, now time.Time) ([]models.Installment, error)
	CountOverdueInstallments(ctx context.Context, now time.Time) (int64, error)
}

// KhataQuery extends ListQuery with khata-specific filters
type KhataQuery struct {
	*ListQuery
	CustomerID uint
	Status     string
}

type khataRepository struct {
	db *gorm.DB
}

// NewKhataRepository creates a new khata repository
func NewKhataRepository(db *gorm.DB) KhataRepository {
	return &khataRepository{db: db}
}

func (r *khataRepository) Create(ctx context.Context, khata *models.Khata) error {
	return conn(ctx, r.db).Omit(clause.Associations).Create(khata).Error
}

func (r *khataRepository) FindByID(ctx context.Context, id uint) (*models.Khata, error) {
	var khata models.Khata
	err := conn(ctx, r.db).Scopes(OwnerScope(ctx)).First(&khata, id).Error
	if err != nil {
		return nil, err
	}
	return &khata, nil
}

func (r *khataRepository) FindByIDWithDetails(ctx context.Context, id uint) (*models.Khata, error) {
	var khata models.Khata
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Preload("Customer").
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("due_date ASC, id ASC")
		}).
		First(&khata, id).Error
	if err != nil {
		return nil, err
	}
	return &khata, nil
}

func (r *khataRepository) FindOpenByCustomer(ctx context.Context, customerID uint) (*models.Khata, error) {
	var khata models.Khata
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Where("customer_id = ? AND status = ?", customerID, models.KhataStatusOpen).
		Order("id DESC").
		First(&khata).Error
	if err != nil {
		return nil, err
	}
	return &khata, nil
}

func (r *khataRepository) Update(ctx context.Context, khata *models.Khata) error {
	return conn(ctx, r.db).Omit(clause.Associations).Save(khata).Error
}

func (r *khataRepository) List(ctx context.Context, query *KhataQuery) ([]models.Khata, int64, error) {
	var khatas []models.Khata
	var total int64

	db := conn(ctx, r.db).Model(&models.Khata{}).Scopes(OwnerScope(ctx))

	if query.CustomerID > 0 {
		db = db.Where("customer_id = ?", query.CustomerID)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = query.ListQuery.order(db, "created_at DESC, id DESC")
	err := query.ListQuery.paginate(db).Preload("Customer").Find(&khatas).Error
	return khatas, total, err
}

func (r *khataRepository) ListAll(ctx context.Context) ([]models.Khata, error) {
	var khatas []models.Khata
	err := conn(ctx, r.db).Scopes(OwnerScope(ctx)).Order("id ASC").Find(&khatas).Error
	return khatas, err
}

func (r *khataRepository) CreateInstallments(ctx context.Context, installments []models.Installment) error {
	if len(installments) == 0 {
		return nil
	}
	return conn(ctx, r.db).Create(&installments).Error
}

func (r *khataRepository) FindInstallment(ctx context.Context, id uint) (*models.Installment, error) {
	var installment models.Installment
	err := conn(ctx, r.db).Scopes(OwnerScope(ctx)).First(&installment, id).Error
	if err != nil {
		return nil, err
	}
	return &installment, nil
}

func (r *khataRepository) UpdateInstallment(ctx context.Context, installment *models.Installment) error {
	return conn(ctx, r.db).Save(installment).Error
}

func (r *khataRepository) overdue(ctx context.Context, now time.Time) *gorm.DB {
	return conn(ctx, r.db).
		Model(&models.Installment{}).
		Scopes(OwnerScope(ctx)).
		Where("status <> ? AND due_date < ?", models.InstallmentStatusPaid, now)
}

func (r *khataRepository) ListOverdueInstallments(ctx context.Context, now time.Time) ([]models.Installment, error) {
	var installments []models.Installment
	err := r.overdue(ctx, now).Order("due_date ASC, id ASC").Find(&installments).Error
	return installments, err
}

// CountOverdueInstallments counts overdue installments across all owners
func (r *khataRepository) CountOverdueInstallments(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := conn(ctx, r.db).
		Model(&models.Installment{}).
		Where("status <> ? AND due_date < ?", models.InstallmentStatusPaid, now).
		Count(&count).Error
	return count, err
}
