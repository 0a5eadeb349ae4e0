package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/models"

	"gorm.io/gorm"
)

// LedgerRepository defines the interface for khata transaction data access
type LedgerRepository interface {
	Create(ctx context.Context, entry *models.KhataTransaction) error
	FindByID(ctx context.Context, id uint) (*models.KhataTransaction, error)
	FindByKhataID(ctx context.Context, khataID uint) ([]models.KhataTransaction, error)
	FindBySaleID(ctx context.Context, saleID uint) ([]models.KhataTransaction, error)
	FindUnlinkedByKhataID(ctx context.Context, khataID uint) ([]models.KhataTransaction, error)
	CalculateBalance(ctx context.Context, khataID uint) (decimal.Decimal, error)
	Delete(ctx context.Context, id uint) error
}

// ledgerRepository handles database operations for khata transactions
type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// Create creates a new ledger entry
func (r *ledgerRepository) Create(ctx context.Context, entry *models.KhataTransaction) error {
	return conn(ctx, r.db).Create(entry).Error
}

func (r *ledgerRepository) FindByID(ctx context.Context, id uint) (*models.KhataTransaction, error) {
	var entry models.KhataTransaction
	err := conn(ctx, r.db).Scopes(OwnerScope(ctx)).First(&entry, id).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindByKhataID lists a khata's entries, newest first
func (r *ledgerRepository) FindByKhataID(ctx context.Context, khataID uint) ([]models.KhataTransaction, error) {
	var entries []models.KhataTransaction
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Where("khata_id = ?", khataID).
		Order("created_at DESC, id DESC").
		Find(&entries).Error
	return entries, err
}

// FindBySaleID retrieves the entries written on behalf of a sale
func (r *ledgerRepository) FindBySaleID(ctx context.Context, saleID uint) ([]models.KhataTransaction, error) {
	var entries []models.KhataTransaction
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Where("originating_sale_id = ?", saleID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// FindUnlinkedByKhataID retrieves entries that carry no sale reference
func (r *ledgerRepository) FindUnlinkedByKhataID(ctx context.Context, khataID uint) ([]models.KhataTransaction, error) {
	var entries []models.KhataTransaction
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Where("khata_id = ? AND originating_sale_id IS NULL", khataID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// CalculateBalance sums charges minus payments for a khata
func (r *ledgerRepository) CalculateBalance(ctx context.Context, khataID uint) (decimal.Decimal, error) {
	var result struct {
		Balance decimal.Decimal
	}

	err := conn(ctx, r.db).
		Model(&models.KhataTransaction{}).
		Scopes(OwnerScope(ctx)).
		Select("COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE -amount END), 0) AS balance", models.TransactionTypeCharge).
		Where("khata_id = ?", khataID).
		Scan(&result).Error

	return result.Balance, err
}

func (r *ledgerRepository) Delete(ctx context.Context, id uint) error {
	return conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Delete(&models.KhataTransaction{}, id).Error
}
