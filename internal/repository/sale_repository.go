package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sjperalta/khata-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDuplicateInvoice is returned when the invoice number is already taken
	ErrDuplicateInvoice = errors.New("duplicate invoice number")
	// ErrDuplicateClientRef is returned when another request already stored the client reference
	ErrDuplicateClientRef = errors.New("duplicate client reference")
)

// SaleRepository defines the interface for sale data access
type SaleRepository interface {
	Create(ctx context.Context, sale *models.Sale) error
	FindByID(ctx context.Context, id uint) (*models.Sale, error)
	FindByClientRef(ctx context.Context, clientRef string) (*models.Sale, error)
	FindByInvoiceNumbers(ctx context.Context, khataID uint, numbers []int64) ([]models.Sale, error)
	Update(ctx context.Context, sale *models.Sale) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, query *SaleQuery) ([]models.Sale, int64, error)
	ListSince(ctx context.Context, since time.Time) ([]models.Sale, error)
}

// SaleQuery extends ListQuery with sale-specific filters
type SaleQuery struct {
	*ListQuery
	Status  string
	KhataID uint
}

type saleRepository struct {
	db *gorm.DB
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

// Create inserts the sale with its items in one transaction.
// A taken client reference is reported as ErrDuplicateClientRef, any other
// unique violation as ErrDuplicateInvoice.
func (r *saleRepository) Create(ctx context.Context, sale *models.Sale) error {
	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		return tx.Create(sale).Error
	})
	if !IsUniqueViolation(err) {
		return err
	}
	// translated errors drop the index name, so look the reference up instead
	if sale.ClientRef != nil && r.clientRefTaken(ctx, sale.OwnerID, *sale.ClientRef) {
		return ErrDuplicateClientRef
	}
	return ErrDuplicateInvoice
}

func (r *saleRepository) clientRefTaken(ctx context.Context, ownerID uint, clientRef string) bool {
	var count int64
	err := conn(ctx, r.db).Model(&models.Sale{}).
		Where("owner_id = ? AND client_ref = ?", ownerID, clientRef).
		Count(&count).Error
	return err == nil && count > 0
}

func (r *saleRepository) FindByID(ctx context.Context, id uint) (*models.Sale, error) {
	var sale models.Sale
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&sale, id).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *saleRepository) FindByClientRef(ctx context.Context, clientRef string) (*models.Sale, error) {
	var sale models.Sale
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Preload("Items").
		Where("client_ref = ?", clientRef).
		First(&sale).Error
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *saleRepository) FindByInvoiceNumbers(ctx context.Context, khataID uint, numbers []int64) ([]models.Sale, error) {
	var sales []models.Sale
	if len(numbers) == 0 {
		return sales, nil
	}
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Where("khata_id = ? AND invoice_number IN ?", khataID, numbers).
		Find(&sales).Error
	return sales, err
}

func (r *saleRepository) Update(ctx context.Context, sale *models.Sale) error {
	return conn(ctx, r.db).Omit(clause.Associations).Save(sale).Error
}

// Delete removes the sale and its items
func (r *saleRepository) Delete(ctx context.Context, id uint) error {
	ownerID, ok := OwnerFrom(ctx)
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("sale_id = ?", id).Delete(&models.SaleItem{}).Error; err != nil {
			return err
		}
		result := tx.Where("owner_id = ?", ownerID).Delete(&models.Sale{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *saleRepository) List(ctx context.Context, query *SaleQuery) ([]models.Sale, int64, error) {
	var sales []models.Sale
	var total int64

	db := conn(ctx, r.db).Model(&models.Sale{}).Scopes(OwnerScope(ctx))

	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.KhataID > 0 {
		db = db.Where("khata_id = ?", query.KhataID)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = query.ListQuery.order(db, "invoice_number DESC")
	err := query.ListQuery.paginate(db).Preload("Items").Find(&sales).Error
	return sales, total, err
}

// ListSince returns sales created at or after since, with items
func (r *saleRepository) ListSince(ctx context.Context, since time.Time) ([]models.Sale, error) {
	var sales []models.Sale
	err := conn(ctx, r.db).
		Scopes(OwnerScope(ctx)).
		Where("created_at >= ?", since).
		Preload("Items").
		Order("invoice_number ASC").
		Find(&sales).Error
	return sales, err
}
