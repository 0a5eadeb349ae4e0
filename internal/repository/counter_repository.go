package repository

import (
	"context"

	"github.com/sjperalta/khata-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CounterRepository allocates per-owner invoice numbers
type CounterRepository interface {
	NextInvoiceNumber(ctx context.Context, ownerID uint) (int64, error)
}

type counterRepository struct {
	db *gorm.DB
}

// NewCounterRepository creates a new counter repository
func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &counterRepository{db: db}
}

// NextInvoiceNumber increments the owner's counter and returns the new value.
// The first allocation seeds the counter from the highest stored invoice.
func (r *counterRepository) NextInvoiceNumber(ctx context.Context, ownerID uint) (int64, error) {
	var next int64
	err := conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		bumped, err := bump(tx, ownerID)
		if err != nil {
			return err
		}

		if !bumped {
			var max int64
			if err := tx.Model(&models.Sale{}).
				Where("owner_id = ?", ownerID).
				Select("COALESCE(MAX(invoice_number), 0)").
				Scan(&max).Error; err != nil {
				return err
			}

			seed := models.InvoiceCounter{OwnerID: ownerID, Value: max + 1}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed)
			if result.Error != nil {
				return result.Error
			}
			// another allocator seeded first
			if result.RowsAffected == 0 {
				if _, err := bump(tx, ownerID); err != nil {
					return err
				}
			}
		}

		return tx.Model(&models.InvoiceCounter{}).
			Where("owner_id = ?", ownerID).
			Select("value").
			Scan(&next).Error
	})
	return next, err
}

func bump(tx *gorm.DB, ownerID uint) (bool, error) {
	result := tx.Model(&models.InvoiceCounter{}).
		Where("owner_id = ?", ownerID).
		UpdateColumns(map[string]interface{}{
			"value":      gorm.Expr("value + 1"),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	return result.RowsAffected == 1, result.Error
}
