package repository

import (
	"context"

	"github.com/sjperalta/khata-api/internal/models"

	"gorm.io/gorm"
)

// ProductRepository defines the interface for the minimal product store
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, id uint) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.Product, error)
	List(ctx context.Context, query *ListQuery) ([]models.Product, int64, error)
	ListAll(ctx context.Context) ([]models.Product, error)
	AtomicDecrement(ctx context.Context, id uint, quantity int) (bool, error)
	Increment(ctx context.Context, id uint, quantity int) error
}

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *models.Product) error {
	return conn(ctx, r.db).Create(product).Error
}

func (r *productRepository) FindByID(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	err := conn(ctx, r.db).Scopes(OwnerScope(ctx)).First(&product, id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindByIDs(ctx context.Context, ids []uint) ([]models.Product, error) {
	var products []models.Product
	if len(ids) == 0 {
		return products, nil
	}
	err := conn(ctx, r.db).Scopes(OwnerScope(ctx)).Where("id IN ?", ids).Find(&products).Error
	return products, err
}

func (r *productRepository) List(ctx context.Context, query *ListQuery) ([]models.Product, int64, error) {
	var products []models.Product
	var total int64

	db := conn(ctx, r.db).Model(&models.Product{}).Scopes(OwnerScope(ctx))

	if query != nil && query.Search != "" {
		like := "%" + query.Search + "%"
		db = db.Where("name LIKE ? OR sku LIKE ?", like, like)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = query.order(db, "name ASC, id ASC")
	err := query.paginate(db).Find(&products).Error
	return products, total, err
}

func (r *productRepository) ListAll(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := conn(ctx, r.db).Scopes(OwnerScope(ctx)).Order("id ASC").Find(&products).Error
	return products, err
}

// AtomicDecrement takes stock only if enough is on hand.
// It returns false when the product is missing or short.
func (r *productRepository) AtomicDecrement(ctx context.Context, id uint, quantity int) (bool, error) {
	result := conn(ctx, r.db).
		Model(&models.Product{}).
		Scopes(OwnerScope(ctx)).
		Where("id = ? AND stock >= ?", id, quantity).
		UpdateColumns(map[string]interface{}{
			"stock":    gorm.Expr("stock - ?", quantity),
			"revision": gorm.Expr("revision + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Increment gives stock back, used by refunds and compensations
func (r *productRepository) Increment(ctx context.Context, id uint, quantity int) error {
	result := conn(ctx, r.db).
		Model(&models.Product{}).
		Scopes(OwnerScope(ctx)).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"stock":    gorm.Expr("stock + ?", quantity),
			"revision": gorm.Expr("revision + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
