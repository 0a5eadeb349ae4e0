package repository

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/models"

	"gorm.io/gorm"
)

// CustomerRepository defines the interface for customer data access
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	FindByID(ctx context.Context, id uint) (*models.Customer, error)
	Update(ctx context.Context, customer *models.Customer) error
	List(ctx context.Context, query *ListQuery) ([]models.Customer, int64, error)
	KhataTotals(ctx context.Context, customerIDs []uint) (map[uint]KhataTotals, error)
}

// KhataTotals aggregates every khata of one customer
type KhataTotals struct {
	CustomerID      uint
	TotalAmount     decimal.Decimal
	RemainingAmount decimal.Decimal
	KhataCount      int
	OpenKhataCount  int
}

type customerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Create(ctx context.Context, customer *models.Customer) error {
	return conn(ctx, r.db).Create(customer).Error
}

func (r *customerRepository) FindByID(ctx context.Context, id uint) (*models.Customer, error) {
	var customer models.Customer
	err := conn(ctx, r.db).Scopes(OwnerScope(ctx)).First(&customer, id).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) Update(ctx context.Context, customer *models.Customer) error {
	return conn(ctx, r.db).Omit("Khatas").Save(customer).Error
}

func (r *customerRepository) List(ctx context.Context, query *ListQuery) ([]models.Customer, int64, error) {
	var customers []models.Customer
	var total int64

	db := conn(ctx, r.db).Model(&models.Customer{}).Scopes(OwnerScope(ctx))

	if query != nil && query.Search != "" {
		like := "%" + strings.ToLower(query.Search) + "%"
		db = db.Where("LOWER(name) LIKE ? OR phone LIKE ?", like, like)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = query.order(db, "name ASC, id ASC")
	err := query.paginate(db).Find(&customers).Error
	return customers, total, err
}

// KhataTotals sums all khatas, open and closed, per customer
func (r *customerRepository) KhataTotals(ctx context.Context, customerIDs []uint) (map[uint]KhataTotals, error) {
	totals := make(map[uint]KhataTotals, len(customerIDs))
	if len(customerIDs) == 0 {
		return totals, nil
	}

	var rows []struct {
		CustomerID      uint
		TotalAmount     decimal.Decimal
		RemainingAmount decimal.Decimal
		KhataCount      int
		OpenKhataCount  int
	}

	err := conn(ctx, r.db).
		Model(&models.Khata{}).
		Scopes(OwnerScope(ctx)).
		Select(`customer_id,
			COALESCE(SUM(total_amount), 0) AS total_amount,
			COALESCE(SUM(remaining_amount), 0) AS remaining_amount,
			COUNT(*) AS khata_count,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS open_khata_count`, models.KhataStatusOpen).
		Where("customer_id IN ?", customerIDs).
		Group("customer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		totals[row.CustomerID] = KhataTotals(row)
	}
	return totals, nil
}
