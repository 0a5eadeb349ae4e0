package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/database"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testOwner uint = 1

type testEnv struct {
	ctx       context.Context
	db        *gorm.DB
	repos     *repository.Repositories
	audit     *AuditService
	ledger    *LedgerService
	sales     *SaleService
	customers *CustomerService
	products  *ProductService
	sleeps    []time.Duration
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{
		ctx:   repository.WithOwner(context.Background(), testOwner),
		db:    db,
		repos: repository.NewRepositories(db),
	}
	env.audit = NewAuditService(env.repos.Audit, nil)
	env.ledger = NewLedgerService(env.repos.Customer, env.repos.Khata, env.repos.Ledger, env.repos.Tx, env.audit, nil)
	env.customers = NewCustomerService(env.repos.Customer, env.audit, nil)
	env.products = NewProductService(env.repos.Product, env.audit)
	env.sales = env.newSaleService(env.ledger, env.repos.Sale)
	return env
}

func (e *testEnv) newSaleService(ledger Ledger, saleRepo repository.SaleRepository) *SaleService {
	svc := NewSaleService(
		saleRepo,
		e.repos.Product,
		e.repos.Khata,
		e.repos.Counter,
		e.repos.Saga,
		e.repos.Tx,
		ledger,
		NewCorrelator(e.repos.Ledger, saleRepo),
		e.audit,
		SaleServiceConfig{InvoiceRetryAttempts: 3},
	)
	svc.sleep = func(d time.Duration) { e.sleeps = append(e.sleeps, d) }
	return svc
}

func (e *testEnv) customer(t *testing.T, name string) *models.Customer {
	t.Helper()
	c, err := e.customers.CreateCustomer(e.ctx, CustomerInput{Name: name})
	require.NoError(t, err)
	return c
}

func (e *testEnv) khata(t *testing.T, customerID uint, total int64) *models.Khata {
	t.Helper()
	res, err := e.ledger.CreateKhata(e.ctx, CreateKhataInput{
		CustomerID:  customerID,
		Title:       "Store credit",
		TotalAmount: decimal.NewFromInt(total),
	})
	require.NoError(t, err)
	return res.Khata
}

func (e *testEnv) product(t *testing.T, name string, buy, sell int64, stock int) *models.Product {
	t.Helper()
	p, err := e.products.CreateProduct(e.ctx, ProductInput{
		Name:      name,
		BuyPrice:  decimal.NewFromInt(buy),
		SellPrice: decimal.NewFromInt(sell),
		Stock:     stock,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) reloadKhata(t *testing.T, id uint) *models.Khata {
	t.Helper()
	k, err := e.repos.Khata.FindByID(e.ctx, id)
	require.NoError(t, err)
	return k
}

func (e *testEnv) stock(t *testing.T, productID uint) int {
	t.Helper()
	p, err := e.repos.Product.FindByID(e.ctx, productID)
	require.NoError(t, err)
	return p.Stock
}

// ledgerBalance is sum(charges) - sum(payments) as stored
func (e *testEnv) ledgerBalance(t *testing.T, khataID uint) decimal.Decimal {
	t.Helper()
	balance, err := e.repos.Ledger.CalculateBalance(e.ctx, khataID)
	require.NoError(t, err)
	return balance
}

func assertMoney(t *testing.T, expected string, actual decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(expected).Equal(actual), "expected %s, got %s", expected, actual.String())
}

func money(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func moneyPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}
