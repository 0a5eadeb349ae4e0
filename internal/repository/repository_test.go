package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/database"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testOwner uint = 7

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func ownerCtx() context.Context {
	return WithOwner(context.Background(), testOwner)
}

func TestOwnerScope_WithoutOwnerMatchesNothing(t *testing.T) {
	db := newTestDB(t)
	repo := NewCustomerRepository(db)

	require.NoError(t, repo.Create(ownerCtx(), &models.Customer{OwnerID: testOwner, Name: "Asha"}))

	customers, total, err := repo.List(context.Background(), NewListQuery())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, customers)

	customers, total, err = repo.List(ownerCtx(), NewListQuery())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, customers, 1)
}

func TestOwnerScope_OtherOwnerIsNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewCustomerRepository(db)

	customer := &models.Customer{OwnerID: testOwner, Name: "Asha"}
	require.NoError(t, repo.Create(ownerCtx(), customer))

	_, err := repo.FindByID(WithOwner(context.Background(), testOwner+1), customer.ID)
	assert.True(t, IsNotFound(err))
}

func TestCounter_SeedsFromExistingInvoices(t *testing.T) {
	db := newTestDB(t)
	ctx := ownerCtx()
	sales := NewSaleRepository(db)
	counter := NewCounterRepository(db)

	require.NoError(t, sales.Create(ctx, &models.Sale{OwnerID: testOwner, InvoiceNumber: 41, PaymentMethod: models.PaymentMethodCash}))

	next, err := counter.NextInvoiceNumber(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(42), next)

	next, err = counter.NextInvoiceNumber(ctx, testOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(43), next)

	// owners have independent sequences
	next, err = counter.NextInvoiceNumber(ctx, testOwner+1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)
}

func TestSaleCreate_DuplicateInvoice(t *testing.T) {
	db := newTestDB(t)
	ctx := ownerCtx()
	sales := NewSaleRepository(db)

	require.NoError(t, sales.Create(ctx, &models.Sale{OwnerID: testOwner, InvoiceNumber: 1, PaymentMethod: models.PaymentMethodCash}))
	err := sales.Create(ctx, &models.Sale{OwnerID: testOwner, InvoiceNumber: 1, PaymentMethod: models.PaymentMethodCash})
	assert.ErrorIs(t, err, ErrDuplicateInvoice)
}

func TestSaleCreate_DuplicateClientRef(t *testing.T) {
	db := newTestDB(t)
	ctx := ownerCtx()
	sales := NewSaleRepository(db)
	ref := "OFF-9f8e7d6c"

	require.NoError(t, sales.Create(ctx, &models.Sale{OwnerID: testOwner, InvoiceNumber: 1, ClientRef: &ref, PaymentMethod: models.PaymentMethodCash}))

	err := sales.Create(ctx, &models.Sale{OwnerID: testOwner, InvoiceNumber: 2, ClientRef: &ref, PaymentMethod: models.PaymentMethodCash})
	assert.ErrorIs(t, err, ErrDuplicateClientRef)

	// a fresh reference on a taken number is still an invoice collision
	other := "OFF-00000001"
	err = sales.Create(ctx, &models.Sale{OwnerID: testOwner, InvoiceNumber: 1, ClientRef: &other, PaymentMethod: models.PaymentMethodCash})
	assert.ErrorIs(t, err, ErrDuplicateInvoice)
}

func TestSaleDelete_RemovesItems(t *testing.T) {
	db := newTestDB(t)
	ctx := ownerCtx()
	sales := NewSaleRepository(db)

	sale := &models.Sale{
		OwnerID:       testOwner,
		InvoiceNumber: 1,
		PaymentMethod: models.PaymentMethodCash,
		Items:         []models.SaleItem{{ProductID: 1, Quantity: 2}},
	}
	require.NoError(t, sales.Create(ctx, sale))
	require.NoError(t, sales.Delete(ctx, sale.ID))

	var count int64
	require.NoError(t, db.Model(&models.SaleItem{}).Where("sale_id = ?", sale.ID).Count(&count).Error)
	assert.Zero(t, count)

	_, err := sales.FindByID(ctx, sale.ID)
	assert.True(t, IsNotFound(err))
}

func TestProduct_AtomicDecrement(t *testing.T) {
	db := newTestDB(t)
	ctx := ownerCtx()
	products := NewProductRepository(db)

	product := &models.Product{OwnerID: testOwner, Name: "Rice", Stock: 3}
	require.NoError(t, products.Create(ctx, product))

	ok, err := products.AtomicDecrement(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = products.AtomicDecrement(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok, "only one unit left")

	require.NoError(t, products.Increment(ctx, product.ID, 4))

	reloaded, err := products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Stock)
	assert.Equal(t, uint(3), reloaded.Revision)
}

func TestCustomer_KhataTotalsSumsAllKhatas(t *testing.T) {
	db := newTestDB(t)
	ctx := ownerCtx()
	customers := NewCustomerRepository(db)
	khatas := NewKhataRepository(db)

	customer := &models.Customer{OwnerID: testOwner, Name: "Asha"}
	require.NoError(t, customers.Create(ctx, customer))

	require.NoError(t, khatas.Create(ctx, &models.Khata{
		OwnerID: testOwner, CustomerID: customer.ID, Title: "2023",
		TotalAmount: decimal.NewFromInt(1000), RemainingAmount: decimal.Zero, Status: models.KhataStatusClosed,
	}))
	require.NoError(t, khatas.Create(ctx, &models.Khata{
		OwnerID: testOwner, CustomerID: customer.ID, Title: "2024",
		TotalAmount: decimal.NewFromInt(500), RemainingAmount: decimal.NewFromInt(200), Status: models.KhataStatusOpen,
	}))

	totals, err := customers.KhataTotals(ctx, []uint{customer.ID})
	require.NoError(t, err)

	got := totals[customer.ID]
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(1500)))
	assert.True(t, got.RemainingAmount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, 2, got.KhataCount)
	assert.Equal(t, 1, got.OpenKhataCount)
}

func TestLedger_FindByKhataIDNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := ownerCtx()
	ledger := NewLedgerRepository(db)

	for i := 1; i <= 3; i++ {
		require.NoError(t, ledger.Create(ctx, &models.KhataTransaction{
			OwnerID: testOwner, KhataID: 1, CustomerID: 1,
			Type: models.TransactionTypeCharge, Amount: decimal.NewFromInt(int64(i)),
		}))
	}

	entries, err := ledger.FindByKhataID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Greater(t, entries[0].ID, entries[1].ID)
	assert.Greater(t, entries[1].ID, entries[2].ID)

	balance, err := ledger.CalculateBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(6)))
}
