package services

import (
	"testing"
	"time"

	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomer_SummaryAggregatesAllKhatas(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Asha")

	first := env.khata(t, c.ID, 400)
	_, err := env.ledger.AddPayment(env.ctx, first.ID, EntryInput{Amount: money(400)})
	require.NoError(t, err)
	env.khata(t, c.ID, 250)

	summary, err := env.customers.GetCustomer(env.ctx, c.ID)
	require.NoError(t, err)
	assertMoney(t, "650", summary.TotalAmount)
	assertMoney(t, "250", summary.RemainingAmount)
	assert.Equal(t, 2, summary.KhataCount)
	assert.Equal(t, 1, summary.OpenKhataCount)
}

func TestCustomer_CreateAndUpdate(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.customers.CreateCustomer(env.ctx, CustomerInput{Name: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	c, err := env.customers.CreateCustomer(env.ctx, CustomerInput{Name: " Asha ", Phone: "0300 1234567"})
	require.NoError(t, err)
	assert.Equal(t, "Asha", c.Name)
	assert.Equal(t, testOwner, c.OwnerID)

	updated, err := env.customers.UpdateCustomer(env.ctx, c.ID, CustomerInput{Name: "Asha Bibi", Phone: c.Phone})
	require.NoError(t, err)
	assert.Equal(t, "Asha Bibi", updated.Name)

	_, err = env.customers.UpdateCustomer(env.ctx, 999, CustomerInput{Name: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCustomer_ListSearch(t *testing.T) {
	env := newTestEnv(t)
	env.customer(t, "Asha")
	env.customer(t, "Bilal")
	env.customer(t, "Ashraf")

	all, total, err := env.customers.ListCustomers(env.ctx, repository.NewListQuery())
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, "Asha", all[0].Name)

	query := repository.NewListQuery()
	query.Search = "ash"
	found, total, err := env.customers.ListCustomers(env.ctx, query)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, found, 2)
}

func TestIsDefaultPage(t *testing.T) {
	assert.True(t, isDefaultPage(nil))
	assert.True(t, isDefaultPage(repository.NewListQuery()))

	q := repository.NewListQuery()
	q.Page = 2
	assert.False(t, isDefaultPage(q))
}

func TestSync_SnapshotIncludesRecentSales(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Asha")
	env.khata(t, c.ID, 100)
	p := env.product(t, "Tea", 5, 8, 5)

	_, err := env.sales.CreateSale(env.ctx, CreateSaleInput{
		Items:         []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	sync := NewSyncService(env.repos.Product, env.repos.Khata, env.repos.Sale)
	snap, err := sync.Snapshot(env.ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, snap.Products, 1)
	assert.Equal(t, 4, snap.Products[0].Stock)
	assert.Len(t, snap.Khatas, 1)
	assert.Len(t, snap.Sales, 1)

	later, err := sync.Snapshot(env.ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, later.Sales)
}
