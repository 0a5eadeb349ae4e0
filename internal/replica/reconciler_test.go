package replica

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/config"
	"github.com/sjperalta/khata-api/internal/database"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOffline = errors.New("dial tcp: connection refused")

// serviceRemote answers like the API would, straight from the services
type serviceRemote struct {
	ctx  context.Context
	svcs *services.Services

	offline     bool
	loseAnswers int
	calls       int
}

func (r *serviceRemote) Snapshot(_ context.Context, since time.Time) (*models.SyncSnapshot, error) {
	r.calls++
	if r.offline {
		return nil, errOffline
	}
	return r.svcs.Sync.Snapshot(r.ctx, since)
}

func (r *serviceRemote) CreateSale(_ context.Context, input services.CreateSaleInput) (*models.Sale, error) {
	r.calls++
	if r.offline {
		return nil, errOffline
	}
	sale, err := r.svcs.Sale.CreateSale(r.ctx, input)
	if err != nil {
		return nil, asRemoteError(err)
	}
	if r.loseAnswers > 0 {
		r.loseAnswers--
		return nil, errors.New("read tcp: connection reset by peer")
	}
	return sale, nil
}

func (r *serviceRemote) DeleteSale(_ context.Context, saleID uint) error {
	r.calls++
	if r.offline {
		return errOffline
	}
	_, err := r.svcs.Sale.DeleteSale(r.ctx, saleID)
	return asRemoteError(err)
}

func asRemoteError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrNotFound):
		return ErrGone
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrInsufficientStock),
		errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrInvalidState):
		return &RejectedError{Status: 422, Message: err.Error()}
	}
	return err
}

type replicaEnv struct {
	ctx        context.Context
	svcs       *services.Services
	remote     *serviceRemote
	store      *Store
	reconciler *Reconciler
}

func newReplicaEnv(t *testing.T) *replicaEnv {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")

	serverDB, err := database.OpenMemory("server_" + name)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(serverDB))

	terminalDB, err := database.OpenMemory("terminal_" + name)
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := serverDB.DB(); err == nil {
			sqlDB.Close()
		}
		if sqlDB, err := terminalDB.DB(); err == nil {
			sqlDB.Close()
		}
	})

	ctx := repository.WithOwner(context.Background(), 1)
	svcs := services.NewServices(repository.NewRepositories(serverDB), nil, nil, &config.Config{
		InvoiceRetryAttempts: 3,
		SagaRecoveryInterval: time.Minute,
	})

	store := NewStore(terminalDB)
	require.NoError(t, store.Migrate())

	remote := &serviceRemote{ctx: ctx, svcs: svcs}
	return &replicaEnv{
		ctx:        ctx,
		svcs:       svcs,
		remote:     remote,
		store:      store,
		reconciler: NewReconciler(store, remote),
	}
}

func (e *replicaEnv) serverProduct(t *testing.T, stock int) *models.Product {
	t.Helper()
	p, err := e.svcs.Product.CreateProduct(e.ctx, services.ProductInput{
		Name:      "Rice 5kg",
		BuyPrice:  decimal.NewFromInt(700),
		SellPrice: decimal.NewFromInt(1000),
		Stock:     stock,
	})
	require.NoError(t, err)
	return p
}

func (e *replicaEnv) serverKhata(t *testing.T, total int64) *models.Khata {
	t.Helper()
	c, err := e.svcs.Customer.CreateCustomer(e.ctx, services.CustomerInput{Name: "Asha"})
	require.NoError(t, err)
	res, err := e.svcs.Ledger.CreateKhata(e.ctx, services.CreateKhataInput{
		CustomerID: c.ID, Title: "Store credit", TotalAmount: decimal.NewFromInt(total),
	})
	require.NoError(t, err)
	return res.Khata
}

func (e *replicaEnv) localStock(t *testing.T, productID uint) int {
	t.Helper()
	byID, err := e.store.ProductsByID(e.ctx, []uint{productID})
	require.NoError(t, err)
	require.Contains(t, byID, productID)
	return byID[productID].Stock
}

func (e *replicaEnv) serverStock(t *testing.T, productID uint) int {
	t.Helper()
	p, err := e.svcs.Product.GetProduct(e.ctx, productID)
	require.NoError(t, err)
	return p.Stock
}

func (e *replicaEnv) cashSale(t *testing.T, productID uint, qty int) *LocalSale {
	t.Helper()
	sale, err := e.reconciler.CreateLocalSale(e.ctx, LocalSaleInput{
		Items:         []services.SaleItemInput{{ProductID: productID, Quantity: qty}},
		PaymentMethod: models.PaymentMethodCash,
	})
	require.NoError(t, err)
	return sale
}

func TestReconciler_PendingSaleHoldsProjectedStock(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 10)

	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, env.localStock(t, p.ID))

	sale := env.cashSale(t, p.ID, 2)
	assert.Equal(t, SyncStatusPendingCreate, sale.SyncStatus)
	assert.True(t, strings.HasPrefix(sale.InvoiceLabel, "OFF-"))
	assert.Len(t, sale.InvoiceLabel, len("OFF-")+8)
	assert.NotEmpty(t, sale.ClientRef)
	assert.Equal(t, 8, env.localStock(t, p.ID))

	// the server still says 10 until the sale is pushed
	_, err = env.reconciler.Pull(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, env.localStock(t, p.ID))
	assert.Equal(t, 10, env.serverStock(t, p.ID))

	report, err := env.reconciler.Sync(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pushed)
	assert.Equal(t, 8, env.serverStock(t, p.ID))
	assert.Equal(t, 8, env.localStock(t, p.ID))

	synced, err := env.store.Sales(env.ctx, SyncStatusSynced)
	require.NoError(t, err)
	require.Len(t, synced, 1)
	assert.Equal(t, sale.ClientRef, synced[0].ClientRef)
	assert.Equal(t, "#1", synced[0].InvoiceLabel)
	require.NotNil(t, synced[0].ServerID)
}

func TestReconciler_KhataBalanceProjection(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 5)
	k := env.serverKhata(t, 3000)

	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)

	paid := decimal.NewFromInt(500)
	_, err = env.reconciler.CreateLocalSale(env.ctx, LocalSaleInput{
		Items:         []services.SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: models.PaymentMethodKhata,
		KhataID:       &k.ID,
		PaidAmount:    &paid,
	})
	require.NoError(t, err)

	local, err := env.store.Khata(env.ctx, k.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3500).Equal(local.RemainingAmount))

	_, err = env.reconciler.Pull(env.ctx)
	require.NoError(t, err)
	local, err = env.store.Khata(env.ctx, k.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3000).Equal(local.ServerRemaining))
	assert.True(t, decimal.NewFromInt(3500).Equal(local.RemainingAmount))

	_, err = env.reconciler.Sync(env.ctx)
	require.NoError(t, err)

	server, err := env.svcs.Ledger.GetKhata(env.ctx, k.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3500).Equal(server.RemainingAmount))

	local, err = env.store.Khata(env.ctx, k.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3500).Equal(local.RemainingAmount))
}

func TestReconciler_LostAnswerIsReplayedOnce(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 10)
	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)

	sale := env.cashSale(t, p.ID, 2)

	env.remote.loseAnswers = 1
	_, err = env.reconciler.Sync(env.ctx)
	require.Error(t, err)

	pending, err := env.store.Sales(env.ctx, SyncStatusPendingCreate)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	report, err := env.reconciler.Sync(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pushed)

	_, total, err := env.svcs.Sale.ListSales(env.ctx, &repository.SaleQuery{ListQuery: repository.NewListQuery()})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, 8, env.serverStock(t, p.ID))

	synced, err := env.store.Sales(env.ctx, SyncStatusSynced)
	require.NoError(t, err)
	require.Len(t, synced, 1)
	assert.Equal(t, sale.ClientRef, synced[0].ClientRef)
}

func TestReconciler_PullAdoptsSaleTheServerAlreadyHas(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 10)
	k := env.serverKhata(t, 0)
	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)

	sale := env.cashSale(t, p.ID, 2)
	paid := decimal.NewFromInt(400)
	_, err = env.reconciler.CreateLocalSale(env.ctx, LocalSaleInput{
		Items:         []services.SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: models.PaymentMethodKhata,
		KhataID:       &k.ID,
		PaidAmount:    &paid,
	})
	require.NoError(t, err)
	assert.Equal(t, 7, env.localStock(t, p.ID))

	// the first push lands on the server but its answer is lost
	env.remote.loseAnswers = 1
	_, err = env.reconciler.Sync(env.ctx)
	require.Error(t, err)
	assert.Equal(t, 8, env.serverStock(t, p.ID))

	pulled, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pulled.Adopted)
	assert.Equal(t, 7, env.localStock(t, p.ID))

	conflicts, err := env.store.Conflicts(env.ctx, true)
	require.NoError(t, err)
	for _, c := range conflicts {
		assert.NotEqual(t, sale.ID, c.LocalSaleID)
	}

	local, err := env.store.Khata(env.ctx, k.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(600).Equal(local.RemainingAmount))
	assert.True(t, local.ServerRemaining.IsZero())

	pending, err := env.store.Sales(env.ctx, SyncStatusPendingCreate)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	adopted, err := env.store.Sale(env.ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncStatusSynced, adopted.SyncStatus)
	require.NotNil(t, adopted.ServerID)
	assert.Equal(t, "#1", adopted.InvoiceLabel)

	report, err := env.reconciler.Sync(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pushed)
	assert.Equal(t, 7, env.serverStock(t, p.ID))
	assert.Equal(t, 7, env.localStock(t, p.ID))

	synced, err := env.store.Sales(env.ctx, SyncStatusSynced)
	require.NoError(t, err)
	assert.Len(t, synced, 2)
	conflicts, err = env.store.Conflicts(env.ctx, true)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	_, total, err := env.svcs.Sale.ListSales(env.ctx, &repository.SaleQuery{ListQuery: repository.NewListQuery()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestReconciler_RejectedSaleStaysPendingWithConflict(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 3)
	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)

	env.cashSale(t, p.ID, 2)

	// another till sells most of the stock meanwhile
	_, err = env.svcs.Sale.CreateSale(env.ctx, services.CreateSaleInput{
		Items:         []services.SaleItemInput{{ProductID: p.ID, Quantity: 2}},
		PaymentMethod: models.PaymentMethodCash,
	})
	require.NoError(t, err)

	report, err := env.reconciler.Sync(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Pushed)
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Conflicts)

	pending, err := env.store.Sales(env.ctx, SyncStatusPendingCreate)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Contains(t, pending[0].LastError, "insufficient stock")

	// server 1, still held by the pending sale
	assert.Equal(t, -1, env.localStock(t, p.ID))

	conflicts, err := env.store.Conflicts(env.ctx, true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictEntityProduct, conflicts[0].Entity)
	assert.Equal(t, pending[0].ID, conflicts[0].LocalSaleID)

	// a second pull does not duplicate the conflict
	pulled, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, pulled.Conflicts)

	// dropping the sale resolves it
	_, err = env.reconciler.DeleteLocalSale(env.ctx, pending[0].ID)
	require.NoError(t, err)
	conflicts, err = env.store.Conflicts(env.ctx, true)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, 1, env.localStock(t, p.ID))
}

func TestReconciler_ConflictTracksLatestServerRevision(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 10)
	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)

	env.cashSale(t, p.ID, 2)

	sellOnServer := func() {
		_, err := env.svcs.Sale.CreateSale(env.ctx, services.CreateSaleInput{
			Items:         []services.SaleItemInput{{ProductID: p.ID, Quantity: 1}},
			PaymentMethod: models.PaymentMethodCash,
		})
		require.NoError(t, err)
	}

	sellOnServer()
	pulled, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pulled.Conflicts)

	conflicts, err := env.store.Conflicts(env.ctx, true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	first := conflicts[0]

	sellOnServer()
	sellOnServer()
	pulled, err = env.reconciler.Pull(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, pulled.Conflicts)

	conflicts, err = env.store.Conflicts(env.ctx, true)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, first.ID, conflicts[0].ID)
	assert.Greater(t, conflicts[0].ServerRevision, first.ServerRevision)
	assert.Equal(t, first.BaseRevision, conflicts[0].BaseRevision)
	assert.Equal(t, 5, env.localStock(t, p.ID))
}

func TestReconciler_DeletePendingSaleStaysLocal(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 10)
	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)

	sale := env.cashSale(t, p.ID, 4)
	calls := env.remote.calls

	_, err = env.reconciler.DeleteLocalSale(env.ctx, sale.ID)
	require.NoError(t, err)

	assert.Equal(t, calls, env.remote.calls)
	assert.Equal(t, 10, env.localStock(t, p.ID))
	sales, err := env.store.Sales(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestReconciler_DeleteSyncedSaleIsPushed(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 10)
	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)

	env.cashSale(t, p.ID, 3)
	_, err = env.reconciler.Sync(env.ctx)
	require.NoError(t, err)
	require.Equal(t, 7, env.serverStock(t, p.ID))

	synced, err := env.store.Sales(env.ctx, SyncStatusSynced)
	require.NoError(t, err)
	require.Len(t, synced, 1)

	queued, err := env.reconciler.DeleteLocalSale(env.ctx, synced[0].ID)
	require.NoError(t, err)
	assert.Equal(t, SyncStatusPendingDelete, queued.SyncStatus)

	// a pull keeps the queued deletion untouched
	_, err = env.reconciler.Pull(env.ctx)
	require.NoError(t, err)
	pending, err := env.store.Sales(env.ctx, SyncStatusPendingDelete)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	report, err := env.reconciler.Sync(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 10, env.serverStock(t, p.ID))
	assert.Equal(t, 10, env.localStock(t, p.ID))

	sales, err := env.store.Sales(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestReconciler_OfflineSyncKeepsQueue(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 10)
	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)

	env.remote.offline = true
	first := env.cashSale(t, p.ID, 1)
	second := env.cashSale(t, p.ID, 1)
	assert.Equal(t, 8, env.localStock(t, p.ID))

	_, err = env.reconciler.Sync(env.ctx)
	require.ErrorIs(t, err, errOffline)

	pending, err := env.store.Sales(env.ctx, SyncStatusPendingCreate)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	for _, s := range pending {
		assert.Zero(t, s.Attempts)
	}

	state, err := env.store.State(env.ctx)
	require.NoError(t, err)
	assert.Contains(t, state.LastError, "connection refused")

	env.remote.offline = false
	report, err := env.reconciler.Sync(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pushed)

	synced, err := env.store.Sales(env.ctx, SyncStatusSynced)
	require.NoError(t, err)
	require.Len(t, synced, 2)
	// pushed in enqueue order
	labels := map[string]string{}
	for _, s := range synced {
		labels[s.ClientRef] = s.InvoiceLabel
	}
	assert.Equal(t, "#1", labels[first.ClientRef])
	assert.Equal(t, "#2", labels[second.ClientRef])
}

func TestReconciler_CreateLocalSaleValidation(t *testing.T) {
	env := newReplicaEnv(t)
	p := env.serverProduct(t, 2)
	_, err := env.reconciler.Pull(env.ctx)
	require.NoError(t, err)

	_, err = env.reconciler.CreateLocalSale(env.ctx, LocalSaleInput{
		Items:         []services.SaleItemInput{{ProductID: p.ID, Quantity: 3}},
		PaymentMethod: models.PaymentMethodCash,
	})
	assert.ErrorIs(t, err, services.ErrInsufficientStock)

	_, err = env.reconciler.CreateLocalSale(env.ctx, LocalSaleInput{
		Items:         []services.SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: models.PaymentMethodKhata,
	})
	assert.ErrorIs(t, err, services.ErrValidation)

	missing := uint(99)
	_, err = env.reconciler.CreateLocalSale(env.ctx, LocalSaleInput{
		Items:         []services.SaleItemInput{{ProductID: p.ID, Quantity: 1}},
		PaymentMethod: models.PaymentMethodKhata,
		KhataID:       &missing,
	})
	assert.ErrorIs(t, err, services.ErrNotFound)

	assert.Equal(t, 2, env.localStock(t, p.ID))
}
