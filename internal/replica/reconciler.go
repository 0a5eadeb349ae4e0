package replica

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/metrics"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/services"
	"github.com/sjperalta/khata-api/pkg/logger"
	"gorm.io/gorm"
)

// DefaultSalesWindow is how far back a pull mirrors server sales
const DefaultSalesWindow = 7 * 24 * time.Hour

// LocalSaleInput is a checkout recorded on the terminal
type LocalSaleInput struct {
	Items         []services.SaleItemInput
	Discount      decimal.Decimal
	PaymentMethod string
	KhataID       *uint
	PaidAmount    *decimal.Decimal
}

// SyncReport summarizes one sync round
type SyncReport struct {
	Pushed    int      `json:"pushed"`
	Deleted   int      `json:"deleted"`
	Rejected  int      `json:"rejected"`
	Conflicts int      `json:"conflicts"`
	Errors    []string `json:"errors,omitempty"`
}

// PullResult summarizes one pull
type PullResult struct {
	Products  int       `json:"products"`
	Khatas    int       `json:"khatas"`
	Sales     int       `json:"sales"`
	Adopted   int       `json:"adopted"`
	Conflicts int       `json:"conflicts"`
	At        time.Time `json:"at"`
}

// Reconciler keeps the terminal store converging with the server
type Reconciler struct {
	store       *Store
	remote      Remote
	salesWindow time.Duration
	now         func() time.Time
}

func NewReconciler(store *Store, remote Remote) *Reconciler {
	return &Reconciler{
		store:       store,
		remote:      remote,
		salesWindow: DefaultSalesWindow,
		now:         time.Now,
	}
}

// CreateLocalSale records a sale offline against the projected stock and balance
func (r *Reconciler) CreateLocalSale(ctx context.Context, input LocalSaleInput) (*LocalSale, error) {
	if len(input.Items) == 0 {
		return nil, &services.ValidationError{Field: "items", Message: "at least one item is required"}
	}
	if !models.IsValidPaymentMethod(input.PaymentMethod) {
		return nil, &services.ValidationError{Field: "payment_method", Message: "must be cash, card or khata"}
	}
	if input.Discount.IsNegative() {
		return nil, &services.ValidationError{Field: "discount", Message: "must not be negative"}
	}

	ids := make([]uint, 0, len(input.Items))
	requested := make(map[uint]int, len(input.Items))
	for i, in := range input.Items {
		if in.Quantity <= 0 {
			return nil, &services.ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Message: "must be greater than zero"}
		}
		if _, seen := requested[in.ProductID]; !seen {
			ids = append(ids, in.ProductID)
		}
		requested[in.ProductID] += in.Quantity
	}

	products, err := r.store.ProductsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	ref := uuid.NewString()
	sale := &LocalSale{
		ClientRef:     ref,
		InvoiceLabel:  "OFF-" + strings.ToUpper(ref[:8]),
		PaymentMethod: input.PaymentMethod,
		Status:        models.SaleStatusCompleted,
		SyncStatus:    SyncStatusPendingCreate,
		SoldAt:        r.now(),
	}

	subtotal := decimal.Zero
	for _, in := range input.Items {
		product, ok := products[in.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %d: %w", in.ProductID, services.ErrNotFound)
		}
		if product.Stock < requested[in.ProductID] {
			return nil, &services.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   requested[in.ProductID],
			}
		}

		price := product.SellPrice
		if in.SellPrice != nil {
			if in.SellPrice.IsNegative() {
				return nil, &services.ValidationError{Field: "sell_price", Message: "must not be negative"}
			}
			price = models.RoundMoney(*in.SellPrice)
		}
		item := LocalSaleItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Quantity:     in.Quantity,
			SellPrice:    price,
			ItemTotal:    models.RoundMoney(price.Mul(decimal.NewFromInt(int64(in.Quantity)))),
			BaseRevision: product.ServerRevision,
		}
		subtotal = subtotal.Add(item.ItemTotal)
		sale.Items = append(sale.Items, item)
	}

	discount := models.RoundMoney(input.Discount)
	if discount.GreaterThan(subtotal) {
		return nil, &services.ValidationError{Field: "discount", Message: "must not exceed the subtotal"}
	}
	sale.Subtotal = subtotal
	sale.Discount = discount
	sale.Total = subtotal.Sub(discount)

	paid := sale.Total
	if input.PaymentMethod == models.PaymentMethodKhata {
		paid = decimal.Zero
	}
	if input.PaidAmount != nil {
		paid = models.RoundMoney(*input.PaidAmount)
		if paid.IsNegative() || paid.GreaterThan(sale.Total) {
			return nil, &services.ValidationError{Field: "paid_amount", Message: "must be between zero and the sale total"}
		}
	}
	sale.PaidAmount = paid

	var khata *LocalKhata
	if input.PaymentMethod == models.PaymentMethodKhata {
		if input.KhataID == nil {
			return nil, &services.ValidationError{Field: "khata_id", Message: "is required for khata sales"}
		}
		khata, err = r.store.Khata(ctx, *input.KhataID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("khata %d: %w", *input.KhataID, services.ErrNotFound)
		}
		if err != nil {
			return nil, err
		}
		customerID := khata.CustomerID
		sale.KhataID = &khata.ID
		sale.CustomerID = &customerID
		sale.BaseRevision = khata.ServerRevision
	}

	err = r.store.Transaction(ctx, func(tx *Store) error {
		if err := tx.CreateSale(ctx, sale); err != nil {
			return fmt.Errorf("failed to store local sale: %w", err)
		}
		for _, item := range sale.Items {
			if err := tx.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
				return fmt.Errorf("failed to project stock: %w", err)
			}
		}
		if khata != nil {
			khata.RemainingAmount = khata.RemainingAmount.Add(sale.Total.Sub(sale.PaidAmount))
			if err := tx.SaveKhata(ctx, khata); err != nil {
				return fmt.Errorf("failed to project khata balance: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("sale recorded offline", "invoice", sale.InvoiceLabel, "total", sale.Total.StringFixed(2))
	return sale, nil
}

// DeleteLocalSale drops a sale that never left the terminal, or queues the
// deletion of a synced one.
func (r *Reconciler) DeleteLocalSale(ctx context.Context, localID uint) (*LocalSale, error) {
	sale, err := r.store.Sale(ctx, localID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("local sale %d: %w", localID, services.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	switch sale.SyncStatus {
	case SyncStatusPendingDelete:
		return sale, nil
	case SyncStatusSynced:
		sale.SyncStatus = SyncStatusPendingDelete
		sale.LastError = ""
		sale.Attempts = 0
		if err := r.store.UpdateSale(ctx, sale); err != nil {
			return nil, fmt.Errorf("failed to queue deletion: %w", err)
		}
		return sale, nil
	}

	// never pushed, so nothing to tell the server
	err = r.store.Transaction(ctx, func(tx *Store) error {
		for _, item := range sale.Items {
			if err := tx.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		if sale.KhataID != nil {
			khata, err := tx.Khata(ctx, *sale.KhataID)
			if err == nil {
				khata.RemainingAmount = khata.RemainingAmount.Sub(sale.Total.Sub(sale.PaidAmount))
				if err := tx.SaveKhata(ctx, khata); err != nil {
					return err
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		if err := tx.ResolveConflicts(ctx, sale.ID, r.now()); err != nil {
			return err
		}
		return tx.PurgeSale(ctx, sale.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to purge local sale: %w", err)
	}
	return sale, nil
}

// Pull mirrors the server and re-projects everything still pending on top of it
func (r *Reconciler) Pull(ctx context.Context) (*PullResult, error) {
	snapshot, err := r.remote.Snapshot(ctx, r.now().Add(-r.salesWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	pending, err := r.store.Sales(ctx, SyncStatusPendingCreate, SyncStatusPendingDelete)
	if err != nil {
		return nil, err
	}

	byRef := make(map[string]*models.Sale, len(snapshot.Sales))
	for i := range snapshot.Sales {
		if ref := snapshot.Sales[i].ClientRef; ref != nil {
			byRef[*ref] = &snapshot.Sales[i]
		}
	}

	held := make(map[uint]int)
	owed := make(map[uint]decimal.Decimal)
	pendingRefs := make(map[string]bool)
	pendingIDs := make(map[uint]bool)
	var adopted []*LocalSale
	for i := range pending {
		sale := &pending[i]
		if sale.ServerID != nil {
			pendingIDs[*sale.ServerID] = true
		}
		if sale.SyncStatus != SyncStatusPendingCreate {
			continue
		}
		pendingRefs[sale.ClientRef] = true
		// pushed earlier but the answer never arrived; the server copy already holds its stock
		if applied, ok := byRef[sale.ClientRef]; ok {
			adoptServerSale(sale, applied)
			adopted = append(adopted, sale)
			continue
		}
		for _, item := range sale.Items {
			held[item.ProductID] += item.Quantity
		}
		if sale.KhataID != nil {
			owed[*sale.KhataID] = owed[*sale.KhataID].Add(sale.Total.Sub(sale.PaidAmount))
		}
	}

	pulledAt := r.now()
	products := make([]LocalProduct, 0, len(snapshot.Products))
	productRevs := make(map[uint]uint, len(snapshot.Products))
	for _, p := range snapshot.Products {
		productRevs[p.ID] = p.Revision
		products = append(products, LocalProduct{
			ID:             p.ID,
			Name:           p.Name,
			SKU:            p.SKU,
			BuyPrice:       p.BuyPrice,
			SellPrice:      p.SellPrice,
			ServerStock:    p.Stock,
			Stock:          p.Stock - held[p.ID],
			ServerRevision: p.Revision,
			SyncStatus:     SyncStatusSynced,
			SyncedAt:       pulledAt,
		})
	}

	khatas := make([]LocalKhata, 0, len(snapshot.Khatas))
	khataRevs := make(map[uint]uint, len(snapshot.Khatas))
	for _, k := range snapshot.Khatas {
		khataRevs[k.ID] = k.Revision
		khatas = append(khatas, LocalKhata{
			ID:              k.ID,
			CustomerID:      k.CustomerID,
			Title:           k.Title,
			Status:          k.Status,
			TotalAmount:     k.TotalAmount,
			ServerRemaining: k.RemainingAmount,
			RemainingAmount: k.RemainingAmount.Add(owed[k.ID]),
			ServerRevision:  k.Revision,
			SyncStatus:      SyncStatusSynced,
			SyncedAt:        pulledAt,
		})
	}

	sales := make([]LocalSale, 0, len(snapshot.Sales))
	for i := range snapshot.Sales {
		s := &snapshot.Sales[i]
		if pendingIDs[s.ID] {
			continue
		}
		// adopted above
		if s.ClientRef != nil && pendingRefs[*s.ClientRef] {
			continue
		}
		sales = append(sales, mirrorSale(s))
	}

	result := &PullResult{Products: len(products), Khatas: len(khatas), Sales: len(sales), Adopted: len(adopted), At: pulledAt}

	err = r.store.Transaction(ctx, func(tx *Store) error {
		if err := tx.ReplaceCatalog(ctx, products, khatas); err != nil {
			return fmt.Errorf("failed to replace catalog: %w", err)
		}
		if err := tx.ReplaceSynced(ctx, sales); err != nil {
			return fmt.Errorf("failed to replace synced sales: %w", err)
		}

		for _, sale := range adopted {
			if err := tx.UpdateSale(ctx, sale); err != nil {
				return fmt.Errorf("failed to adopt %s: %w", sale.ClientRef, err)
			}
			if err := tx.ResolveConflicts(ctx, sale.ID, pulledAt); err != nil {
				return err
			}
			logger.Info("queued sale already on server", "client_ref", sale.ClientRef, "invoice", sale.InvoiceLabel)
		}

		for i := range pending {
			if pending[i].SyncStatus != SyncStatusPendingCreate {
				continue
			}
			for _, c := range detectConflicts(&pending[i], khataRevs, productRevs) {
				created, err := tx.RecordConflict(ctx, &c)
				if err != nil {
					return fmt.Errorf("failed to record conflict: %w", err)
				}
				if created {
					result.Conflicts++
					logger.Warn("sync conflict", "invoice", pending[i].InvoiceLabel, "entity", c.Entity, "entity_id", c.EntityID, "detail", c.Detail)
				}
			}
		}

		state, err := tx.State(ctx)
		if err != nil {
			return err
		}
		state.LastPullAt = pulledAt
		state.ServerTime = snapshot.ServerTime
		return tx.SaveState(ctx, state)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// detectConflicts compares what a pending sale was built on with the server's current revisions
func detectConflicts(sale *LocalSale, khataRevs, productRevs map[uint]uint) []SyncConflict {
	var conflicts []SyncConflict
	if sale.KhataID != nil {
		rev, ok := khataRevs[*sale.KhataID]
		switch {
		case !ok:
			conflicts = append(conflicts, SyncConflict{
				LocalSaleID: sale.ID, ClientRef: sale.ClientRef,
				Entity: ConflictEntityKhata, EntityID: *sale.KhataID,
				BaseRevision: sale.BaseRevision,
				Detail:       "khata no longer exists on server",
			})
		case rev > sale.BaseRevision:
			conflicts = append(conflicts, SyncConflict{
				LocalSaleID: sale.ID, ClientRef: sale.ClientRef,
				Entity: ConflictEntityKhata, EntityID: *sale.KhataID,
				BaseRevision: sale.BaseRevision, ServerRevision: rev,
				Detail: fmt.Sprintf("khata changed on server (revision %d to %d)", sale.BaseRevision, rev),
			})
		}
	}

	for _, item := range sale.Items {
		rev, ok := productRevs[item.ProductID]
		switch {
		case !ok:
			conflicts = append(conflicts, SyncConflict{
				LocalSaleID: sale.ID, ClientRef: sale.ClientRef,
				Entity: ConflictEntityProduct, EntityID: item.ProductID,
				BaseRevision: item.BaseRevision,
				Detail:       "product no longer exists on server",
			})
		case rev > item.BaseRevision:
			conflicts = append(conflicts, SyncConflict{
				LocalSaleID: sale.ID, ClientRef: sale.ClientRef,
				Entity: ConflictEntityProduct, EntityID: item.ProductID,
				BaseRevision: item.BaseRevision, ServerRevision: rev,
				Detail: fmt.Sprintf("%s changed on server (revision %d to %d)", item.ProductName, item.BaseRevision, rev),
			})
		}
	}
	return conflicts
}

// Sync pushes queued creates in enqueue order, then queued deletes, then pulls.
// A transport failure stops the round; a rejection only marks the record.
func (r *Reconciler) Sync(ctx context.Context) (*SyncReport, error) {
	report := &SyncReport{}

	creates, err := r.store.Queue(ctx, SyncStatusPendingCreate)
	if err != nil {
		return nil, err
	}
	for i := range creates {
		if err := r.pushCreate(ctx, &creates[i], report); err != nil {
			r.recordFailure(ctx, err)
			return report, err
		}
	}

	deletes, err := r.store.Queue(ctx, SyncStatusPendingDelete)
	if err != nil {
		return nil, err
	}
	for i := range deletes {
		if err := r.pushDelete(ctx, &deletes[i], report); err != nil {
			r.recordFailure(ctx, err)
			return report, err
		}
	}

	pulled, err := r.Pull(ctx)
	if err != nil {
		r.recordFailure(ctx, err)
		return report, err
	}
	report.Conflicts = pulled.Conflicts

	if state, err := r.store.State(ctx); err == nil {
		state.LastSyncAt = r.now()
		state.LastError = ""
		if err := r.store.SaveState(ctx, state); err != nil {
			logger.Error("failed to save sync state", "error", err)
		}
	}

	logger.Info("sync finished",
		"pushed", report.Pushed,
		"deleted", report.Deleted,
		"rejected", report.Rejected,
		"conflicts", report.Conflicts)
	return report, nil
}

func (r *Reconciler) pushCreate(ctx context.Context, sale *LocalSale, report *SyncReport) error {
	input := services.CreateSaleInput{
		Discount:      sale.Discount,
		PaymentMethod: sale.PaymentMethod,
		CustomerID:    sale.CustomerID,
		KhataID:       sale.KhataID,
		ClientRef:     &sale.ClientRef,
	}
	paid := sale.PaidAmount
	input.PaidAmount = &paid
	for _, item := range sale.Items {
		price := item.SellPrice
		input.Items = append(input.Items, services.SaleItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			SellPrice: &price,
		})
	}

	created, err := r.remote.CreateSale(ctx, input)
	if err != nil {
		if isRejection(err) {
			metrics.SyncPushes.WithLabelValues("create", "rejected").Inc()
			report.Rejected++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", sale.InvoiceLabel, err))
			return r.markRejected(ctx, sale, err)
		}
		metrics.SyncPushes.WithLabelValues("create", "error").Inc()
		return fmt.Errorf("push %s: %w", sale.InvoiceLabel, err)
	}

	adoptServerSale(sale, created)

	err = r.store.Transaction(ctx, func(tx *Store) error {
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return err
		}
		return tx.ResolveConflicts(ctx, sale.ID, r.now())
	})
	if err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", sale.ClientRef, err)
	}

	metrics.SyncPushes.WithLabelValues("create", "ok").Inc()
	report.Pushed++
	return nil
}

func (r *Reconciler) pushDelete(ctx context.Context, sale *LocalSale, report *SyncReport) error {
	if sale.ServerID != nil {
		err := r.remote.DeleteSale(ctx, *sale.ServerID)
		switch {
		case err == nil, errors.Is(err, ErrGone):
		case isRejection(err):
			metrics.SyncPushes.WithLabelValues("delete", "rejected").Inc()
			report.Rejected++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", sale.InvoiceLabel, err))
			return r.markRejected(ctx, sale, err)
		default:
			metrics.SyncPushes.WithLabelValues("delete", "error").Inc()
			return fmt.Errorf("delete %s: %w", sale.InvoiceLabel, err)
		}
	}

	err := r.store.Transaction(ctx, func(tx *Store) error {
		if err := tx.ResolveConflicts(ctx, sale.ID, r.now()); err != nil {
			return err
		}
		return tx.PurgeSale(ctx, sale.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to purge %s: %w", sale.InvoiceLabel, err)
	}

	metrics.SyncPushes.WithLabelValues("delete", "ok").Inc()
	report.Deleted++
	return nil
}

func (r *Reconciler) markRejected(ctx context.Context, sale *LocalSale, cause error) error {
	sale.LastError = cause.Error()
	sale.Attempts++
	logger.Warn("server rejected queued sale", "invoice", sale.InvoiceLabel, "attempts", sale.Attempts, "error", cause)
	if err := r.store.UpdateSale(ctx, sale); err != nil {
		return fmt.Errorf("failed to record rejection: %w", err)
	}
	return nil
}

func (r *Reconciler) recordFailure(ctx context.Context, cause error) {
	state, err := r.store.State(ctx)
	if err != nil {
		return
	}
	state.LastError = cause.Error()
	if err := r.store.SaveState(ctx, state); err != nil {
		logger.Error("failed to save sync state", "error", err)
	}
}

func isRejection(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected) || errors.Is(err, ErrGone)
}

// adoptServerSale marks a queued sale as the server's copy of it
func adoptServerSale(sale *LocalSale, server *models.Sale) {
	serverID := server.ID
	sale.ServerID = &serverID
	sale.InvoiceNumber = server.InvoiceNumber
	sale.InvoiceLabel = server.InvoiceLabel()
	sale.Status = server.Status
	sale.ServerRevision = server.Revision
	sale.SyncStatus = SyncStatusSynced
	sale.LastError = ""
}

func mirrorSale(s *models.Sale) LocalSale {
	serverID := s.ID
	// sales rung up on the server have no terminal reference
	ref := fmt.Sprintf("srv-%d", s.ID)
	if s.ClientRef != nil {
		ref = *s.ClientRef
	}

	sale := LocalSale{
		ServerID:       &serverID,
		ClientRef:      ref,
		InvoiceNumber:  s.InvoiceNumber,
		InvoiceLabel:   s.InvoiceLabel(),
		PaymentMethod:  s.PaymentMethod,
		CustomerID:     s.CustomerID,
		KhataID:        s.KhataID,
		Subtotal:       s.Subtotal,
		Discount:       s.Discount,
		Total:          s.Total,
		PaidAmount:     s.PaidAmount,
		Status:         s.Status,
		SyncStatus:     SyncStatusSynced,
		ServerRevision: s.Revision,
		SoldAt:         s.CreatedAt,
	}
	for _, item := range s.Items {
		sale.Items = append(sale.Items, LocalSaleItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			SellPrice:   item.SellPrice,
			ItemTotal:   item.ItemTotal,
		})
	}
	return sale
}

// Store exposes the underlying terminal store for read-only listings
func (r *Reconciler) Store() *Store {
	return r.store
}
