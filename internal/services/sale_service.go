package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/metrics"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/internal/statemachine"
	"github.com/sjperalta/khata-api/pkg/logger"
)

// SaleItemInput is one requested line. SellPrice overrides the catalog price.
type SaleItemInput struct {
	ProductID uint             `json:"product_id"`
	Quantity  int              `json:"quantity"`
	SellPrice *decimal.Decimal `json:"sell_price,omitempty"`
}

// CreateSaleInput is a point-of-sale checkout
type CreateSaleInput struct {
	Items         []SaleItemInput  `json:"items"`
	Discount      decimal.Decimal  `json:"discount"`
	PaymentMethod string           `json:"payment_method"`
	CustomerID    *uint            `json:"customer_id,omitempty"`
	KhataID       *uint            `json:"khata_id,omitempty"`
	PaidAmount    *decimal.Decimal `json:"paid_amount,omitempty"`
	ClientRef     *string          `json:"client_ref,omitempty"`
}

// DeleteSaleResult describes what a sale deletion reversed
type DeleteSaleResult struct {
	SaleID               uint   `json:"sale_id"`
	InvoiceNumber        int64  `json:"invoice_number"`
	StockRestored        bool   `json:"stock_restored"`
	ReversedTransactions []uint `json:"reversed_transactions"`
	NegativeBalance      bool   `json:"negative_balance,omitempty"`
}

// Ledger is the part of the ledger engine the sale coordinator writes through
type Ledger interface {
	AddCharge(ctx context.Context, khataID uint, input EntryInput) (*LedgerResult, error)
	AddPayment(ctx context.Context, khataID uint, input EntryInput) (*LedgerResult, error)
	DeleteTransaction(ctx context.Context, transactionID uint) (*LedgerResult, error)
}

// SaleServiceConfig tunes invoice retries and saga recovery
type SaleServiceConfig struct {
	InvoiceRetryAttempts int
	StaleSagaAfter       time.Duration
}

type SaleService struct {
	saleRepo    repository.SaleRepository
	productRepo repository.ProductRepository
	khataRepo   repository.KhataRepository
	counterRepo repository.CounterRepository
	sagaRepo    repository.SagaRepository
	tx          repository.Transactor
	ledger      Ledger
	correlator  *Correlator
	auditSvc    *AuditService

	retryAttempts  int
	staleSagaAfter time.Duration
	sleep          func(time.Duration)
	backoff        func() time.Duration
}

func NewSaleService(
	saleRepo repository.SaleRepository,
	productRepo repository.ProductRepository,
	khataRepo repository.KhataRepository,
	counterRepo repository.CounterRepository,
	sagaRepo repository.SagaRepository,
	tx repository.Transactor,
	ledger Ledger,
	correlator *Correlator,
	auditSvc *AuditService,
	cfg SaleServiceConfig,
) *SaleService {
	if cfg.InvoiceRetryAttempts < 1 {
		cfg.InvoiceRetryAttempts = 3
	}
	if cfg.StaleSagaAfter <= 0 {
		cfg.StaleSagaAfter = 10 * time.Minute
	}
	return &SaleService{
		saleRepo:       saleRepo,
		productRepo:    productRepo,
		khataRepo:      khataRepo,
		counterRepo:    counterRepo,
		sagaRepo:       sagaRepo,
		tx:             tx,
		ledger:         ledger,
		correlator:     correlator,
		auditSvc:       auditSvc,
		retryAttempts:  cfg.InvoiceRetryAttempts,
		staleSagaAfter: cfg.StaleSagaAfter,
		sleep:          time.Sleep,
		backoff:        invoiceBackoff,
	}
}

// 50 to 150 ms
func invoiceBackoff() time.Duration {
	return 50*time.Millisecond + rand.N(100*time.Millisecond)
}

// CreateSale validates, decrements stock, numbers and commits a sale, then applies
// its store-credit side effects. Any failure after the first write is rolled back.
func (s *SaleService) CreateSale(ctx context.Context, input CreateSaleInput) (*models.Sale, error) {
	ownerID, ok := repository.OwnerFrom(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	if input.ClientRef != nil {
		ref := strings.TrimSpace(*input.ClientRef)
		if ref == "" {
			input.ClientRef = nil
		} else {
			input.ClientRef = &ref
			existing, err := s.saleRepo.FindByClientRef(ctx, ref)
			if err == nil {
				logger.Debug("sale replayed by client ref", "client_ref", ref, "sale_id", existing.ID)
				return existing, nil
			}
			if !repository.IsNotFound(err) {
				return nil, err
			}
		}
	}

	sale := &models.Sale{
		OwnerID:       ownerID,
		ClientRef:     input.ClientRef,
		PaymentMethod: input.PaymentMethod,
		Revision:      1,
	}
	sfsm := statemachine.NewSaleFSM(sale)

	if err := s.validate(ctx, input, sale); err != nil {
		_ = sfsm.Cancel(ctx)
		return nil, err
	}

	run, err := s.startSaga(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		taken, err := s.productRepo.AtomicDecrement(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, s.abort(ctx, run, fmt.Errorf("failed to decrement stock: %w", err))
		}
		if !taken {
			return nil, s.abort(ctx, run, s.shortfall(ctx, item))
		}
		productID := item.ProductID
		s.record(ctx, run, models.SagaStepStockDecrement, &productID, item.Quantity, nil)
	}
	if err := sfsm.Reserve(ctx); err != nil {
		return nil, s.abort(ctx, run, err)
	}

	if err := sfsm.Commit(ctx); err != nil {
		return nil, s.abort(ctx, run, err)
	}
	if err := s.insertWithInvoice(ctx, sale); err != nil {
		sale.Status = models.SaleStatusCancelled
		if errors.Is(err, repository.ErrDuplicateClientRef) {
			return s.replayRaced(ctx, run, *sale.ClientRef)
		}
		return nil, s.abort(ctx, run, err)
	}
	saleID := sale.ID
	s.record(ctx, run, models.SagaStepSaleCommit, nil, 0, &saleID)

	run.saga.SaleID = &saleID
	run.saga.InvoiceNumber = sale.InvoiceNumber
	if err := s.sagaRepo.Update(ctx, run.saga); err != nil {
		logger.Error("failed to link sale to saga", "saga_id", run.saga.ID, "sale_id", sale.ID, "error", err)
	}

	if sale.UsesKhata() {
		if err := s.applyCredit(ctx, run, sale); err != nil {
			return nil, s.abort(ctx, run, err)
		}
	}

	s.finishSaga(ctx, run, models.SagaStateCompleted, nil)
	metrics.SalesCreated.WithLabelValues(sale.PaymentMethod).Inc()

	s.auditSvc.Log(ctx, AuditCreate, "Sale", sale.ID,
		fmt.Sprintf("Sale %s total %s via %s", sale.InvoiceLabel(), sale.Total.StringFixed(2), sale.PaymentMethod))

	return sale, nil
}

// validate checks the input and prices every line. No writes happen here.
func (s *SaleService) validate(ctx context.Context, input CreateSaleInput, sale *models.Sale) error {
	if len(input.Items) == 0 {
		return invalid("items", "at least one item is required")
	}
	if !models.IsValidPaymentMethod(input.PaymentMethod) {
		return invalid("payment_method", "must be cash, card or khata")
	}
	if input.Discount.IsNegative() {
		return invalid("discount", "must not be negative")
	}

	ids := make([]uint, 0, len(input.Items))
	requested := make(map[uint]int, len(input.Items))
	for i, in := range input.Items {
		if in.Quantity <= 0 {
			return invalid(fmt.Sprintf("items[%d].quantity", i), "must be greater than zero")
		}
		if in.SellPrice != nil && in.SellPrice.IsNegative() {
			return invalid(fmt.Sprintf("items[%d].sell_price", i), "must not be negative")
		}
		if _, seen := requested[in.ProductID]; !seen {
			ids = append(ids, in.ProductID)
		}
		requested[in.ProductID] += in.Quantity
	}

	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[uint]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	sale.Items = make([]models.SaleItem, 0, len(input.Items))
	subtotal, totalCost := decimal.Zero, decimal.Zero
	for _, in := range input.Items {
		product, ok := byID[in.ProductID]
		if !ok {
			return fmt.Errorf("product %d: %w", in.ProductID, ErrNotFound)
		}
		if product.Stock < requested[in.ProductID] {
			return &InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   requested[in.ProductID],
			}
		}

		price := product.SellPrice
		if in.SellPrice != nil {
			price = models.RoundMoney(*in.SellPrice)
		}
		item := models.SaleItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    in.Quantity,
			BuyPrice:    product.BuyPrice,
			SellPrice:   price,
		}
		item.PriceLine()
		subtotal = subtotal.Add(item.ItemTotal)
		totalCost = totalCost.Add(item.ItemCost)
		sale.Items = append(sale.Items, item)
	}

	discount := models.RoundMoney(input.Discount)
	if discount.GreaterThan(subtotal) {
		return invalid("discount", "must not exceed the subtotal")
	}

	sale.Subtotal = subtotal
	sale.Discount = discount
	sale.Total = subtotal.Sub(discount)
	sale.TotalCost = totalCost
	sale.TotalProfit = sale.Total.Sub(totalCost)
	sale.CustomerID = input.CustomerID

	paid := sale.Total
	if input.PaidAmount != nil {
		paid = models.RoundMoney(*input.PaidAmount)
		if paid.IsNegative() || paid.GreaterThan(sale.Total) {
			return invalid("paid_amount", "must be between zero and the sale total")
		}
	}

	if input.PaymentMethod != models.PaymentMethodKhata {
		sale.PaidAmount = paid
		return nil
	}

	if input.KhataID == nil {
		return invalid("khata_id", "is required for khata sales")
	}
	khata, err := s.khataRepo.FindByID(ctx, *input.KhataID)
	if err != nil {
		return notFound(err, "khata")
	}
	if sale.CustomerID != nil && *sale.CustomerID != khata.CustomerID {
		return invalid("khata_id", "belongs to another customer")
	}
	if input.PaidAmount == nil {
		paid = decimal.Zero
	}

	customerID := khata.CustomerID
	sale.KhataID = &khata.ID
	sale.CustomerID = &customerID
	sale.PaidAmount = paid
	return nil
}

// shortfall builds the stock error for a line that lost a race for stock
func (s *SaleService) shortfall(ctx context.Context, item *models.SaleItem) error {
	available := 0
	if product, err := s.productRepo.FindByID(ctx, item.ProductID); err == nil {
		available = product.Stock
	}
	return &InsufficientStockError{
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		Available:   available,
		Requested:   item.Quantity,
	}
}

// insertWithInvoice numbers and stores the sale. A taken number is retried
// with a fresh one; running out of attempts is a conflict.
func (s *SaleService) insertWithInvoice(ctx context.Context, sale *models.Sale) error {
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		number, err := s.counterRepo.NextInvoiceNumber(ctx, sale.OwnerID)
		if err != nil {
			return fmt.Errorf("failed to allocate invoice number: %w", err)
		}

		sale.ID = 0
		sale.InvoiceNumber = number
		for i := range sale.Items {
			sale.Items[i].ID = 0
			sale.Items[i].SaleID = 0
		}

		err = s.saleRepo.Create(ctx, sale)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateInvoice) {
			return fmt.Errorf("failed to create sale: %w", err)
		}

		metrics.InvoiceRetries.Inc()
		logger.Warn("invoice number taken, retrying", "invoice_number", number, "attempt", attempt)
		if attempt < s.retryAttempts {
			s.sleep(s.backoff())
		}
	}
	return &ConflictError{Message: "system busy, please retry the sale"}
}

// replayRaced undoes this attempt's stock writes and returns the sale a concurrent
// request already stored under the same client reference
func (s *SaleService) replayRaced(ctx context.Context, run *sagaRun, clientRef string) (*models.Sale, error) {
	cause := fmt.Errorf("client ref %s stored by a concurrent request", clientRef)
	if err := s.compensate(ctx, run); err != nil {
		return nil, s.abort(ctx, run, cause)
	}
	s.finishSaga(ctx, run, models.SagaStateCompensated, cause)

	existing, err := s.saleRepo.FindByClientRef(ctx, clientRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load replayed sale: %w", err)
	}
	logger.Info("sale replay raced its original", "client_ref", clientRef, "sale_id", existing.ID)
	return existing, nil
}

// applyCredit charges the sale total to the khata and records any amount paid up front
func (s *SaleService) applyCredit(ctx context.Context, run *sagaRun, sale *models.Sale) error {
	saleID := sale.ID

	charge, err := s.ledger.AddCharge(ctx, *sale.KhataID, EntryInput{
		Amount: sale.Total,
		Note:   InvoiceNote(NoteKindCharge, sale.InvoiceNumber),
		SaleID: &saleID,
	})
	if err != nil {
		return fmt.Errorf("failed to charge khata: %w", err)
	}
	chargeID := charge.Transaction.ID
	s.record(ctx, run, models.SagaStepKhataCharge, nil, 0, &chargeID)
	remaining := charge.Khata.RemainingAmount

	if sale.PaidAmount.IsPositive() {
		payment, err := s.ledger.AddPayment(ctx, *sale.KhataID, EntryInput{
			Amount: sale.PaidAmount,
			Note:   InvoiceNote(NoteKindPayment, sale.InvoiceNumber),
			SaleID: &saleID,
		})
		if err != nil {
			return fmt.Errorf("failed to record khata payment: %w", err)
		}
		paymentID := payment.Transaction.ID
		s.record(ctx, run, models.SagaStepKhataPayment, nil, 0, &paymentID)
		remaining = payment.Khata.RemainingAmount
	}

	sale.KhataRemainingAfterSale = &remaining
	if err := s.saleRepo.Update(ctx, sale); err != nil {
		return fmt.Errorf("failed to store khata balance on sale: %w", err)
	}
	return nil
}

// RefundSale gives the stock back. The ledger is not touched.
// The status change and every restock commit together, so a failed refund can be retried.
func (s *SaleService) RefundSale(ctx context.Context, saleID uint) (*models.Sale, error) {
	sale, err := s.saleRepo.FindByID(ctx, saleID)
	if err != nil {
		return nil, notFound(err, "sale")
	}

	if err := statemachine.NewSaleFSM(sale).Refund(ctx); err != nil {
		return nil, stateErr(err)
	}
	sale.Revision++

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.restoreStock(ctx, sale); err != nil {
			return err
		}
		if err := s.saleRepo.Update(ctx, sale); err != nil {
			return fmt.Errorf("failed to update sale: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, AuditRefund, "Sale", sale.ID,
		fmt.Sprintf("Sale %s refunded, %d lines restocked", sale.InvoiceLabel(), len(sale.Items)))

	return sale, nil
}

// DeleteSale restores stock unless a refund already did, reverses the sale's
// ledger entries and removes the sale, all in one transaction.
func (s *SaleService) DeleteSale(ctx context.Context, saleID uint) (*DeleteSaleResult, error) {
	sale, err := s.saleRepo.FindByID(ctx, saleID)
	if err != nil {
		return nil, notFound(err, "sale")
	}

	if err := statemachine.NewSaleFSM(sale).Delete(ctx); err != nil {
		return nil, stateErr(err)
	}

	result := &DeleteSaleResult{SaleID: sale.ID, InvoiceNumber: sale.InvoiceNumber}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if !sale.StockRestored() {
			if err := s.restoreStock(ctx, sale); err != nil {
				return err
			}
			result.StockRestored = true
		}

		if sale.KhataID != nil {
			entries, err := s.correlator.FindSaleTransactions(ctx, sale)
			if err != nil {
				return fmt.Errorf("failed to find sale transactions: %w", err)
			}
			// newest first, so payments are reversed before the charge
			sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
			for _, entry := range entries {
				reversed, err := s.ledger.DeleteTransaction(ctx, entry.ID)
				if err != nil {
					return fmt.Errorf("failed to reverse transaction %d: %w", entry.ID, err)
				}
				result.ReversedTransactions = append(result.ReversedTransactions, entry.ID)
				result.NegativeBalance = result.NegativeBalance || reversed.NegativeBalance
			}
		}

		if err := s.saleRepo.Delete(ctx, sale.ID); err != nil {
			return fmt.Errorf("failed to delete sale: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, AuditDelete, "Sale", sale.ID,
		fmt.Sprintf("Sale %s deleted, %d ledger entries reversed", sale.InvoiceLabel(), len(result.ReversedTransactions)))

	return result, nil
}

func (s *SaleService) restoreStock(ctx context.Context, sale *models.Sale) error {
	for _, item := range sale.Items {
		if err := s.productRepo.Increment(ctx, item.ProductID, item.Quantity); err != nil {
			if repository.IsNotFound(err) {
				logger.Warn("product gone, stock not restored", "product_id", item.ProductID, "sale_id", sale.ID)
				continue
			}
			return fmt.Errorf("failed to restore stock for product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

func (s *SaleService) GetSale(ctx context.Context, saleID uint) (*models.Sale, error) {
	sale, err := s.saleRepo.FindByID(ctx, saleID)
	if err != nil {
		return nil, notFound(err, "sale")
	}
	return sale, nil
}

func (s *SaleService) ListSales(ctx context.Context, query *repository.SaleQuery) ([]models.Sale, int64, error) {
	switch query.Status {
	case "", models.SaleStatusCompleted, models.SaleStatusRefunded, models.SaleStatusCancelled:
	default:
		return nil, 0, invalid("status", "unknown sale status")
	}
	return s.saleRepo.List(ctx, query)
}

// SagaCounts reports unfinished rollbacks for the job status endpoint
// TransactionSale returns the sale that produced a ledger entry
func (s *SaleService) TransactionSale(ctx context.Context, entry *models.KhataTransaction) (*models.Sale, error) {
	return s.correlator.FindSaleForTransaction(ctx, entry)
}

// GetSaga returns a sale saga with its step log
func (s *SaleService) GetSaga(ctx context.Context, sagaID uint) (*models.SaleSaga, error) {
	saga, err := s.sagaRepo.FindByID(ctx, sagaID)
	if err != nil {
		return nil, notFound(err, "saga")
	}
	return saga, nil
}

func (s *SaleService) SagaCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 2)
	for _, state := range []string{models.SagaStateRunning, models.SagaStateCompensationFailed} {
		n, err := s.sagaRepo.CountByState(ctx, state)
		if err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, nil
}
