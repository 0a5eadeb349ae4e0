package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/cache"
	"github.com/sjperalta/khata-api/internal/metrics"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/internal/statemachine"
	"github.com/sjperalta/khata-api/pkg/logger"
)

// CreateKhataInput opens a credit account for a customer
type CreateKhataInput struct {
	CustomerID  uint            `json:"customer_id"`
	Title       string          `json:"title"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// EntryInput is one charge or payment against a khata
type EntryInput struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
	// SaleID links the entry to the sale that produced it
	SaleID *uint `json:"-"`
}

// InstallmentInput schedules one repayment
type InstallmentInput struct {
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"due_date"`
	Note    string          `json:"note"`
}

// LedgerResult is the outcome of a ledger mutation
type LedgerResult struct {
	Khata           *models.Khata            `json:"khata"`
	Transaction     *models.KhataTransaction `json:"transaction"`
	Installment     *models.Installment      `json:"installment,omitempty"`
	NegativeBalance bool                     `json:"negative_balance,omitempty"`
}

type LedgerService struct {
	customerRepo repository.CustomerRepository
	khataRepo    repository.KhataRepository
	ledgerRepo   repository.LedgerRepository
	tx           repository.Transactor
	auditSvc     *AuditService
	cache        *cache.Store
	now          func() time.Time
}

func NewLedgerService(
	customerRepo repository.CustomerRepository,
	khataRepo repository.KhataRepository,
	ledgerRepo repository.LedgerRepository,
	tx repository.Transactor,
	auditSvc *AuditService,
	cacheStore *cache.Store,
) *LedgerService {
	return &LedgerService{
		customerRepo: customerRepo,
		khataRepo:    khataRepo,
		ledgerRepo:   ledgerRepo,
		tx:           tx,
		auditSvc:     auditSvc,
		cache:        cacheStore,
		now:          time.Now,
	}
}

// CreateKhata opens a khata with the full amount outstanding.
// A customer may hold many khatas but only one open at a time.
func (s *LedgerService) CreateKhata(ctx context.Context, input CreateKhataInput) (*LedgerResult, error) {
	ownerID, ok := repository.OwnerFrom(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalid("title", "is required")
	}
	total := models.RoundMoney(input.TotalAmount)
	if total.IsNegative() {
		return nil, invalid("total_amount", "must not be negative")
	}

	result := &LedgerResult{}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		customer, err := s.customerRepo.FindByID(ctx, input.CustomerID)
		if err != nil {
			return notFound(err, "customer")
		}

		existing, err := s.khataRepo.FindOpenByCustomer(ctx, customer.ID)
		if err == nil {
			return &ConflictError{Message: fmt.Sprintf("customer %d already has open khata %d", customer.ID, existing.ID)}
		}
		if !repository.IsNotFound(err) {
			return err
		}

		khata := &models.Khata{
			OwnerID:         ownerID,
			CustomerID:      customer.ID,
			Title:           title,
			TotalAmount:     total,
			RemainingAmount: total,
			Status:          models.KhataStatusOpen,
			Revision:        1,
		}
		if err := s.khataRepo.Create(ctx, khata); err != nil {
			return fmt.Errorf("failed to create khata: %w", err)
		}
		result.Khata = khata

		if !total.IsPositive() {
			return nil
		}
		entry := &models.KhataTransaction{
			OwnerID:    ownerID,
			KhataID:    khata.ID,
			CustomerID: khata.CustomerID,
			Type:       models.TransactionTypeCharge,
			Amount:     total,
			Note:       "Opening balance",
		}
		if err := s.ledgerRepo.Create(ctx, entry); err != nil {
			return fmt.Errorf("failed to create opening charge: %w", err)
		}
		result.Transaction = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Transaction != nil {
		metrics.LedgerEntries.WithLabelValues(result.Transaction.Type, "create").Inc()
	}
	s.auditSvc.Log(ctx, AuditCreate, "Khata", result.Khata.ID,
		fmt.Sprintf("Khata %q opened for customer %d with %s", title, result.Khata.CustomerID, total.StringFixed(2)))
	s.invalidate(ctx, ownerID)

	return result, nil
}

// AddCharge increases what the customer owes. A closed khata is reopened.
func (s *LedgerService) AddCharge(ctx context.Context, khataID uint, input EntryInput) (*LedgerResult, error) {
	amount := models.RoundMoney(input.Amount)
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}

	result, err := s.applyEntry(ctx, khataID, func(khata *models.Khata) *models.KhataTransaction {
		khata.TotalAmount = khata.TotalAmount.Add(amount)
		khata.RemainingAmount = khata.RemainingAmount.Add(amount)
		return s.newEntry(khata, models.TransactionTypeCharge, amount, input)
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, AuditCharge, "Khata", khataID,
		fmt.Sprintf("Charge %s (%s), remaining %s", amount.StringFixed(2), input.Note, result.Khata.RemainingAmount.StringFixed(2)))

	return result, nil
}

// AddPayment decreases what the customer owes, floored at zero. The khata closes at zero.
func (s *LedgerService) AddPayment(ctx context.Context, khataID uint, input EntryInput) (*LedgerResult, error) {
	amount := models.RoundMoney(input.Amount)
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}

	result, err := s.applyEntry(ctx, khataID, func(khata *models.Khata) *models.KhataTransaction {
		khata.RemainingAmount = models.MaxZero(khata.RemainingAmount.Sub(amount))
		return s.newEntry(khata, models.TransactionTypePayment, amount, input)
	})
	if err != nil {
		return nil, err
	}

	s.auditSvc.Log(ctx, AuditPayment, "Khata", khataID,
		fmt.Sprintf("Payment %s (%s), remaining %s", amount.StringFixed(2), input.Note, result.Khata.RemainingAmount.StringFixed(2)))

	return result, nil
}

// AddInstallments schedules repayments. The outstanding balance is not touched.
func (s *LedgerService) AddInstallments(ctx context.Context, khataID uint, inputs []InstallmentInput) ([]models.Installment, error) {
	if len(inputs) == 0 {
		return nil, invalid("installments", "at least one installment is required")
	}

	khata, err := s.khataRepo.FindByID(ctx, khataID)
	if err != nil {
		return nil, notFound(err, "khata")
	}

	installments := make([]models.Installment, 0, len(inputs))
	for i, in := range inputs {
		amount := models.RoundMoney(in.Amount)
		if !amount.IsPositive() {
			return nil, invalid(fmt.Sprintf("installments[%d].amount", i), "must be greater than zero")
		}
		if in.DueDate.IsZero() {
			return nil, invalid(fmt.Sprintf("installments[%d].due_date", i), "is required")
		}
		installments = append(installments, models.Installment{
			OwnerID:    khata.OwnerID,
			KhataID:    khata.ID,
			Amount:     amount,
			PaidAmount: decimal.Zero,
			DueDate:    in.DueDate,
			Status:     models.InstallmentStatusDue,
			Note:       in.Note,
		})
	}

	if err := s.khataRepo.CreateInstallments(ctx, installments); err != nil {
		return nil, fmt.Errorf("failed to create installments: %w", err)
	}

	s.auditSvc.Log(ctx, AuditCreate, "Installment", khata.ID,
		fmt.Sprintf("%d installments scheduled on khata %d", len(installments), khata.ID))

	return installments, nil
}

// PayInstallment records a payment against one installment and the khata balance.
// The installment, the entry and the khata are written in one transaction.
func (s *LedgerService) PayInstallment(ctx context.Context, installmentID uint, input EntryInput) (*LedgerResult, error) {
	amount := models.RoundMoney(input.Amount)
	if !amount.IsPositive() {
		return nil, invalid("amount", "must be greater than zero")
	}

	result := &LedgerResult{}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		installment, err := s.khataRepo.FindInstallment(ctx, installmentID)
		if err != nil {
			return notFound(err, "installment")
		}
		khata, err := s.khataRepo.FindByID(ctx, installment.KhataID)
		if err != nil {
			return notFound(err, "khata")
		}

		installment.PaidAmount = installment.PaidAmount.Add(amount)
		installment.RecomputeStatus()
		if err := s.khataRepo.UpdateInstallment(ctx, installment); err != nil {
			return fmt.Errorf("failed to update installment: %w", err)
		}

		khata.RemainingAmount = models.MaxZero(khata.RemainingAmount.Sub(amount))
		if input.Note == "" {
			input.Note = fmt.Sprintf("Installment %d payment", installment.ID)
		}
		entry := s.newEntry(khata, models.TransactionTypePayment, amount, input)
		entry.InstallmentID = &installment.ID
		if err := s.write(ctx, khata, entry); err != nil {
			return err
		}

		result.Khata = khata
		result.Transaction = entry
		result.Installment = installment
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerEntries.WithLabelValues(result.Transaction.Type, "create").Inc()
	s.invalidate(ctx, result.Khata.OwnerID)
	s.auditSvc.Log(ctx, AuditPayment, "Installment", installmentID,
		fmt.Sprintf("Installment payment %s, status %s, khata remaining %s",
			amount.StringFixed(2), result.Installment.Status, result.Khata.RemainingAmount.StringFixed(2)))

	return result, nil
}

// DeleteTransaction reverses a ledger entry and removes it.
// Reversing a charge is not floored, so the khata may go negative; the result flags it.
func (s *LedgerService) DeleteTransaction(ctx context.Context, transactionID uint) (*LedgerResult, error) {
	result := &LedgerResult{}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		entry, err := s.ledgerRepo.FindByID(ctx, transactionID)
		if err != nil {
			return notFound(err, "transaction")
		}
		khata, err := s.khataRepo.FindByID(ctx, entry.KhataID)
		if err != nil {
			return notFound(err, "khata")
		}
		result.Khata = khata
		result.Transaction = entry

		switch entry.Type {
		case models.TransactionTypeCharge:
			khata.TotalAmount = khata.TotalAmount.Sub(entry.Amount)
		case models.TransactionTypePayment:
		default:
			return fmt.Errorf("unknown transaction type %q", entry.Type)
		}
		khata.RemainingAmount = khata.RemainingAmount.Sub(entry.SignedAmount())
		result.NegativeBalance = !entry.IsPayment() && khata.RemainingAmount.IsNegative()

		if err := s.ledgerRepo.Delete(ctx, entry.ID); err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}

		if entry.IsPayment() && entry.InstallmentID != nil {
			installment, err := s.rollbackInstallment(ctx, *entry.InstallmentID, entry.Amount)
			if err != nil {
				return err
			}
			result.Installment = installment
		}

		return s.saveKhata(ctx, khata)
	})
	if err != nil {
		return nil, err
	}

	entry, khata := result.Transaction, result.Khata
	if result.NegativeBalance {
		logger.Warn("charge reversal left khata with negative balance",
			"khata_id", khata.ID,
			"transaction_id", entry.ID,
			"remaining", khata.RemainingAmount.StringFixed(2))
	}
	metrics.LedgerEntries.WithLabelValues(entry.Type, "reverse").Inc()

	s.auditSvc.Log(ctx, AuditReverse, "KhataTransaction", entry.ID,
		fmt.Sprintf("Reversed %s %s on khata %d, remaining %s",
			entry.Type, entry.Amount.StringFixed(2), khata.ID, khata.RemainingAmount.StringFixed(2)))
	s.invalidate(ctx, khata.OwnerID)

	return result, nil
}

// rollbackInstallment takes a reversed payment back off its installment, floored at zero
func (s *LedgerService) rollbackInstallment(ctx context.Context, installmentID uint, amount decimal.Decimal) (*models.Installment, error) {
	installment, err := s.khataRepo.FindInstallment(ctx, installmentID)
	if repository.IsNotFound(err) {
		// the installment schedule may have been replaced since
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	installment.PaidAmount = models.MaxZero(installment.PaidAmount.Sub(amount))
	installment.RecomputeStatus()
	if err := s.khataRepo.UpdateInstallment(ctx, installment); err != nil {
		return nil, fmt.Errorf("failed to update installment: %w", err)
	}
	return installment, nil
}

// GetKhata returns a khata with its customer and installments
func (s *LedgerService) GetKhata(ctx context.Context, khataID uint) (*models.Khata, error) {
	khata, err := s.khataRepo.FindByIDWithDetails(ctx, khataID)
	if err != nil {
		return nil, notFound(err, "khata")
	}
	return khata, nil
}

func (s *LedgerService) ListKhatas(ctx context.Context, query *repository.KhataQuery) ([]models.Khata, int64, error) {
	if query.Status != "" && query.Status != models.KhataStatusOpen && query.Status != models.KhataStatusClosed {
		return nil, 0, invalid("status", "must be open or closed")
	}
	return s.khataRepo.List(ctx, query)
}

// ListTransactions returns a khata's entries, newest first
func (s *LedgerService) ListTransactions(ctx context.Context, khataID uint) ([]models.KhataTransaction, error) {
	if _, err := s.khataRepo.FindByID(ctx, khataID); err != nil {
		return nil, notFound(err, "khata")
	}
	return s.ledgerRepo.FindByKhataID(ctx, khataID)
}

func (s *LedgerService) GetTransaction(ctx context.Context, transactionID uint) (*models.KhataTransaction, error) {
	entry, err := s.ledgerRepo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, notFound(err, "transaction")
	}
	return entry, nil
}

func (s *LedgerService) ListOverdueInstallments(ctx context.Context) ([]models.Installment, error) {
	return s.khataRepo.ListOverdueInstallments(ctx, s.now())
}

// ScanOverdue refreshes the overdue installment gauge
func (s *LedgerService) ScanOverdue(ctx context.Context) error {
	count, err := s.khataRepo.CountOverdueInstallments(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to count overdue installments: %w", err)
	}
	metrics.OverdueInstallments.Set(float64(count))
	if count > 0 {
		logger.Info("overdue installments", "count", count)
	}
	return nil
}

func (s *LedgerService) newEntry(khata *models.Khata, kind string, amount decimal.Decimal, input EntryInput) *models.KhataTransaction {
	return &models.KhataTransaction{
		OwnerID:           khata.OwnerID,
		KhataID:           khata.ID,
		CustomerID:        khata.CustomerID,
		OriginatingSaleID: input.SaleID,
		Type:              kind,
		Amount:            amount,
		Note:              input.Note,
	}
}

// applyEntry loads the khata, lets mutate change it and build the entry,
// then writes both in one transaction
func (s *LedgerService) applyEntry(ctx context.Context, khataID uint, mutate func(khata *models.Khata) *models.KhataTransaction) (*LedgerResult, error) {
	result := &LedgerResult{}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		khata, err := s.khataRepo.FindByID(ctx, khataID)
		if err != nil {
			return notFound(err, "khata")
		}
		entry := mutate(khata)
		if err := s.write(ctx, khata, entry); err != nil {
			return err
		}
		result.Khata = khata
		result.Transaction = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.LedgerEntries.WithLabelValues(result.Transaction.Type, "create").Inc()
	s.invalidate(ctx, result.Khata.OwnerID)
	return result, nil
}

// write stores the entry and the khata. Callers run it inside a transaction.
func (s *LedgerService) write(ctx context.Context, khata *models.Khata, entry *models.KhataTransaction) error {
	if err := s.ledgerRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to create %s: %w", entry.Type, err)
	}
	return s.saveKhata(ctx, khata)
}

// saveKhata settles the status through the khata FSM and persists a new revision
func (s *LedgerService) saveKhata(ctx context.Context, khata *models.Khata) error {
	if _, err := statemachine.NewKhataFSM(khata).Settle(ctx); err != nil {
		return stateErr(err)
	}
	khata.Touch()
	if err := s.khataRepo.Update(ctx, khata); err != nil {
		return fmt.Errorf("failed to update khata: %w", err)
	}
	return nil
}

func (s *LedgerService) invalidate(ctx context.Context, ownerID uint) {
	s.cache.InvalidateCustomerSummaries(ctx, ownerID)
}
