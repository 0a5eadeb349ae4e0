package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_CreateKhataEmitsOpeningCharge(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")

	res, err := env.ledger.CreateKhata(env.ctx, CreateKhataInput{CustomerID: c.ID, Title: "Groceries", TotalAmount: money(5000)})
	require.NoError(t, err)

	assertMoney(t, "5000", res.Khata.RemainingAmount)
	assertMoney(t, "5000", res.Khata.TotalAmount)
	assert.Equal(t, models.KhataStatusOpen, res.Khata.Status)

	entries, err := env.ledger.ListTransactions(env.ctx, res.Khata.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.TransactionTypeCharge, entries[0].Type)
	assertMoney(t, "5000", entries[0].Amount)
}

func TestLedger_CreateKhataZeroTotalHasNoCharge(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")

	res, err := env.ledger.CreateKhata(env.ctx, CreateKhataInput{CustomerID: c.ID, Title: "Tab", TotalAmount: money(0)})
	require.NoError(t, err)
	assert.Nil(t, res.Transaction)
	assert.Equal(t, models.KhataStatusOpen, res.Khata.Status)
}

func TestLedger_CreateKhataValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")

	_, err := env.ledger.CreateKhata(env.ctx, CreateKhataInput{CustomerID: c.ID, Title: " ", TotalAmount: money(10)})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "title", verr.Field)

	_, err = env.ledger.CreateKhata(env.ctx, CreateKhataInput{CustomerID: c.ID, Title: "x", TotalAmount: money(-1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.ledger.CreateKhata(env.ctx, CreateKhataInput{CustomerID: 999, Title: "x", TotalAmount: money(1)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_OneOpenKhataPerCustomer(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 100)

	_, err := env.ledger.CreateKhata(env.ctx, CreateKhataInput{CustomerID: c.ID, Title: "Second", TotalAmount: money(50)})
	assert.ErrorIs(t, err, ErrConflict)

	// once paid off the khata closes and a new one may be opened
	_, err = env.ledger.AddPayment(env.ctx, k.ID, EntryInput{Amount: money(100)})
	require.NoError(t, err)
	assert.Equal(t, models.KhataStatusClosed, env.reloadKhata(t, k.ID).Status)

	_, err = env.ledger.CreateKhata(env.ctx, CreateKhataInput{CustomerID: c.ID, Title: "Second", TotalAmount: money(50)})
	assert.NoError(t, err)
}

func TestLedger_DeleteOpeningChargeZeroesKhata(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	res, err := env.ledger.CreateKhata(env.ctx, CreateKhataInput{CustomerID: c.ID, Title: "x", TotalAmount: money(1000)})
	require.NoError(t, err)

	out, err := env.ledger.DeleteTransaction(env.ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.False(t, out.NegativeBalance)

	k := env.reloadKhata(t, res.Khata.ID)
	assertMoney(t, "0", k.TotalAmount)
	assertMoney(t, "0", k.RemainingAmount)
	assert.Equal(t, models.KhataStatusClosed, k.Status)

	entries, err := env.ledger.ListTransactions(env.ctx, k.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_InstallmentPayment(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 5000)

	due := time.Now().AddDate(0, 1, 0)
	installments, err := env.ledger.AddInstallments(env.ctx, k.ID, []InstallmentInput{
		{Amount: money(2000), DueDate: due},
		{Amount: money(3000), DueDate: due.AddDate(0, 1, 0)},
	})
	require.NoError(t, err)
	require.Len(t, installments, 2)
	assertMoney(t, "5000", env.reloadKhata(t, k.ID).RemainingAmount)

	res, err := env.ledger.PayInstallment(env.ctx, installments[0].ID, EntryInput{Amount: money(2000)})
	require.NoError(t, err)

	assert.Equal(t, models.InstallmentStatusPaid, res.Installment.Status)
	assertMoney(t, "3000", res.Khata.RemainingAmount)
	require.NotNil(t, res.Transaction.InstallmentID)
	assert.Equal(t, installments[0].ID, *res.Transaction.InstallmentID)

	partial, err := env.ledger.PayInstallment(env.ctx, installments[1].ID, EntryInput{Amount: money(1000)})
	require.NoError(t, err)
	assert.Equal(t, models.InstallmentStatusPartial, partial.Installment.Status)
}

func TestLedger_InstallmentOverpaymentFloorsAtZero(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 500)

	installments, err := env.ledger.AddInstallments(env.ctx, k.ID, []InstallmentInput{
		{Amount: money(500), DueDate: time.Now()},
	})
	require.NoError(t, err)

	res, err := env.ledger.PayInstallment(env.ctx, installments[0].ID, EntryInput{Amount: money(800)})
	require.NoError(t, err)

	assertMoney(t, "0", res.Khata.RemainingAmount)
	assert.Equal(t, models.KhataStatusClosed, res.Khata.Status)
	assert.Equal(t, models.InstallmentStatusPaid, res.Installment.Status)
}

func TestLedger_AddInstallmentsValidation(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 500)

	_, err := env.ledger.AddInstallments(env.ctx, k.ID, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.ledger.AddInstallments(env.ctx, k.ID, []InstallmentInput{{Amount: money(10)}})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "installments[0].due_date", verr.Field)
}

func TestLedger_PaymentReversalReopensAndRollsBackInstallment(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 1000)

	installments, err := env.ledger.AddInstallments(env.ctx, k.ID, []InstallmentInput{
		{Amount: money(1000), DueDate: time.Now().AddDate(0, 0, 7)},
	})
	require.NoError(t, err)

	paid, err := env.ledger.PayInstallment(env.ctx, installments[0].ID, EntryInput{Amount: money(1000)})
	require.NoError(t, err)
	assert.Equal(t, models.KhataStatusClosed, paid.Khata.Status)

	res, err := env.ledger.DeleteTransaction(env.ctx, paid.Transaction.ID)
	require.NoError(t, err)

	assert.Equal(t, models.KhataStatusOpen, res.Khata.Status)
	assertMoney(t, "1000", res.Khata.RemainingAmount)
	require.NotNil(t, res.Installment)
	assertMoney(t, "0", res.Installment.PaidAmount)
	assert.Equal(t, models.InstallmentStatusDue, res.Installment.Status)
}

func TestLedger_ChargeReversalIsNotFloored(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	res, err := env.ledger.CreateKhata(env.ctx, CreateKhataInput{CustomerID: c.ID, Title: "x", TotalAmount: money(1000)})
	require.NoError(t, err)

	_, err = env.ledger.AddPayment(env.ctx, res.Khata.ID, EntryInput{Amount: money(800)})
	require.NoError(t, err)

	out, err := env.ledger.DeleteTransaction(env.ctx, res.Transaction.ID)
	require.NoError(t, err)

	assert.True(t, out.NegativeBalance)
	assertMoney(t, "-800", out.Khata.RemainingAmount)
	assert.Equal(t, models.KhataStatusOpen, out.Khata.Status)
}

func TestLedger_AddChargeReopensClosedKhata(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 100)

	_, err := env.ledger.AddPayment(env.ctx, k.ID, EntryInput{Amount: money(100)})
	require.NoError(t, err)

	res, err := env.ledger.AddCharge(env.ctx, k.ID, EntryInput{Amount: money(40), Note: "sugar"})
	require.NoError(t, err)
	assert.Equal(t, models.KhataStatusOpen, res.Khata.Status)
	assert.Nil(t, res.Khata.ClosedAt)
	assertMoney(t, "140", res.Khata.TotalAmount)
	assertMoney(t, "40", res.Khata.RemainingAmount)
}

func TestLedger_RemainingNeverNegativeAndMatchesLedger(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 1000)

	ops := []struct {
		charge bool
		amount int64
	}{
		{false, 300}, {true, 250}, {false, 450}, {true, 100}, {false, 600},
	}
	for _, op := range ops {
		var (
			res *LedgerResult
			err error
		)
		if op.charge {
			res, err = env.ledger.AddCharge(env.ctx, k.ID, EntryInput{Amount: money(op.amount)})
		} else {
			res, err = env.ledger.AddPayment(env.ctx, k.ID, EntryInput{Amount: money(op.amount)})
		}
		require.NoError(t, err)
		assert.False(t, res.Khata.RemainingAmount.IsNegative())
		// no payment exceeded the balance, so there is no floor drift
		assertMoney(t, env.ledgerBalance(t, k.ID).String(), res.Khata.RemainingAmount)
	}

	final := env.reloadKhata(t, k.ID)
	assertMoney(t, "0", final.RemainingAmount)
	assert.Equal(t, models.KhataStatusClosed, final.Status)
	assert.Greater(t, final.Revision, uint(5))
}

func TestLedger_EntryAmountMustBePositive(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 100)

	_, err := env.ledger.AddCharge(env.ctx, k.ID, EntryInput{Amount: money(0)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.ledger.AddPayment(env.ctx, k.ID, EntryInput{Amount: money(-5)})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLedger_ListTransactionsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 100)

	_, err := env.ledger.AddCharge(env.ctx, k.ID, EntryInput{Amount: money(10), Note: "second"})
	require.NoError(t, err)
	_, err = env.ledger.AddPayment(env.ctx, k.ID, EntryInput{Amount: money(5), Note: "third"})
	require.NoError(t, err)

	entries, err := env.ledger.ListTransactions(env.ctx, k.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "third", entries[0].Note)
	assert.Equal(t, "second", entries[1].Note)
}

func TestLedger_ListOverdueInstallments(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 300)

	now := time.Now()
	_, err := env.ledger.AddInstallments(env.ctx, k.ID, []InstallmentInput{
		{Amount: money(100), DueDate: now.AddDate(0, 0, -10)},
		{Amount: money(100), DueDate: now.AddDate(0, 0, 10)},
	})
	require.NoError(t, err)

	env.ledger.now = func() time.Time { return now }
	overdue, err := env.ledger.ListOverdueInstallments(env.ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assertMoney(t, "100", overdue[0].Amount)

	require.NoError(t, env.ledger.ScanOverdue(env.ctx))
}

func TestLedger_OwnerIsolation(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 100)

	other := repository.WithOwner(env.ctx, testOwner+1)
	_, err := env.ledger.AddCharge(other, k.ID, EntryInput{Amount: money(10)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_MutationsAreAudited(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 100)

	_, err := env.ledger.AddPayment(env.ctx, k.ID, EntryInput{Amount: money(10)})
	require.NoError(t, err)

	logs, _, err := env.audit.List(env.ctx, &repository.AuditQuery{ListQuery: repository.NewListQuery(), Entity: "Khata"})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, AuditPayment, logs[0].Action)
}

// brokenKhataRepo fails every khata update
type brokenKhataRepo struct {
	repository.KhataRepository
}

func (r *brokenKhataRepo) Update(ctx context.Context, khata *models.Khata) error {
	return errors.New("disk full")
}

func TestLedger_FailedKhataWriteRollsBackInstallmentPayment(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 1000)

	installments, err := env.ledger.AddInstallments(env.ctx, k.ID, []InstallmentInput{
		{Amount: money(500), DueDate: time.Now().AddDate(0, 0, 7)},
	})
	require.NoError(t, err)

	broken := NewLedgerService(env.repos.Customer, &brokenKhataRepo{env.repos.Khata}, env.repos.Ledger, env.repos.Tx, env.audit, nil)
	_, err = broken.PayInstallment(env.ctx, installments[0].ID, EntryInput{Amount: money(500)})
	require.Error(t, err)

	installment, err := env.repos.Khata.FindInstallment(env.ctx, installments[0].ID)
	require.NoError(t, err)
	assertMoney(t, "0", installment.PaidAmount)
	assert.Equal(t, models.InstallmentStatusDue, installment.Status)

	assertMoney(t, "1000", env.reloadKhata(t, k.ID).RemainingAmount)
	assertMoney(t, "1000", env.ledgerBalance(t, k.ID))
}

func TestLedger_FailedKhataWriteKeepsReversedPayment(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 1000)

	installments, err := env.ledger.AddInstallments(env.ctx, k.ID, []InstallmentInput{
		{Amount: money(400), DueDate: time.Now().AddDate(0, 0, 7)},
	})
	require.NoError(t, err)
	paid, err := env.ledger.PayInstallment(env.ctx, installments[0].ID, EntryInput{Amount: money(400)})
	require.NoError(t, err)

	broken := NewLedgerService(env.repos.Customer, &brokenKhataRepo{env.repos.Khata}, env.repos.Ledger, env.repos.Tx, env.audit, nil)
	_, err = broken.DeleteTransaction(env.ctx, paid.Transaction.ID)
	require.Error(t, err)

	_, err = env.repos.Ledger.FindByID(env.ctx, paid.Transaction.ID)
	require.NoError(t, err)

	installment, err := env.repos.Khata.FindInstallment(env.ctx, installments[0].ID)
	require.NoError(t, err)
	assertMoney(t, "400", installment.PaidAmount)
	assert.Equal(t, models.InstallmentStatusPaid, installment.Status)

	assertMoney(t, "600", env.reloadKhata(t, k.ID).RemainingAmount)
	assertMoney(t, "600", env.ledgerBalance(t, k.ID))
}

func TestLedger_FailedKhataWriteLeavesNoCharge(t *testing.T) {
	env := newTestEnv(t)
	c := env.customer(t, "Ravi")
	k := env.khata(t, c.ID, 1000)

	broken := NewLedgerService(env.repos.Customer, &brokenKhataRepo{env.repos.Khata}, env.repos.Ledger, env.repos.Tx, env.audit, nil)
	_, err := broken.AddCharge(env.ctx, k.ID, EntryInput{Amount: money(250)})
	require.Error(t, err)

	entries, err := env.ledger.ListTransactions(env.ctx, k.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assertMoney(t, "1000", env.ledgerBalance(t, k.ID))
}
