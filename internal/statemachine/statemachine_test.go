package statemachine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKhataFSM_CloseRequiresZeroRemaining(t *testing.T) {
	khata := &models.Khata{Status: models.KhataStatusOpen, RemainingAmount: decimal.NewFromInt(10)}

	err := NewKhataFSM(khata).Close(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, models.KhataStatusOpen, khata.Status)

	khata.RemainingAmount = decimal.Zero
	require.NoError(t, NewKhataFSM(khata).Close(context.Background()))
	assert.Equal(t, models.KhataStatusClosed, khata.Status)
	assert.NotNil(t, khata.ClosedAt)
}

func TestKhataFSM_Settle(t *testing.T) {
	ctx := context.Background()
	khata := &models.Khata{Status: models.KhataStatusClosed, RemainingAmount: decimal.NewFromInt(5)}

	changed, err := NewKhataFSM(khata).Settle(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.KhataStatusOpen, khata.Status)
	assert.Nil(t, khata.ClosedAt)

	changed, err = NewKhataFSM(khata).Settle(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	khata.RemainingAmount = decimal.Zero
	changed, err = NewKhataFSM(khata).Settle(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.KhataStatusClosed, khata.Status)
}

func TestKhataFSM_NegativeBalanceStaysOpen(t *testing.T) {
	khata := &models.Khata{Status: models.KhataStatusOpen, RemainingAmount: decimal.NewFromInt(-100)}

	changed, err := NewKhataFSM(khata).Settle(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, models.KhataStatusOpen, khata.Status)
}

func TestSaleFSM_Lifecycle(t *testing.T) {
	ctx := context.Background()
	sale := &models.Sale{}
	sfsm := NewSaleFSM(sale)

	// a new sale starts validating
	assert.ErrorIs(t, sfsm.Commit(ctx), ErrInvalidTransition)
	require.NoError(t, sfsm.Reserve(ctx))
	require.NoError(t, sfsm.Commit(ctx))
	assert.Equal(t, models.SaleStatusCompleted, sale.Status)

	require.NoError(t, sfsm.Refund(ctx))
	assert.Equal(t, models.SaleStatusRefunded, sale.Status)
	assert.NotNil(t, sale.RefundedAt)

	err := sfsm.Refund(ctx)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, sfsm.Delete(ctx))
	assert.ErrorIs(t, sfsm.Delete(ctx), ErrInvalidTransition)
}

func TestSaleFSM_CancelOnlyBeforeCommit(t *testing.T) {
	ctx := context.Background()

	reserved := &models.Sale{}
	sfsm := NewSaleFSM(reserved)
	require.NoError(t, sfsm.Reserve(ctx))
	require.NoError(t, sfsm.Cancel(ctx))
	assert.Equal(t, models.SaleStatusCancelled, reserved.Status)

	completed := &models.Sale{Status: models.SaleStatusCompleted}
	assert.ErrorIs(t, NewSaleFSM(completed).Cancel(ctx), ErrInvalidTransition)
}
