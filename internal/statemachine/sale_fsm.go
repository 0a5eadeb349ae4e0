package statemachine

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"github.com/sjperalta/khata-api/internal/models"
)

// Transient sale phases. Only completed, refunded and cancelled are persisted.
const (
	SalePhaseValidating    = "validating"
	SalePhaseStockReserved = "stock_reserved"
	SalePhaseDeleted       = "deleted"
)

var timeNow = time.Now

// SaleFSM wraps a sale with its state machine
type SaleFSM struct {
	sale *models.Sale
	fsm  *fsm.FSM
}

// NewSaleFSM creates a new sale state machine. A sale without a status starts validating.
func NewSaleFSM(sale *models.Sale) *SaleFSM {
	sfsm := &SaleFSM{
		sale: sale,
	}

	initial := sale.Status
	if initial == "" {
		initial = SalePhaseValidating
	}

	sfsm.fsm = fsm.NewFSM(
		initial,
		fsm.Events{
			// validating → stock_reserved
			{Name: "reserve", Src: []string{SalePhaseValidating}, Dst: SalePhaseStockReserved},

			// stock_reserved → completed
			{Name: "commit", Src: []string{SalePhaseStockReserved}, Dst: models.SaleStatusCompleted},

			// completed → refunded
			{Name: "refund", Src: []string{models.SaleStatusCompleted}, Dst: models.SaleStatusRefunded},

			// completed/refunded → deleted
			{Name: "delete", Src: []string{models.SaleStatusCompleted, models.SaleStatusRefunded}, Dst: SalePhaseDeleted},

			// validating/stock_reserved → cancelled (abort)
			{Name: "cancel", Src: []string{SalePhaseValidating, SalePhaseStockReserved}, Dst: models.SaleStatusCancelled},
		},
		fsm.Callbacks{},
	)

	return sfsm
}

func (s *SaleFSM) fire(ctx context.Context, event string) error {
	if !s.fsm.Can(event) {
		return fmt.Errorf("%w: sale cannot %s in state %s", ErrInvalidTransition, event, s.fsm.Current())
	}
	if err := s.fsm.Event(ctx, event); err != nil {
		return fmt.Errorf("failed to %s sale: %w", event, err)
	}
	return nil
}

// Reserve marks stock as taken for the sale
func (s *SaleFSM) Reserve(ctx context.Context) error {
	return s.fire(ctx, "reserve")
}

// Commit transitions the sale to completed
func (s *SaleFSM) Commit(ctx context.Context) error {
	if err := s.fire(ctx, "commit"); err != nil {
		return err
	}
	s.sale.Status = s.fsm.Current()
	return nil
}

// Refund transitions the sale to refunded
func (s *SaleFSM) Refund(ctx context.Context) error {
	if !s.sale.MayRefund() {
		return fmt.Errorf("%w: sale cannot be refunded in state %s", ErrInvalidTransition, s.sale.Status)
	}
	if err := s.fire(ctx, "refund"); err != nil {
		return err
	}
	now := timeNow()
	s.sale.Status = s.fsm.Current()
	s.sale.RefundedAt = &now
	return nil
}

// Delete marks the sale for removal
func (s *SaleFSM) Delete(ctx context.Context) error {
	return s.fire(ctx, "delete")
}

// Cancel aborts a sale that was never committed
func (s *SaleFSM) Cancel(ctx context.Context) error {
	if err := s.fire(ctx, "cancel"); err != nil {
		return err
	}
	s.sale.Status = s.fsm.Current()
	return nil
}
