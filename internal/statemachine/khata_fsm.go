package statemachine

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
	"github.com/sjperalta/khata-api/internal/models"
)

// KhataFSM wraps a khata with its state machine
type KhataFSM struct {
	khata *models.Khata
	fsm   *fsm.FSM
}

// NewKhataFSM creates a new khata state machine
func NewKhataFSM(khata *models.Khata) *KhataFSM {
	kfsm := &KhataFSM{
		khata: khata,
	}

	kfsm.fsm = fsm.NewFSM(
		khata.Status,
		fsm.Events{
			// open → closed (nothing left to pay)
			{Name: "close", Src: []string{models.KhataStatusOpen}, Dst: models.KhataStatusClosed},

			// closed → open (owes money again)
			{Name: "reopen", Src: []string{models.KhataStatusClosed}, Dst: models.KhataStatusOpen},
		},
		fsm.Callbacks{},
	)

	return kfsm
}

// Close transitions khata to closed state
func (k *KhataFSM) Close(ctx context.Context) error {
	if !k.khata.MayClose() {
		return fmt.Errorf("%w: khata cannot be closed with remaining %s in state %s",
			ErrInvalidTransition, k.khata.RemainingAmount.StringFixed(2), k.khata.Status)
	}

	if err := k.fsm.Event(ctx, "close"); err != nil {
		return fmt.Errorf("failed to close khata: %w", err)
	}

	now := timeNow()
	k.khata.Status = k.fsm.Current()
	k.khata.ClosedAt = &now
	return nil
}

// Reopen transitions khata from closed back to open
func (k *KhataFSM) Reopen(ctx context.Context) error {
	if !k.khata.MayReopen() {
		return fmt.Errorf("%w: khata cannot be reopened in state %s", ErrInvalidTransition, k.khata.Status)
	}

	if err := k.fsm.Event(ctx, "reopen"); err != nil {
		return fmt.Errorf("failed to reopen khata: %w", err)
	}

	k.khata.Status = k.fsm.Current()
	k.khata.ClosedAt = nil
	return nil
}

// Settle closes a paid-off khata or reopens one that owes money again.
// It reports whether the status changed.
func (k *KhataFSM) Settle(ctx context.Context) (bool, error) {
	switch {
	case k.khata.MayClose():
		return true, k.Close(ctx)
	case k.khata.MayReopen():
		return true, k.Reopen(ctx)
	}
	return false, nil
}
