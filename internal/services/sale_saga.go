package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sjperalta/khata-api/internal/metrics"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/pkg/logger"
)

// sagaRun tracks the forward writes of one sale so they can be undone in reverse order.
// Steps are kept in memory even if persisting them fails.
type sagaRun struct {
	saga  *models.SaleSaga
	steps []*models.SagaStep
}

func (s *SaleService) startSaga(ctx context.Context, ownerID uint) (*sagaRun, error) {
	saga := &models.SaleSaga{
		OwnerID: ownerID,
		State:   models.SagaStateRunning,
	}
	if err := s.sagaRepo.Create(ctx, saga); err != nil {
		return nil, fmt.Errorf("failed to start sale saga: %w", err)
	}
	return &sagaRun{saga: saga}, nil
}

func resumeSaga(saga *models.SaleSaga) *sagaRun {
	run := &sagaRun{saga: saga}
	for i := range saga.Steps {
		run.steps = append(run.steps, &saga.Steps[i])
	}
	return run
}

func (s *SaleService) record(ctx context.Context, run *sagaRun, kind string, productID *uint, quantity int, refID *uint) {
	step := &models.SagaStep{
		SagaID:    run.saga.ID,
		Seq:       len(run.steps) + 1,
		Kind:      kind,
		ProductID: productID,
		Quantity:  quantity,
		RefID:     refID,
		Status:    models.SagaStepDone,
	}
	run.steps = append(run.steps, step)
	if err := s.sagaRepo.AddStep(ctx, step); err != nil {
		logger.Error("failed to persist saga step", "saga_id", run.saga.ID, "kind", kind, "error", err)
	}
}

func (s *SaleService) finishSaga(ctx context.Context, run *sagaRun, state string, cause error) {
	now := time.Now()
	run.saga.State = state
	if state != models.SagaStateCompensationFailed {
		run.saga.FinishedAt = &now
	}
	if cause != nil {
		run.saga.LastError = cause.Error()
	}
	if err := s.sagaRepo.Update(ctx, run.saga); err != nil {
		logger.Error("failed to persist saga state", "saga_id", run.saga.ID, "state", state, "error", err)
	}
	metrics.SagaOutcomes.WithLabelValues(state).Inc()
}

// abort undoes every done step and reports the outcome to the caller
func (s *SaleService) abort(ctx context.Context, run *sagaRun, cause error) error {
	if len(run.steps) == 0 {
		s.finishSaga(ctx, run, models.SagaStateCompensated, cause)
		return cause
	}

	if err := s.compensate(ctx, run); err != nil {
		run.saga.Attempts++
		s.finishSaga(ctx, run, models.SagaStateCompensationFailed, fmt.Errorf("%v; compensation: %w", cause, err))
		reportSagaFailure(ctx, run.saga, err)
		return &CompensatedError{Cause: cause, Pending: true, SagaID: run.saga.ID}
	}

	s.finishSaga(ctx, run, models.SagaStateCompensated, cause)
	return &CompensatedError{Cause: cause, SagaID: run.saga.ID}
}

// compensate walks the steps backwards and stops at the first failure.
// Compensated steps are skipped, so it can be retried.
func (s *SaleService) compensate(ctx context.Context, run *sagaRun) error {
	for i := len(run.steps) - 1; i >= 0; i-- {
		step := run.steps[i]
		if step.Status == models.SagaStepCompensated {
			continue
		}

		if err := s.undo(ctx, step); err != nil {
			return fmt.Errorf("undo %s (step %d): %w", step.Kind, step.Seq, err)
		}

		step.Status = models.SagaStepCompensated
		if step.ID != 0 {
			if err := s.sagaRepo.UpdateStep(ctx, step); err != nil {
				logger.Error("failed to persist compensated step", "saga_id", run.saga.ID, "seq", step.Seq, "error", err)
			}
		}
	}
	return nil
}

func (s *SaleService) undo(ctx context.Context, step *models.SagaStep) error {
	switch step.Kind {
	case models.SagaStepKhataPayment, models.SagaStepKhataCharge:
		if step.RefID == nil {
			return nil
		}
		_, err := s.ledger.DeleteTransaction(ctx, *step.RefID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	case models.SagaStepSaleCommit:
		if step.RefID == nil {
			return nil
		}
		err := s.saleRepo.Delete(ctx, *step.RefID)
		if repository.IsNotFound(err) {
			return nil
		}
		return err
	case models.SagaStepStockDecrement:
		if step.ProductID == nil {
			return nil
		}
		return s.productRepo.Increment(ctx, *step.ProductID, step.Quantity)
	}
	return fmt.Errorf("unknown saga step kind %q", step.Kind)
}

// RecoverSagas retries compensation for sagas that failed to roll back
// and for sagas abandoned mid-flight.
func (s *SaleService) RecoverSagas(ctx context.Context) error {
	sagas, err := s.sagaRepo.FindRecoverable(ctx, time.Now().Add(-s.staleSagaAfter))
	if err != nil {
		return fmt.Errorf("failed to load recoverable sagas: %w", err)
	}

	var failed int
	for i := range sagas {
		saga := &sagas[i]
		ownerCtx := repository.WithOwner(ctx, saga.OwnerID)
		run := resumeSaga(saga)

		if saga.State == models.SagaStateRunning && s.reachedStore(ownerCtx, saga) {
			s.finishSaga(ownerCtx, run, models.SagaStateCompleted, nil)
			continue
		}

		if err := s.compensate(ownerCtx, run); err != nil {
			failed++
			saga.Attempts++
			s.finishSaga(ownerCtx, run, models.SagaStateCompensationFailed, err)
			reportSagaFailure(ownerCtx, saga, err)
			continue
		}

		s.finishSaga(ownerCtx, run, models.SagaStateCompensated, nil)
		s.auditSvc.Log(ownerCtx, AuditRecover, "SaleSaga", saga.ID,
			fmt.Sprintf("Rolled back sale saga %d after %d attempts", saga.ID, saga.Attempts))
		logger.Info("sale saga recovered", "saga_id", saga.ID, "owner_id", saga.OwnerID)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d sale sagas still need compensation", failed, len(sagas))
	}
	return nil
}

// reachedStore reports whether an abandoned saga actually finished every write.
// The khata balance snapshot is the last write of a credit sale.
func (s *SaleService) reachedStore(ctx context.Context, saga *models.SaleSaga) bool {
	if saga.SaleID == nil {
		return false
	}
	sale, err := s.saleRepo.FindByID(ctx, *saga.SaleID)
	if err != nil {
		return false
	}
	return !sale.UsesKhata() || sale.KhataRemainingAfterSale != nil
}

func reportSagaFailure(ctx context.Context, saga *models.SaleSaga, err error) {
	logger.Error("sale saga compensation failed",
		"saga_id", saga.ID,
		"owner_id", saga.OwnerID,
		"attempts", saga.Attempts,
		"error", err)

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "sale_saga")
		scope.SetTag("saga_id", fmt.Sprint(saga.ID))
		scope.SetTag("owner_id", fmt.Sprint(saga.OwnerID))
		hub.CaptureException(err)
	})
}
