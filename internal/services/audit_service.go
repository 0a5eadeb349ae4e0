package services

import (
	"context"

	"github.com/sjperalta/khata-api/internal/jobs"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
	"github.com/sjperalta/khata-api/pkg/logger"
)

// Audit actions
const (
	AuditCreate  = "CREATE"
	AuditUpdate  = "UPDATE"
	AuditCharge  = "CHARGE"
	AuditPayment = "PAYMENT"
	AuditReverse = "REVERSE"
	AuditRefund  = "REFUND"
	AuditDelete  = "DELETE"
	AuditRecover = "RECOVER"
)

type AuditService struct {
	repo   repository.AuditRepository
	worker *jobs.Worker
}

// NewAuditService creates the audit trail service. Without a worker entries are written inline.
func NewAuditService(repo repository.AuditRepository, worker *jobs.Worker) *AuditService {
	return &AuditService{repo: repo, worker: worker}
}

// Log records an audit entry for the owner and actor carried by ctx
func (s *AuditService) Log(ctx context.Context, action, entity string, entityID uint, details string) {
	if s == nil {
		return
	}
	ownerID, _ := repository.OwnerFrom(ctx)
	actor := ActorFrom(ctx)

	entry := &models.AuditLog{
		OwnerID:   ownerID,
		UserID:    actor.UserID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Details:   details,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}

	if s.worker == nil {
		if err := s.repo.Create(ctx, entry); err != nil {
			logger.Error("failed to write audit entry", "action", action, "entity", entity, "error", err)
		}
		return
	}

	s.worker.EnqueueAsync(func(jobCtx context.Context) error {
		return s.repo.Create(jobCtx, entry)
	})
}

// List retrieves the owner's audit entries
func (s *AuditService) List(ctx context.Context, query *repository.AuditQuery) ([]models.AuditLog, int64, error) {
	return s.repo.List(ctx, query)
}
