package repository

import (
	"context"

	"github.com/sjperalta/khata-api/internal/models"

	"gorm.io/gorm"
)

// AuditRepository defines the interface for the audit trail
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, query *AuditQuery) ([]models.AuditLog, int64, error)
}

// AuditQuery extends ListQuery with audit filters
type AuditQuery struct {
	*ListQuery
	Entity   string
	EntityID uint
}

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return conn(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) List(ctx context.Context, query *AuditQuery) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	db := conn(ctx, r.db).Model(&models.AuditLog{}).Scopes(OwnerScope(ctx))

	if query.Entity != "" {
		db = db.Where("entity = ?", query.Entity)
	}
	if query.EntityID > 0 {
		db = db.Where("entity_id = ?", query.EntityID)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db = query.ListQuery.order(db, "created_at DESC, id DESC")
	err := query.ListQuery.paginate(db).Find(&logs).Error
	return logs, total, err
}
