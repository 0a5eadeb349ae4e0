package models

import (
	"time"
)

// AuditLog records who changed which ledger or sale record
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"not null;index" json:"owner_id"`
	UserID    uint      `gorm:"not null" json:"user_id"`
	Action    string    `gorm:"size:50;not null" json:"action"` // CREATE, CHARGE, PAYMENT, REVERSE, REFUND, DELETE
	Entity    string    `gorm:"size:50;not null" json:"entity"` // Khata, Installment, KhataTransaction, Sale
	EntityID  uint      `json:"entity_id"`
	Details   string    `gorm:"type:text" json:"details"`
	IPAddress string    `gorm:"size:45" json:"ip_address"`
	UserAgent string    `gorm:"size:255" json:"user_agent"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for AuditLog
func (AuditLog) TableName() string {
	return "audit_logs"
}

// All returns every model migrated into the authoritative store
func All() []interface{} {
	return []interface{}{
		&Customer{},
		&Khata{},
		&Installment{},
		&KhataTransaction{},
		&Product{},
		&Sale{},
		&SaleItem{},
		&InvoiceCounter{},
		&SaleSaga{},
		&SagaStep{},
		&AuditLog{},
	}
}
