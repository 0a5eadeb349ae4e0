package models

import "time"

// SaleSaga is the persisted step log of one sale commit
type SaleSaga struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	OwnerID       uint       `gorm:"not null;index" json:"owner_id"`
	SaleID        *uint      `gorm:"index" json:"sale_id,omitempty"`
	InvoiceNumber int64      `json:"invoice_number"`
	State         string     `gorm:"not null;index" json:"state"`
	LastError     string     `gorm:"type:text" json:"last_error,omitempty"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Steps []SagaStep `gorm:"foreignKey:SagaID" json:"steps,omitempty"`
}

// TableName specifies the table name for SaleSaga
func (SaleSaga) TableName() string {
	return "sale_sagas"
}

// Saga state constants
const (
	SagaStateRunning            = "running"
	SagaStateCompleted          = "completed"
	SagaStateCompensated        = "compensated"
	SagaStateCompensationFailed = "compensation_failed"
)

// SagaStep is one forward write of a saga and its compensation status
type SagaStep struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SagaID    uint      `gorm:"not null;index" json:"saga_id"`
	Seq       int       `gorm:"not null" json:"seq"`
	Kind      string    `gorm:"not null" json:"kind"`
	ProductID *uint     `json:"product_id,omitempty"`
	Quantity  int       `json:"quantity"`
	RefID     *uint     `json:"ref_id,omitempty"`
	Status    string    `gorm:"not null" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for SagaStep
func (SagaStep) TableName() string {
	return "saga_steps"
}

// Saga step kinds
const (
	SagaStepStockDecrement = "stock_decrement"
	SagaStepSaleCommit     = "sale_commit"
	SagaStepKhataCharge    = "khata_charge"
	SagaStepKhataPayment   = "khata_payment"
)

// Saga step status constants
const (
	SagaStepDone        = "done"
	SagaStepCompensated = "compensated"
)
