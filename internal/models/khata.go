package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Khata is a customer's store-credit account
type Khata struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OwnerID         uint            `gorm:"not null;index" json:"owner_id"`
	CustomerID      uint            `gorm:"not null;index" json:"customer_id"`
	Title           string          `gorm:"not null" json:"title"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_amount"`
	RemainingAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"remaining_amount"`
	Status          string          `gorm:"default:open;not null;index" json:"status"`
	Revision        uint            `gorm:"not null;default:1" json:"revision"`
	ClosedAt        *time.Time      `json:"closed_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Associations
	Customer     *Customer          `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Installments []Installment      `gorm:"foreignKey:KhataID" json:"installments,omitempty"`
	Transactions []KhataTransaction `gorm:"foreignKey:KhataID" json:"transactions,omitempty"`
}

// TableName specifies the table name for Khata
func (Khata) TableName() string {
	return "khatas"
}

// Khata status constants
const (
	KhataStatusOpen   = "open"
	KhataStatusClosed = "closed"
)

// IsOpen returns true if the khata accepts new debt without reopening
func (k *Khata) IsOpen() bool {
	return k.Status == KhataStatusOpen
}

// MayClose returns true if the khata is open with nothing left to pay
func (k *Khata) MayClose() bool {
	return k.Status == KhataStatusOpen && k.RemainingAmount.IsZero()
}

// MayReopen returns true if a closed khata owes money again
func (k *Khata) MayReopen() bool {
	return k.Status == KhataStatusClosed && k.RemainingAmount.IsPositive()
}

// Touch bumps the revision so replicas can detect the change
func (k *Khata) Touch() {
	k.Revision++
}

// Installment is one scheduled repayment of a khata's debt
type Installment struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	OwnerID    uint            `gorm:"not null;index" json:"owner_id"`
	KhataID    uint            `gorm:"not null;index" json:"khata_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	PaidAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"paid_amount"`
	DueDate    time.Time       `gorm:"not null;index" json:"due_date"`
	Status     string          `gorm:"default:due;not null;index" json:"status"`
	Note       string          `json:"note"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Installment
func (Installment) TableName() string {
	return "installments"
}

// Installment status constants
const (
	InstallmentStatusDue     = "due"
	InstallmentStatusPartial = "partial"
	InstallmentStatusPaid    = "paid"
)

// DeriveStatus computes the status from the paid amount
func (i *Installment) DeriveStatus() string {
	switch {
	case i.PaidAmount.GreaterThanOrEqual(i.Amount):
		return InstallmentStatusPaid
	case i.PaidAmount.IsPositive():
		return InstallmentStatusPartial
	default:
		return InstallmentStatusDue
	}
}

// RecomputeStatus stores the derived status
func (i *Installment) RecomputeStatus() {
	i.Status = i.DeriveStatus()
}

// Outstanding returns what is still owed on the installment
func (i *Installment) Outstanding() decimal.Decimal {
	return MaxZero(i.Amount.Sub(i.PaidAmount))
}
