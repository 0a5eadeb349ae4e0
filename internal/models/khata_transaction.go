package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// KhataTransaction is a ledger entry on a khata. Amount is always positive; Type gives the side.
type KhataTransaction struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	OwnerID           uint            `gorm:"not null;index" json:"owner_id"`
	KhataID           uint            `gorm:"not null;index" json:"khata_id"`
	CustomerID        uint            `gorm:"not null;index" json:"customer_id"`
	InstallmentID     *uint           `gorm:"index" json:"installment_id,omitempty"`
	OriginatingSaleID *uint           `gorm:"index" json:"originating_sale_id,omitempty"`
	Type              string          `gorm:"not null;index" json:"type"`
	Amount            decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount"`
	Note              string          `gorm:"type:text" json:"note"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// TableName specifies the table name for KhataTransaction
func (KhataTransaction) TableName() string {
	return "khata_transactions"
}

// Transaction type constants
const (
	TransactionTypeCharge  = "charge"
	TransactionTypePayment = "payment"
)

// IsCharge returns true for entries that increase what the customer owes
func (t *KhataTransaction) IsCharge() bool {
	return t.Type == TransactionTypeCharge
}

// IsPayment returns true for entries that decrease what the customer owes
func (t *KhataTransaction) IsPayment() bool {
	return t.Type == TransactionTypePayment
}

// SignedAmount is positive for charges and negative for payments
func (t *KhataTransaction) SignedAmount() decimal.Decimal {
	if t.IsPayment() {
		return t.Amount.Neg()
	}
	return t.Amount
}
