package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a shop customer that can hold store credit
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OwnerID   uint      `gorm:"not null;index" json:"owner_id"`
	Name      string    `gorm:"not null" json:"name"`
	Phone     string    `gorm:"index" json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Associations
	Khatas []Khata `gorm:"foreignKey:CustomerID" json:"khatas,omitempty"`
}

// TableName specifies the table name for Customer
func (Customer) TableName() string {
	return "customers"
}

// CustomerSummary is a customer with balances aggregated over all of its khatas
type CustomerSummary struct {
	Customer
	TotalAmount     decimal.Decimal `json:"total_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	KhataCount      int             `json:"khata_count"`
	OpenKhataCount  int             `json:"open_khata_count"`
}
