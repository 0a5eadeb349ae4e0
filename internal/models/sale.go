package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a point-of-sale invoice
type Sale struct {
	ID                      uint             `gorm:"primaryKey" json:"id"`
	OwnerID                 uint             `gorm:"not null;uniqueIndex:idx_sales_owner_invoice;uniqueIndex:idx_sales_owner_client_ref" json:"owner_id"`
	InvoiceNumber           int64            `gorm:"not null;uniqueIndex:idx_sales_owner_invoice" json:"invoice_number"`
	ClientRef               *string          `gorm:"size:64;uniqueIndex:idx_sales_owner_client_ref" json:"client_ref,omitempty"`
	CustomerID              *uint            `gorm:"index" json:"customer_id,omitempty"`
	Subtotal                decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"subtotal"`
	Discount                decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"discount"`
	Total                   decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"total"`
	TotalCost               decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"total_cost"`
	TotalProfit             decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"total_profit"`
	PaymentMethod           string           `gorm:"not null;index" json:"payment_method"`
	KhataID                 *uint            `gorm:"index" json:"khata_id,omitempty"`
	PaidAmount              decimal.Decimal  `gorm:"type:decimal(15,2);not null;default:0" json:"paid_amount"`
	KhataRemainingAfterSale *decimal.Decimal `gorm:"type:decimal(15,2)" json:"khata_remaining_after_sale,omitempty"`
	Status                  string           `gorm:"default:completed;not null;index" json:"status"`
	Revision                uint             `gorm:"not null;default:1" json:"revision"`
	RefundedAt              *time.Time       `json:"refunded_at,omitempty"`
	CreatedAt               time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`

	// Associations
	Items []SaleItem `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE" json:"items"`
}

// TableName specifies the table name for Sale
func (Sale) TableName() string {
	return "sales"
}

// Sale status constants
const (
	SaleStatusCompleted = "completed"
	SaleStatusRefunded  = "refunded"
	SaleStatusCancelled = "cancelled"
)

// Payment method constants
const (
	PaymentMethodCash  = "cash"
	PaymentMethodCard  = "card"
	PaymentMethodKhata = "khata"
)

// IsValidPaymentMethod reports whether method is a known payment method
func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodKhata:
		return true
	}
	return false
}

// UsesKhata returns true if the sale is charged to store credit
func (s *Sale) UsesKhata() bool {
	return s.PaymentMethod == PaymentMethodKhata && s.KhataID != nil
}

// MayRefund returns true if the sale can be refunded
func (s *Sale) MayRefund() bool {
	return s.Status == SaleStatusCompleted
}

// StockRestored returns true if the sale's stock was already given back
func (s *Sale) StockRestored() bool {
	return s.Status == SaleStatusRefunded || s.Status == SaleStatusCancelled
}

// InvoiceLabel is the human readable invoice reference embedded in ledger notes
func (s *Sale) InvoiceLabel() string {
	return fmt.Sprintf("#%d", s.InvoiceNumber)
}

// SaleItem is one line of a sale
type SaleItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	SaleID      uint            `gorm:"not null;index" json:"sale_id"`
	ProductID   uint            `gorm:"not null;index" json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	BuyPrice    decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"buy_price"`
	SellPrice   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"sell_price"`
	ItemTotal   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"item_total"`
	ItemCost    decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"item_cost"`
	ItemProfit  decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"item_profit"`
}

// TableName specifies the table name for SaleItem
func (SaleItem) TableName() string {
	return "sale_items"
}

// PriceLine fills the computed totals from quantity and unit prices
func (i *SaleItem) PriceLine() {
	qty := decimal.NewFromInt(int64(i.Quantity))
	i.ItemTotal = RoundMoney(i.SellPrice.Mul(qty))
	i.ItemCost = RoundMoney(i.BuyPrice.Mul(qty))
	i.ItemProfit = i.ItemTotal.Sub(i.ItemCost)
}

// InvoiceCounter is the per-owner invoice sequence
type InvoiceCounter struct {
	OwnerID   uint      `gorm:"primaryKey;autoIncrement:false" json:"owner_id"`
	Value     int64     `gorm:"not null;default:0" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for InvoiceCounter
func (InvoiceCounter) TableName() string {
	return "invoice_counters"
}
