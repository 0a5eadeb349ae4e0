package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable catalog item with on-hand stock
type Product struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	OwnerID   uint            `gorm:"not null;index" json:"owner_id"`
	Name      string          `gorm:"not null" json:"name"`
	SKU       string          `gorm:"index" json:"sku"`
	BuyPrice  decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"buy_price"`
	SellPrice decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"sell_price"`
	Stock     int             `gorm:"not null;default:0" json:"stock"`
	Revision  uint            `gorm:"not null;default:1" json:"revision"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName specifies the table name for Product
func (Product) TableName() string {
	return "products"
}
