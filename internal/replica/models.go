package replica

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sync status of a locally cached record
const (
	SyncStatusSynced        = "synced"
	SyncStatusPendingCreate = "pending_create"
	SyncStatusPendingDelete = "pending_delete"
)

// LocalProduct is the terminal's copy of a product. Stock is the server stock
// minus what pending local sales still hold.
type LocalProduct struct {
	ID             uint            `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Name           string          `gorm:"not null" json:"name"`
	SKU            string          `gorm:"index" json:"sku"`
	BuyPrice       decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"buy_price"`
	SellPrice      decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"sell_price"`
	ServerStock    int             `gorm:"not null;default:0" json:"server_stock"`
	Stock          int             `gorm:"not null;default:0" json:"stock"`
	ServerRevision uint            `gorm:"not null;default:0" json:"server_revision"`
	SyncStatus     string          `gorm:"not null;default:synced" json:"sync_status"`
	SyncedAt       time.Time       `json:"synced_at"`
}

func (LocalProduct) TableName() string {
	return "local_products"
}

// LocalKhata is the terminal's copy of a khata with a projected balance
type LocalKhata struct {
	ID              uint            `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CustomerID      uint            `gorm:"not null;index" json:"customer_id"`
	Title           string          `json:"title"`
	Status          string          `json:"status"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total_amount"`
	ServerRemaining decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"server_remaining"`
	RemainingAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"remaining_amount"`
	ServerRevision  uint            `gorm:"not null;default:0" json:"server_revision"`
	SyncStatus      string          `gorm:"not null;default:synced" json:"sync_status"`
	SyncedAt        time.Time       `json:"synced_at"`
}

func (LocalKhata) TableName() string {
	return "local_khatas"
}

// LocalSale is a sale known to the terminal: either mirrored from the server
// or recorded offline and waiting to be pushed.
type LocalSale struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ServerID      *uint           `gorm:"uniqueIndex" json:"server_id,omitempty"`
	ClientRef     string          `gorm:"size:64;uniqueIndex" json:"client_ref"`
	InvoiceNumber int64           `json:"invoice_number,omitempty"`
	InvoiceLabel  string          `gorm:"not null" json:"invoice_label"`
	PaymentMethod string          `gorm:"not null" json:"payment_method"`
	CustomerID    *uint           `json:"customer_id,omitempty"`
	KhataID       *uint           `gorm:"index" json:"khata_id,omitempty"`
	Subtotal      decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"subtotal"`
	Discount      decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"discount"`
	Total         decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"total"`
	PaidAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"paid_amount"`
	Status        string          `json:"status"`
	SyncStatus    string          `gorm:"not null;index" json:"sync_status"`
	// BaseRevision is the khata revision the sale was projected against
	BaseRevision   uint      `json:"base_revision"`
	ServerRevision uint      `json:"server_revision"`
	LastError      string    `json:"last_error,omitempty"`
	Attempts       int       `gorm:"not null;default:0" json:"attempts"`
	SoldAt         time.Time `gorm:"index" json:"sold_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Items []LocalSaleItem `gorm:"foreignKey:LocalSaleID;constraint:OnDelete:CASCADE" json:"items"`
}

func (LocalSale) TableName() string {
	return "local_sales"
}

// LocalSaleItem is one line of a local sale
type LocalSaleItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	LocalSaleID uint            `gorm:"not null;index" json:"local_sale_id"`
	ProductID   uint            `gorm:"not null;index" json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	SellPrice   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"sell_price"`
	ItemTotal   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"item_total"`
	// BaseRevision is the product revision the line was sold against
	BaseRevision uint `json:"base_revision"`
}

func (LocalSaleItem) TableName() string {
	return "local_sale_items"
}

// SyncConflict records that the server changed a record a pending sale was built on
type SyncConflict struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	LocalSaleID    uint       `gorm:"not null;index" json:"local_sale_id"`
	ClientRef      string     `json:"client_ref"`
	Entity         string     `gorm:"not null" json:"entity"`
	EntityID       uint       `gorm:"not null" json:"entity_id"`
	BaseRevision   uint       `json:"base_revision"`
	ServerRevision uint       `json:"server_revision"`
	Detail         string     `json:"detail"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (SyncConflict) TableName() string {
	return "sync_conflicts"
}

// SyncState holds the terminal's sync bookkeeping, one row
type SyncState struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	LastPullAt time.Time `json:"last_pull_at"`
	ServerTime time.Time `json:"server_time"`
	LastSyncAt time.Time `json:"last_sync_at"`
	LastError  string    `json:"last_error,omitempty"`
}

func (SyncState) TableName() string {
	return "sync_state"
}

// Conflict entities
const (
	ConflictEntityKhata   = "khata"
	ConflictEntityProduct = "product"
)

func allModels() []interface{} {
	return []interface{}{
		&LocalProduct{},
		&LocalKhata{},
		&LocalSale{},
		&LocalSaleItem{},
		&SyncConflict{},
		&SyncState{},
	}
}
