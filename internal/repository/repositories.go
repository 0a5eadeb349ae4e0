package repository

import (
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	Customer CustomerRepository
	Product  ProductRepository
	Khata    KhataRepository
	Ledger   LedgerRepository
	Sale     SaleRepository
	Counter  CounterRepository
	Saga     SagaRepository
	Audit    AuditRepository
	Tx       Transactor
}

// NewRepositories creates all repository instances
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Customer: NewCustomerRepository(db),
		Product:  NewProductRepository(db),
		Khata:    NewKhataRepository(db),
		Ledger:   NewLedgerRepository(db),
		Sale:     NewSaleRepository(db),
		Counter:  NewCounterRepository(db),
		Saga:     NewSagaRepository(db),
		Audit:    NewAuditRepository(db),
		Tx:       NewTransactor(db),
	}
}
