package services

import (
	"github.com/sjperalta/khata-api/internal/cache"
	"github.com/sjperalta/khata-api/internal/config"
	"github.com/sjperalta/khata-api/internal/jobs"
	"github.com/sjperalta/khata-api/internal/repository"
)

// Services holds all service instances
type Services struct {
	Customer *CustomerService
	Product  *ProductService
	Ledger   *LedgerService
	Sale     *SaleService
	Sync     *SyncService
	Audit    *AuditService
	Job      *JobService
}

// NewServices creates all service instances
func NewServices(repos *repository.Repositories, worker *jobs.Worker, cacheStore *cache.Store, cfg *config.Config) *Services {
	auditSvc := NewAuditService(repos.Audit, worker)
	ledgerSvc := NewLedgerService(repos.Customer, repos.Khata, repos.Ledger, repos.Tx, auditSvc, cacheStore)
	correlator := NewCorrelator(repos.Ledger, repos.Sale)

	saleSvc := NewSaleService(
		repos.Sale,
		repos.Product,
		repos.Khata,
		repos.Counter,
		repos.Saga,
		repos.Tx,
		ledgerSvc,
		correlator,
		auditSvc,
		SaleServiceConfig{
			InvoiceRetryAttempts: cfg.InvoiceRetryAttempts,
			StaleSagaAfter:       10 * cfg.SagaRecoveryInterval,
		},
	)

	return &Services{
		Customer: NewCustomerService(repos.Customer, auditSvc, cacheStore),
		Product:  NewProductService(repos.Product, auditSvc),
		Ledger:   ledgerSvc,
		Sale:     saleSvc,
		Sync:     NewSyncService(repos.Product, repos.Khata, repos.Sale),
		Audit:    auditSvc,
		Job:      NewJobService(worker),
	}
}
