package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
)

// SyncService builds the snapshot terminals pull
type SyncService struct {
	productRepo repository.ProductRepository
	khataRepo   repository.KhataRepository
	saleRepo    repository.SaleRepository
	now         func() time.Time
}

func NewSyncService(productRepo repository.ProductRepository, khataRepo repository.KhataRepository, saleRepo repository.SaleRepository) *SyncService {
	return &SyncService{
		productRepo: productRepo,
		khataRepo:   khataRepo,
		saleRepo:    saleRepo,
		now:         time.Now,
	}
}

// Snapshot returns every product and khata of the owner and the sales created since `since`
func (s *SyncService) Snapshot(ctx context.Context, since time.Time) (*models.SyncSnapshot, error) {
	if _, ok := repository.OwnerFrom(ctx); !ok {
		return nil, ErrUnauthorized
	}

	snapshot := &models.SyncSnapshot{ServerTime: s.now().UTC()}

	products, err := s.productRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	khatas, err := s.khataRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load khatas: %w", err)
	}
	sales, err := s.saleRepo.ListSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load sales: %w", err)
	}

	snapshot.Products = products
	snapshot.Khatas = khatas
	snapshot.Sales = sales
	return snapshot, nil
}
