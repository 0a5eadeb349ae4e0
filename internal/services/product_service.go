package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
)

// ProductInput creates a catalog item
type ProductInput struct {
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	Stock     int             `json:"stock"`
}

type ProductService struct {
	repo     repository.ProductRepository
	auditSvc *AuditService
}

func NewProductService(repo repository.ProductRepository, auditSvc *AuditService) *ProductService {
	return &ProductService{repo: repo, auditSvc: auditSvc}
}

func (s *ProductService) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	ownerID, ok := repository.OwnerFrom(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, invalid("name", "is required")
	}
	if input.BuyPrice.IsNegative() {
		return nil, invalid("buy_price", "must not be negative")
	}
	if input.SellPrice.IsNegative() {
		return nil, invalid("sell_price", "must not be negative")
	}
	if input.Stock < 0 {
		return nil, invalid("stock", "must not be negative")
	}

	product := &models.Product{
		OwnerID:   ownerID,
		Name:      name,
		SKU:       strings.TrimSpace(input.SKU),
		BuyPrice:  models.RoundMoney(input.BuyPrice),
		SellPrice: models.RoundMoney(input.SellPrice),
		Stock:     input.Stock,
		Revision:  1,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.auditSvc.Log(ctx, AuditCreate, "Product", product.ID, fmt.Sprintf("Product %q created with stock %d", name, product.Stock))
	return product, nil
}

func (s *ProductService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "product")
	}
	return product, nil
}

func (s *ProductService) ListProducts(ctx context.Context, query *repository.ListQuery) ([]models.Product, int64, error) {
	return s.repo.List(ctx, query)
}
