package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/sjperalta/khata-api/internal/cache"
	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/repository"
)

// CustomerInput creates or updates a customer
type CustomerInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type CustomerService struct {
	repo     repository.CustomerRepository
	auditSvc *AuditService
	cache    *cache.Store
}

func NewCustomerService(repo repository.CustomerRepository, auditSvc *AuditService, cacheStore *cache.Store) *CustomerService {
	return &CustomerService{repo: repo, auditSvc: auditSvc, cache: cacheStore}
}

func (s *CustomerService) CreateCustomer(ctx context.Context, input CustomerInput) (*models.Customer, error) {
	ownerID, ok := repository.OwnerFrom(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, invalid("name", "is required")
	}

	customer := &models.Customer{OwnerID: ownerID}
	applyCustomerInput(customer, input)
	if err := s.repo.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	s.auditSvc.Log(ctx, AuditCreate, "Customer", customer.ID, fmt.Sprintf("Customer %q created", customer.Name))
	s.cache.InvalidateCustomerSummaries(ctx, ownerID)
	return customer, nil
}

// GetCustomer returns a customer with balances over all of its khatas
func (s *CustomerService) GetCustomer(ctx context.Context, id uint) (*models.CustomerSummary, error) {
	customer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "customer")
	}
	summaries, err := s.summarize(ctx, []models.Customer{*customer})
	if err != nil {
		return nil, err
	}
	return &summaries[0], nil
}

func (s *CustomerService) UpdateCustomer(ctx context.Context, id uint, input CustomerInput) (*models.Customer, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, invalid("name", "is required")
	}
	customer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "customer")
	}

	applyCustomerInput(customer, input)
	if err := s.repo.Update(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}

	s.auditSvc.Log(ctx, AuditUpdate, "Customer", customer.ID, fmt.Sprintf("Customer %q updated", customer.Name))
	s.cache.InvalidateCustomerSummaries(ctx, customer.OwnerID)
	return customer, nil
}

// ListCustomers returns customers with balances summed over all of their khatas.
// The unfiltered first page is served from the cache when available.
func (s *CustomerService) ListCustomers(ctx context.Context, query *repository.ListQuery) ([]models.CustomerSummary, int64, error) {
	ownerID, ok := repository.OwnerFrom(ctx)
	if !ok {
		return nil, 0, ErrUnauthorized
	}

	cacheable := isDefaultPage(query)
	if cacheable {
		var cached cachedCustomerPage
		if s.cache.GetCustomerSummaries(ctx, ownerID, &cached) {
			return cached.Customers, cached.Total, nil
		}
	}

	customers, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	summaries, err := s.summarize(ctx, customers)
	if err != nil {
		return nil, 0, err
	}

	if cacheable {
		s.cache.CacheCustomerSummaries(ctx, ownerID, cachedCustomerPage{Customers: summaries, Total: total})
	}
	return summaries, total, nil
}

type cachedCustomerPage struct {
	Customers []models.CustomerSummary `json:"customers"`
	Total     int64                    `json:"total"`
}

func isDefaultPage(query *repository.ListQuery) bool {
	if query == nil {
		return true
	}
	return query.Page <= 1 && query.Search == "" && query.SortBy == "" && query.PerPage == repository.NewListQuery().PerPage
}

func (s *CustomerService) summarize(ctx context.Context, customers []models.Customer) ([]models.CustomerSummary, error) {
	ids := make([]uint, len(customers))
	for i, c := range customers {
		ids[i] = c.ID
	}

	totals, err := s.repo.KhataTotals(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate khatas: %w", err)
	}

	summaries := make([]models.CustomerSummary, len(customers))
	for i, c := range customers {
		t := totals[c.ID]
		summaries[i] = models.CustomerSummary{
			Customer:        c,
			TotalAmount:     models.RoundMoney(t.TotalAmount),
			RemainingAmount: models.RoundMoney(t.RemainingAmount),
			KhataCount:      t.KhataCount,
			OpenKhataCount:  t.OpenKhataCount,
		}
	}
	return summaries, nil
}

func applyCustomerInput(customer *models.Customer, input CustomerInput) {
	customer.Name = strings.TrimSpace(input.Name)
	customer.Phone = strings.TrimSpace(input.Phone)
	customer.Email = strings.TrimSpace(input.Email)
	customer.Address = strings.TrimSpace(input.Address)
}
