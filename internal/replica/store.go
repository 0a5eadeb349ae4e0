package replica

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store is the terminal's embedded database. It is single-writer.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the replica tables
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("failed to migrate replica schema: %w", err)
	}
	return nil
}

// Transaction runs fn against a store bound to one database transaction
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Products(ctx context.Context) ([]LocalProduct, error) {
	var products []LocalProduct
	err := s.db.WithContext(ctx).Order("name ASC, id ASC").Find(&products).Error
	return products, err
}

func (s *Store) ProductsByID(ctx context.Context, ids []uint) (map[uint]*LocalProduct, error) {
	var products []LocalProduct
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]*LocalProduct, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	return byID, nil
}

func (s *Store) Khatas(ctx context.Context) ([]LocalKhata, error) {
	var khatas []LocalKhata
	err := s.db.WithContext(ctx).Order("id ASC").Find(&khatas).Error
	return khatas, err
}

func (s *Store) Khata(ctx context.Context, id uint) (*LocalKhata, error) {
	var khata LocalKhata
	if err := s.db.WithContext(ctx).First(&khata, id).Error; err != nil {
		return nil, err
	}
	return &khata, nil
}

// Sale returns a local sale by its local id
func (s *Store) Sale(ctx context.Context, id uint) (*LocalSale, error) {
	var sale LocalSale
	if err := s.db.WithContext(ctx).Preload("Items").First(&sale, id).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

// Sales lists local sales, newest first, optionally filtered by sync status
func (s *Store) Sales(ctx context.Context, statuses ...string) ([]LocalSale, error) {
	var sales []LocalSale
	db := s.db.WithContext(ctx).Preload("Items")
	if len(statuses) > 0 {
		db = db.Where("sync_status IN ?", statuses)
	}
	err := db.Order("sold_at DESC, id DESC").Find(&sales).Error
	return sales, err
}

// Queue returns the sales waiting to be pushed in enqueue order
func (s *Store) Queue(ctx context.Context, status string) ([]LocalSale, error) {
	var sales []LocalSale
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("sync_status = ?", status).
		Order("id ASC").
		Find(&sales).Error
	return sales, err
}

func (s *Store) CreateSale(ctx context.Context, sale *LocalSale) error {
	return s.db.WithContext(ctx).Create(sale).Error
}

func (s *Store) UpdateSale(ctx context.Context, sale *LocalSale) error {
	return s.db.WithContext(ctx).Omit("Items").Save(sale).Error
}

// PurgeSale removes a sale and its lines
func (s *Store) PurgeSale(ctx context.Context, id uint) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("local_sale_id = ?", id).Delete(&LocalSaleItem{}).Error; err != nil {
		return err
	}
	return db.Delete(&LocalSale{}, id).Error
}

// AdjustStock moves the projected stock of a product by delta
func (s *Store) AdjustStock(ctx context.Context, productID uint, delta int) error {
	return s.db.WithContext(ctx).Model(&LocalProduct{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", delta)).Error
}

func (s *Store) SaveKhata(ctx context.Context, khata *LocalKhata) error {
	return s.db.WithContext(ctx).Save(khata).Error
}

// ReplaceCatalog swaps the mirrored products and khatas for a fresh server copy
func (s *Store) ReplaceCatalog(ctx context.Context, products []LocalProduct, khatas []LocalKhata) error {
	db := s.db.WithContext(ctx)
	if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&LocalProduct{}).Error; err != nil {
		return err
	}
	if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&LocalKhata{}).Error; err != nil {
		return err
	}
	if len(products) > 0 {
		if err := db.CreateInBatches(&products, 200).Error; err != nil {
			return err
		}
	}
	if len(khatas) > 0 {
		if err := db.CreateInBatches(&khatas, 200).Error; err != nil {
			return err
		}
	}
	return nil
}

// ReplaceSynced drops every synced sale and stores the given ones
func (s *Store) ReplaceSynced(ctx context.Context, sales []LocalSale) error {
	db := s.db.WithContext(ctx)
	synced := db.Model(&LocalSale{}).Select("id").Where("sync_status = ?", SyncStatusSynced)
	if err := db.Where("local_sale_id IN (?)", synced).Delete(&LocalSaleItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("sync_status = ?", SyncStatusSynced).Delete(&LocalSale{}).Error; err != nil {
		return err
	}
	for i := range sales {
		if err := db.Create(&sales[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// Conflicts lists recorded conflicts, newest first
func (s *Store) Conflicts(ctx context.Context, unresolvedOnly bool) ([]SyncConflict, error) {
	var conflicts []SyncConflict
	db := s.db.WithContext(ctx)
	if unresolvedOnly {
		db = db.Where("resolved_at IS NULL")
	}
	err := db.Order("id DESC").Find(&conflicts).Error
	return conflicts, err
}

// RecordConflict keeps one open conflict per sale and entity. A later server
// revision updates that row instead of adding another. It reports whether a row was created.
func (s *Store) RecordConflict(ctx context.Context, conflict *SyncConflict) (bool, error) {
	var existing SyncConflict
	err := s.db.WithContext(ctx).
		Where("local_sale_id = ? AND entity = ? AND entity_id = ? AND resolved_at IS NULL",
			conflict.LocalSaleID, conflict.Entity, conflict.EntityID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, s.db.WithContext(ctx).Create(conflict).Error
	}
	if err != nil {
		return false, err
	}
	if existing.ServerRevision == conflict.ServerRevision && existing.Detail == conflict.Detail {
		return false, nil
	}
	return false, s.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"server_revision": conflict.ServerRevision,
		"detail":          conflict.Detail,
	}).Error
}

// ResolveConflicts closes the open conflicts of a sale
func (s *Store) ResolveConflicts(ctx context.Context, localSaleID uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&SyncConflict{}).
		Where("local_sale_id = ? AND resolved_at IS NULL", localSaleID).
		Update("resolved_at", at).Error
}

// State returns the sync bookkeeping row, creating it on first use
func (s *Store) State(ctx context.Context) (*SyncState, error) {
	var state SyncState
	err := s.db.WithContext(ctx).FirstOrCreate(&state, SyncState{ID: 1}).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveState(ctx context.Context, state *SyncState) error {
	state.ID = 1
	return s.db.WithContext(ctx).Save(state).Error
}
