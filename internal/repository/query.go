package repository

import "gorm.io/gorm"

// ListQuery represents common query parameters
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
	SortBy  string
	SortDir string
	Filters map[string]string
}

// NewListQuery creates a ListQuery with defaults
func NewListQuery() *ListQuery {
	return &ListQuery{
		Page:    1,
		PerPage: 20,
		Filters: make(map[string]string),
	}
}

// sortable columns per listing, anything else falls back to the default order
var sortableColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"status":     true,
}

func (q *ListQuery) order(db *gorm.DB, fallback string) *gorm.DB {
	if q == nil || !sortableColumns[q.SortBy] {
		return db.Order(fallback)
	}
	order := q.SortBy
	if q.SortDir == "desc" {
		order += " DESC"
	}
	return db.Order(order)
}

func (q *ListQuery) paginate(db *gorm.DB) *gorm.DB {
	if q == nil || q.PerPage <= 0 {
		return db
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	return db.Offset((page - 1) * q.PerPage).Limit(q.PerPage)
}
