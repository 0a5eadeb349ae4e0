package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type ctxKey string

// OwnerIDKey is the context key for the acting owner (tenant) id
const OwnerIDKey ctxKey = "owner_id"

// WithOwner adds the owner id to the context
func WithOwner(ctx context.Context, ownerID uint) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// OwnerFrom extracts the owner id from the context
func OwnerFrom(ctx context.Context) (uint, bool) {
	ownerID, ok := ctx.Value(OwnerIDKey).(uint)
	return ownerID, ok && ownerID != 0
}

// OwnerScope returns a GORM scope that filters by owner.
// Without an owner in the context nothing matches.
func OwnerScope(ctx context.Context) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		ownerID, ok := OwnerFrom(ctx)
		if !ok {
			return db.Where("1 = 0")
		}
		return db.Where("owner_id = ?", ownerID)
	}
}

// IsNotFound reports whether err is a missing-record error
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsUniqueViolation reports whether err comes from a unique index
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
