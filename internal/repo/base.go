package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Conn returns the raw connection, for binding a repository to a transaction.
func (b Base) Conn() *gorm.DB {
	return b.db
}

// Keyset scopes a query to rows whose id sorts after afterID, ordered by id.
// A nil afterID starts from the beginning.
func Keyset(afterID uuid.UUID, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if afterID != uuid.Nil {
			db = db.Where("id > ?", afterID)
		}
		if limit > 0 {
			db = db.Limit(limit)
		}
		return db.Order("id ASC")
	}
}
