package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaOrphan records a file that an operation meant to delete but could not.
// The orphan sweep retries these until SweptAt is set.
type MediaOrphan struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID *uuid.UUID `gorm:"column:product_id;type:uuid"`
	Namespace string     `gorm:"column:namespace;not null;default:''"`
	URL       string     `gorm:"column:url;not null"`
	Reason    string     `gorm:"column:reason;not null"`
	Attempts  int        `gorm:"column:attempts;not null;default:0"`
	LastError *string    `gorm:"column:last_error"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	SweptAt   *time.Time `gorm:"column:swept_at"`
}

func (MediaOrphan) TableName() string { return "media_orphans" }

func (o *MediaOrphan) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
