package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/miuvuu/miuvuu-backend/pkg/db/types"
)

// Product is a catalog listing together with its ordered media references.
type Product struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CategoryID  int64              `gorm:"column:category_id;not null"`
	Name        string             `gorm:"column:name;not null"`
	Description string             `gorm:"column:description;not null;default:''"`
	Price       decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity    int                `gorm:"column:quantity;not null;default:0"`
	Media       dbtypes.MediaField `gorm:"column:media;not null"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
