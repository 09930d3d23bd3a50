package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/larkspurhq/storefront-backend/pkg/enums"
)

// Product represents a storefront listing. Purchasable units live on its
// variants.
type Product struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Slug        string              `gorm:"column:slug;not null;uniqueIndex"`
	Title       string              `gorm:"column:title;not null"`
	Description *string             `gorm:"column:description"`
	Status      enums.ProductStatus `gorm:"column:status;not null;default:'active'"`
	Variants    []ProductVariant    `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
