package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/larkspurhq/storefront-backend/pkg/db/models"
	"github.com/larkspurhq/storefront-backend/pkg/enums"
)

// ProductSummary is the browse-row shape returned by the list endpoint.
type ProductSummary struct {
	ID           uuid.UUID           `json:"id"`
	Slug         string              `json:"slug"`
	Title        string              `json:"title"`
	Status       enums.ProductStatus `json:"status"`
	PriceFrom    *decimal.Decimal    `json:"price_from,omitempty"`
	VariantCount int                 `json:"variant_count"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// ProductListResult pairs a page of summaries with the cursor for the next one.
type ProductListResult struct {
	Products   []ProductSummary `json:"products"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// VariantDTO is the purchasable unit payload.
type VariantDTO struct {
	ID        uuid.UUID       `json:"id"`
	SKU       string          `json:"sku"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
	IsActive  bool            `json:"is_active"`
}

// ProductDetail is the full product payload with its variants.
type ProductDetail struct {
	ID          uuid.UUID           `json:"id"`
	Slug        string              `json:"slug"`
	Title       string              `json:"title"`
	Description *string             `json:"description,omitempty"`
	Status      enums.ProductStatus `json:"status"`
	Variants    []VariantDTO        `json:"variants"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// NewProductDetail builds the detail payload from the persisted model.
func NewProductDetail(product *models.Product) *ProductDetail {
	if product == nil {
		return nil
	}

	variants := make([]VariantDTO, 0, len(product.Variants))
	for _, variant := range product.Variants {
		variants = append(variants, VariantDTO{
			ID:        variant.ID,
			SKU:       variant.SKU,
			Title:     variant.Title,
			UnitPrice: variant.UnitPrice,
			Currency:  variant.Currency,
			IsActive:  variant.IsActive,
		})
	}

	return &ProductDetail{
		ID:          product.ID,
		Slug:        product.Slug,
		Title:       product.Title,
		Description: product.Description,
		Status:      product.Status,
		Variants:    variants,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}
