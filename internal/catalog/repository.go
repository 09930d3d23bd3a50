package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/larkspurhq/storefront-backend/pkg/db/models"
	"github.com/larkspurhq/storefront-backend/pkg/enums"
	"github.com/larkspurhq/storefront-backend/pkg/pagination"
)

// Repository reads the product catalog.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a catalog repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindBySlug loads an active product with its variants.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("sku ASC")
		}).
		Where("slug = ? AND status = ?", slug, enums.ProductStatusActive).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindVariant loads an active variant of an active product. The pair check
// stops a request from attaching variant prices to the wrong product.
func (r *Repository) FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Joins("JOIN products ON products.id = product_variants.product_id").
		Where("product_variants.id = ?", variantID).
		Where("product_variants.product_id = ?", productID).
		Where("product_variants.is_active = ?", true).
		Where("products.status = ?", enums.ProductStatusActive).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

type productListQuery struct {
	Pagination pagination.Params
	Filters    ProductListFilters
}

// ListSummaries returns one keyset page of active products, newest first.
func (r *Repository) ListSummaries(ctx context.Context, query productListQuery) (*ProductListResult, error) {
	pageSize := pagination.NormalizeLimit(query.Pagination.Limit)
	limitWithBuffer := pagination.LimitWithBuffer(query.Pagination.Limit)
	if limitWithBuffer <= pageSize {
		limitWithBuffer = pageSize + 1
	}

	cursor, err := pagination.ParseCursor(query.Pagination.Cursor)
	if err != nil {
		return nil, err
	}

	priceFromClause := "(SELECT MIN(v.unit_price) FROM product_variants v WHERE v.product_id = p.id AND v.is_active = TRUE)"
	variantCountClause := "(SELECT COUNT(*) FROM product_variants v WHERE v.product_id = p.id AND v.is_active = TRUE)"

	qb := r.db.WithContext(ctx).
		Table("products p").
		Select(strings.Join([]string{
			"p.id",
			"p.slug",
			"p.title",
			"p.status",
			"p.created_at",
			"p.updated_at",
			priceFromClause + " AS price_from",
			variantCountClause + " AS variant_count",
		}, ", ")).
		Where("p.status = ?", enums.ProductStatusActive)

	if search := strings.TrimSpace(query.Filters.Query); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(p.title) LIKE ? OR LOWER(p.slug) LIKE ?)", pattern, pattern)
	}

	if cursor != nil {
		qb = qb.Where("(p.created_at < ?) OR (p.created_at = ? AND p.id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	qb = qb.Order("p.created_at DESC").Order("p.id DESC").Limit(limitWithBuffer)

	var records []productSummaryRecord
	if err := qb.Scan(&records).Error; err != nil {
		return nil, err
	}

	resultRows := records
	nextCursor := ""
	if len(records) > pageSize {
		resultRows = records[:pageSize]
		last := resultRows[len(resultRows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	summaries := make([]ProductSummary, 0, len(resultRows))
	for _, record := range resultRows {
		summaries = append(summaries, record.toSummary())
	}

	return &ProductListResult{
		Products:   summaries,
		NextCursor: nextCursor,
	}, nil
}

type productSummaryRecord struct {
	ID           uuid.UUID
	Slug         string
	Title        string
	Status       enums.ProductStatus
	PriceFrom    decimal.NullDecimal
	VariantCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r productSummaryRecord) toSummary() ProductSummary {
	summary := ProductSummary{
		ID:           r.ID,
		Slug:         r.Slug,
		Title:        r.Title,
		Status:       r.Status,
		VariantCount: r.VariantCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.PriceFrom.Valid {
		price := r.PriceFrom.Decimal
		summary.PriceFrom = &price
	}
	return summary
}
