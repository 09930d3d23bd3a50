package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/larkspurhq/storefront-backend/internal/cart"
	"github.com/larkspurhq/storefront-backend/pkg/db/models"
	pkgerrors "github.com/larkspurhq/storefront-backend/pkg/errors"
)

// Service is the storefront's read side of the catalog. ResolveLine is the
// price authority for cart additions: the client sends product, variant and
// quantity, never a price.
type Service interface {
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error)
	GetProduct(ctx context.Context, slug string) (*ProductDetail, error)
	ResolveLine(ctx context.Context, productID, variantID uuid.UUID, quantity int) (cart.Line, error)
}

type productRepository interface {
	ListSummaries(ctx context.Context, query productListQuery) (*ProductListResult, error)
	FindBySlug(ctx context.Context, slug string) (*models.Product, error)
	FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
}

type service struct {
	repo productRepository
}

// ServiceParams bundles the catalog service dependencies.
type ServiceParams struct {
	Repo productRepository
}

// NewService constructs a catalog service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("catalog repository is required")
	}
	return &service{repo: params.Repo}, nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	result, err := s.repo.ListSummaries(ctx, productListQuery{
		Pagination: input.Pagination,
		Filters:    input.Filters,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	return result, nil
}

func (s *service) GetProduct(ctx context.Context, slug string) (*ProductDetail, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}

	product, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	return NewProductDetail(product), nil
}

func (s *service) ResolveLine(ctx context.Context, productID, variantID uuid.UUID, quantity int) (cart.Line, error) {
	if productID == uuid.Nil || variantID == uuid.Nil {
		return cart.Line{}, pkgerrors.New(pkgerrors.CodeValidation, "product and variant are required")
	}
	if quantity <= 0 {
		return cart.Line{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	variant, err := s.repo.FindVariant(ctx, productID, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cart.Line{}, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
		}
		return cart.Line{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load variant")
	}

	line := cart.Line{
		ID:           uuid.New(),
		ProductID:    productID,
		VariantID:    variantID,
		Quantity:     quantity,
		PricePerUnit: variant.UnitPrice,
	}
	return line.Recalculated(), nil
}
