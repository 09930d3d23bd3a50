package catalog

import (
	"github.com/larkspurhq/storefront-backend/pkg/pagination"
)

// ProductListFilters describe the supported filter knobs for the browse
// endpoint. The storefront only ever sees active listings; filters narrow
// within those.
type ProductListFilters struct {
	Query string `json:"q,omitempty"`
}

// ListProductsInput captures the inputs needed to paginate the catalog.
type ListProductsInput struct {
	Filters    ProductListFilters
	Pagination pagination.Params
}
