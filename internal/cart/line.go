package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Identity is the merge key for cart lines. Two lines with the same product
// and variant are the same logical item regardless of their row IDs.
type Identity struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
}

// Line is one cart line. TotalPrice always equals PricePerUnit * Quantity.
type Line struct {
	ID           uuid.UUID       `json:"id"`
	ProductID    uuid.UUID       `json:"product_id"`
	VariantID    uuid.UUID       `json:"variant_id"`
	Quantity     int             `json:"quantity"`
	PricePerUnit decimal.Decimal `json:"price_per_unit"`
	TotalPrice   decimal.Decimal `json:"total_price"`
}

// Identity returns the merge key for the line.
func (l Line) Identity() Identity {
	return Identity{ProductID: l.ProductID, VariantID: l.VariantID}
}

// Recalculated returns a copy with TotalPrice recomputed from the unit price.
func (l Line) Recalculated() Line {
	l.TotalPrice = l.PricePerUnit.Mul(decimal.NewFromInt(int64(l.Quantity)))
	return l
}

// WithQuantity returns a copy at the given quantity with TotalPrice recomputed.
func (l Line) WithQuantity(quantity int) Line {
	l.Quantity = quantity
	return l.Recalculated()
}

// CloneLines deep-copies a line slice so callers can hand out snapshots
// without exposing internal state to mutation.
func CloneLines(items []Line) []Line {
	if items == nil {
		return nil
	}
	out := make([]Line, len(items))
	copy(out, items)
	return out
}
