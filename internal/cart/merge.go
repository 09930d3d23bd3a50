package cart

// MergeAdditive folds addition into base as a multiset union keyed by line
// identity. Quantities for a shared identity are summed, never replaced, and
// no line from either side is dropped. Base lines keep their order and unit
// price; unmatched addition lines are appended in their own order. Every
// returned line has its TotalPrice recomputed.
func MergeAdditive(base, addition []Line) []Line {
	merged := make([]Line, 0, len(base)+len(addition))
	index := make(map[Identity]int, len(base))

	for _, line := range base {
		identity := line.Identity()
		if at, ok := index[identity]; ok {
			merged[at] = merged[at].WithQuantity(merged[at].Quantity + line.Quantity)
			continue
		}
		index[identity] = len(merged)
		merged = append(merged, line.Recalculated())
	}

	for _, line := range addition {
		identity := line.Identity()
		if at, ok := index[identity]; ok {
			merged[at] = merged[at].WithQuantity(merged[at].Quantity + line.Quantity)
			continue
		}
		index[identity] = len(merged)
		merged = append(merged, line.Recalculated())
	}

	return merged
}

type lineKey struct {
	identity Identity
	quantity int
}

// SameItems reports whether two carts hold the same multiset of
// (product, variant, quantity) tuples. Ordering, row IDs and prices are
// ignored so benign structural differences never read as divergence.
func SameItems(a, b []Line) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[lineKey]int, len(a))
	for _, line := range a {
		counts[lineKey{identity: line.Identity(), quantity: line.Quantity}]++
	}
	for _, line := range b {
		key := lineKey{identity: line.Identity(), quantity: line.Quantity}
		counts[key]--
		if counts[key] < 0 {
			return false
		}
	}
	return true
}
