package service

import (
	"sort"
	"strings"

	"stockledger/internal/model"
)

// RemovalStrategy decides which quants a reservation consumes first.
type RemovalStrategy string

const (
	RemovalFIFO    RemovalStrategy = "fifo"
	RemovalLIFO    RemovalStrategy = "lifo"
	RemovalClosest RemovalStrategy = "closest"
)

// ResolveRemovalStrategy resolves the strategy for (product, location):
// the product's category wins, then the nearest ancestor location (self
// included, deepest first) that declares one, then FIFO.
//
// ancestors must be ordered deepest-first and include location itself; the
// repository's AncestorChain provides exactly that.
func ResolveRemovalStrategy(product *model.Product, ancestors []*model.Location) RemovalStrategy {
	if product != nil && product.Category != nil && product.Category.RemovalStrategy != "" {
		return RemovalStrategy(product.Category.RemovalStrategy)
	}
	for _, loc := range ancestors {
		if loc.RemovalStrategy != "" {
			return RemovalStrategy(loc.RemovalStrategy)
		}
	}
	return RemovalFIFO
}

// OrderClause is the SQL ORDER BY fragment for gathering candidate quants.
// The secondary id sort makes allocation reproducible across retries under
// identical data, which concurrent reservations rely on.
func (s RemovalStrategy) OrderClause() string {
	switch s {
	case RemovalLIFO:
		return "stock_quants.in_date DESC, stock_quants.id DESC"
	case RemovalClosest:
		return "locations.parent_path ASC, stock_quants.id DESC"
	default:
		return "stock_quants.in_date ASC, stock_quants.id ASC"
	}
}

// SortQuants orders quants in-memory under the same contract as OrderClause.
// In-memory repository fakes use it so tests see the exact production order.
func SortQuants(quants []*model.Quant, s RemovalStrategy) {
	sort.SliceStable(quants, func(i, j int) bool {
		a, b := quants[i], quants[j]
		switch s {
		case RemovalLIFO:
			if !a.InDate.Equal(b.InDate) {
				return a.InDate.After(b.InDate)
			}
			return a.ID.String() > b.ID.String()
		case RemovalClosest:
			ap, bp := quantPath(a), quantPath(b)
			if ap != bp {
				return strings.Compare(ap, bp) < 0
			}
			return a.ID.String() > b.ID.String()
		default:
			if !a.InDate.Equal(b.InDate) {
				return a.InDate.Before(b.InDate)
			}
			return a.ID.String() < b.ID.String()
		}
	})
}

func quantPath(q *model.Quant) string {
	if q.Location != nil {
		return q.Location.ParentPath
	}
	return q.LocationID.String()
}
