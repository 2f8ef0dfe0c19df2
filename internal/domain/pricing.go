package domain

// PricedOrder captures the full output of pricing a set of requested lines:
// the priced item snapshots, the aggregate totals, and the delta lists the
// transactional write phase must apply. The pricing computation itself never
// mutates loaded entities; every side effect it wants is expressed here.
type PricedOrder struct {
	Items              []OrderItem
	Subtotal           int64
	Discount           int64
	Total              int64
	StockDeltas        []StockDelta
	VoucherUsageDeltas []VoucherUsageDelta
}

// StockDelta is a pending change to one variant's stock. Negative deltas
// debit at placement; the same quantities are credited back, sign flipped,
// on cancellation, rejection or expiry.
type StockDelta struct {
	VariantID string
	Delta     int64
}

// VoucherUsageDelta is a pending change to one voucher's usage counter,
// one increment per order line the voucher won.
type VoucherUsageDelta struct {
	VoucherID string
	Delta     int64
}

// RestorationDeltas derives the stock credits that undo an order's original
// debits, one positive entry per distinct variant.
func RestorationDeltas(items []OrderItem) []StockDelta {
	quantities := make(map[string]int64)
	order := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := quantities[item.VariantID]; !seen {
			order = append(order, item.VariantID)
		}
		quantities[item.VariantID] += item.Quantity
	}
	deltas := make([]StockDelta, 0, len(order))
	for _, variantID := range order {
		deltas = append(deltas, StockDelta{VariantID: variantID, Delta: quantities[variantID]})
	}
	return deltas
}
