package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/merchline/api/internal/domain"
	"github.com/merchline/api/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals a malformed pricing request (empty
	// lines, non-positive quantities, blank ids).
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingOverflow signals that a line total would exceed the int64
	// range.
	ErrPricingOverflow = errors.New("pricing: amount overflow")
)

// StockShortage identifies one variant whose requested quantity, summed
// across every line referencing it, exceeds the available stock.
type StockShortage struct {
	VariantID string
	Requested int64
	Available int64
}

// PricingViolations aggregates every validation failure found against the
// upfront load, one bucket per category, so a caller sees all offending ids
// in a single round trip.
type PricingViolations struct {
	MissingVariants []string
	StockShortages  []StockShortage
	UnknownVouchers []string
	ExpiredVouchers []string
	MissingDesigns  []string
}

// Empty reports whether no violation was recorded.
func (v PricingViolations) Empty() bool {
	return len(v.MissingVariants) == 0 &&
		len(v.StockShortages) == 0 &&
		len(v.UnknownVouchers) == 0 &&
		len(v.ExpiredVouchers) == 0 &&
		len(v.MissingDesigns) == 0
}

// PricingValidationError carries the aggregated violations. It is returned
// instead of the first failure so callers can report every bad id at once.
type PricingValidationError struct {
	Violations PricingViolations
}

// Error implements the error interface.
func (e *PricingValidationError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, 5)
	if n := len(e.Violations.MissingVariants); n > 0 {
		parts = append(parts, fmt.Sprintf("%d missing variants", n))
	}
	if n := len(e.Violations.StockShortages); n > 0 {
		parts = append(parts, fmt.Sprintf("%d stock shortages", n))
	}
	if n := len(e.Violations.UnknownVouchers); n > 0 {
		parts = append(parts, fmt.Sprintf("%d unknown vouchers", n))
	}
	if n := len(e.Violations.ExpiredVouchers); n > 0 {
		parts = append(parts, fmt.Sprintf("%d vouchers outside their window", n))
	}
	if n := len(e.Violations.MissingDesigns); n > 0 {
		parts = append(parts, fmt.Sprintf("%d missing designs", n))
	}
	return "pricing: validation failed: " + strings.Join(parts, ", ")
}

// OrderPricingEngineDeps bundles the read-only collaborators of the engine.
type OrderPricingEngineDeps struct {
	Variants repositories.VariantRepository
	Vouchers repositories.VoucherRepository
	Designs  repositories.DesignRepository
	Clock    func() time.Time
}

type orderPricingEngine struct {
	variants repositories.VariantRepository
	vouchers repositories.VoucherRepository
	designs  repositories.DesignRepository
	clock    func() time.Time
}

// NewOrderPricingEngine wires the pricing engine. The engine only reads; the
// stock and voucher-usage changes it wants are returned as delta lists for
// the transactional write phase.
func NewOrderPricingEngine(deps OrderPricingEngineDeps) (OrderPricingEngine, error) {
	if deps.Variants == nil {
		return nil, errors.New("pricing engine: variant repository is required")
	}
	if deps.Vouchers == nil {
		return nil, errors.New("pricing engine: voucher repository is required")
	}
	if deps.Designs == nil {
		return nil, errors.New("pricing engine: design repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &orderPricingEngine{
		variants: deps.Variants,
		vouchers: deps.Vouchers,
		designs:  deps.Designs,
		clock:    func() time.Time { return clock().UTC() },
	}, nil
}

// Price runs the three phases: one bulk load per entity kind, a validation
// pass that collects every violation, then a pure computation producing the
// priced items and delta lists.
func (e *orderPricingEngine) Price(ctx context.Context, input PriceOrderInput) (domain.PricedOrder, error) {
	if len(input.Lines) == 0 {
		return domain.PricedOrder{}, fmt.Errorf("%w: at least one line is required", ErrPricingInvalidInput)
	}
	for i, line := range input.Lines {
		if strings.TrimSpace(line.VariantID) == "" {
			return domain.PricedOrder{}, fmt.Errorf("%w: line %d is missing a variant id", ErrPricingInvalidInput, i)
		}
		if line.Quantity <= 0 {
			return domain.PricedOrder{}, fmt.Errorf("%w: line %d quantity must be positive", ErrPricingInvalidInput, i)
		}
	}

	now := input.Now
	if now.IsZero() {
		now = e.clock()
	}

	variantIDs := uniqueOrdered(collectLineValues(input.Lines, func(l OrderLineInput) string { return l.VariantID }))
	designIDs := uniqueOrdered(collectLineValues(input.Lines, func(l OrderLineInput) string { return l.DesignID }))
	codes := uniqueOrdered(normalizeVoucherCodes(input.VoucherCodes))

	variants, err := e.variants.FindByIDs(ctx, variantIDs)
	if err != nil {
		return domain.PricedOrder{}, err
	}
	var vouchers map[string]domain.Voucher
	if len(codes) > 0 {
		vouchers, err = e.vouchers.FindByCodes(ctx, codes)
		if err != nil {
			return domain.PricedOrder{}, err
		}
	}
	var designs map[string]domain.Design
	if len(designIDs) > 0 {
		designs, err = e.designs.FindByIDs(ctx, designIDs)
		if err != nil {
			return domain.PricedOrder{}, err
		}
	}

	violations := validatePricingLoad(variantIDs, designIDs, codes, input.Lines, variants, vouchers, designs, now)
	if !violations.Empty() {
		return domain.PricedOrder{}, &PricingValidationError{Violations: violations}
	}

	return computePricedOrder(input.Lines, codes, variants, vouchers)
}

func validatePricingLoad(
	variantIDs []string,
	designIDs []string,
	codes []string,
	lines []OrderLineInput,
	variants map[string]domain.ProductVariant,
	vouchers map[string]domain.Voucher,
	designs map[string]domain.Design,
	now time.Time,
) PricingViolations {
	var violations PricingViolations

	requested := make(map[string]int64, len(variantIDs))
	for _, line := range lines {
		requested[strings.TrimSpace(line.VariantID)] += line.Quantity
	}

	for _, id := range variantIDs {
		variant, ok := variants[id]
		if !ok || !variant.Purchasable() {
			violations.MissingVariants = append(violations.MissingVariants, id)
			continue
		}
		if want := requested[id]; want > variant.Stock {
			violations.StockShortages = append(violations.StockShortages, StockShortage{
				VariantID: id,
				Requested: want,
				Available: variant.Stock,
			})
		}
	}

	for _, code := range codes {
		voucher, ok := vouchers[code]
		if !ok {
			violations.UnknownVouchers = append(violations.UnknownVouchers, code)
			continue
		}
		if !voucher.ValidAt(now) {
			violations.ExpiredVouchers = append(violations.ExpiredVouchers, code)
		}
	}

	for _, id := range designIDs {
		design, ok := designs[id]
		if !ok || design.Deleted {
			violations.MissingDesigns = append(violations.MissingDesigns, id)
		}
	}

	return violations
}

// computePricedOrder is the pure phase. Vouchers are considered in the
// caller's input order; per line the voucher yielding the lowest resulting
// unit price wins, ties keeping the first seen. Every winning line counts as
// one usage of its voucher regardless of quantity.
func computePricedOrder(
	lines []OrderLineInput,
	codes []string,
	variants map[string]domain.ProductVariant,
	vouchers map[string]domain.Voucher,
) (domain.PricedOrder, error) {
	var priced domain.PricedOrder

	stockIndex := make(map[string]int, len(lines))
	usageIndex := make(map[string]int, len(codes))

	for _, line := range lines {
		variant := variants[strings.TrimSpace(line.VariantID)]

		if variant.UnitPrice > 0 && line.Quantity > math.MaxInt64/variant.UnitPrice {
			return domain.PricedOrder{}, fmt.Errorf("%w: variant %s", ErrPricingOverflow, variant.ID)
		}
		lineSubtotal := variant.UnitPrice * line.Quantity

		winner, perUnit := selectVoucher(variant, codes, vouchers)

		lineDiscount := perUnit * line.Quantity
		item := domain.OrderItem{
			VariantID:      variant.ID,
			DesignID:       strings.TrimSpace(line.DesignID),
			ProductName:    variant.ProductName,
			SKU:            variant.SKU,
			ImageURL:       variant.ImageURL,
			UnitPrice:      variant.UnitPrice,
			Quantity:       line.Quantity,
			Subtotal:       lineSubtotal,
			DiscountAmount: lineDiscount,
			TotalAmount:    lineSubtotal - lineDiscount,
		}
		if winner != nil {
			item.VoucherID = winner.ID
			item.VoucherCode = winner.Code
			if i, ok := usageIndex[winner.ID]; ok {
				priced.VoucherUsageDeltas[i].Delta++
			} else {
				usageIndex[winner.ID] = len(priced.VoucherUsageDeltas)
				priced.VoucherUsageDeltas = append(priced.VoucherUsageDeltas, domain.VoucherUsageDelta{
					VoucherID: winner.ID,
					Delta:     1,
				})
			}
		}

		if i, ok := stockIndex[variant.ID]; ok {
			priced.StockDeltas[i].Delta -= line.Quantity
		} else {
			stockIndex[variant.ID] = len(priced.StockDeltas)
			priced.StockDeltas = append(priced.StockDeltas, domain.StockDelta{
				VariantID: variant.ID,
				Delta:     -line.Quantity,
			})
		}

		priced.Items = append(priced.Items, item)
		priced.Subtotal += lineSubtotal
		priced.Discount += lineDiscount
	}

	priced.Total = priced.Subtotal - priced.Discount
	return priced, nil
}

// selectVoucher picks the voucher producing the lowest resulting unit price
// for the variant. The baseline is the undiscounted price, so a voucher must
// strictly beat it (and every earlier candidate) to win; equal prices keep
// the first seen.
func selectVoucher(
	variant domain.ProductVariant,
	codes []string,
	vouchers map[string]domain.Voucher,
) (*domain.Voucher, int64) {
	var (
		winner        *domain.Voucher
		bestRemaining = variant.UnitPrice
		bestDiscount  int64
	)
	for _, code := range codes {
		voucher, ok := vouchers[code]
		if !ok || !voucher.AppliesTo(variant.ProductID) {
			continue
		}
		discount := discountPerUnit(voucher, variant.UnitPrice)
		if remaining := variant.UnitPrice - discount; remaining < bestRemaining {
			bestRemaining = remaining
			bestDiscount = discount
			chosen := voucher
			winner = &chosen
		}
	}
	return winner, bestDiscount
}

// discountPerUnit computes one unit's discount, clamped so the discounted
// price never goes negative. Percent discounts round half away from zero.
func discountPerUnit(voucher domain.Voucher, unitPrice int64) int64 {
	var discount int64
	switch voucher.DiscountType {
	case domain.DiscountPercent:
		pct := voucher.DiscountValue
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		discount = (unitPrice*pct + 50) / 100
	case domain.DiscountFixedAmount:
		discount = voucher.DiscountValue
	}
	if discount < 0 {
		discount = 0
	}
	if discount > unitPrice {
		discount = unitPrice
	}
	return discount
}

func collectLineValues(lines []OrderLineInput, pick func(OrderLineInput) string) []string {
	values := make([]string, 0, len(lines))
	for _, line := range lines {
		if v := strings.TrimSpace(pick(line)); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func normalizeVoucherCodes(codes []string) []string {
	normalized := make([]string, 0, len(codes))
	for _, code := range codes {
		if trimmed := strings.ToUpper(strings.TrimSpace(code)); trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

func uniqueOrdered(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
