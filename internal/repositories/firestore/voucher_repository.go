package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/iterator"

	domain "github.com/merchline/api/internal/domain"
	pfirestore "github.com/merchline/api/internal/platform/firestore"
	"github.com/merchline/api/internal/repositories"
)

const vouchersCollection = "vouchers"

// Firestore caps "in" filters; codes are chunked to stay under it.
const voucherCodeChunkSize = 10

// VoucherRepository reads voucher documents by their normalised codes. Usage
// counters are incremented only inside the order placement transaction.
type VoucherRepository struct {
	provider *pfirestore.Provider
	vouchers *pfirestore.BaseRepository[voucherDocument]
}

// NewVoucherRepository constructs a Firestore-backed voucher reader.
func NewVoucherRepository(provider *pfirestore.Provider) (*VoucherRepository, error) {
	if provider == nil {
		return nil, errors.New("voucher repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[voucherDocument](provider, vouchersCollection, nil, nil)
	return &VoucherRepository{provider: provider, vouchers: base}, nil
}

func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return domain.Voucher{}, errors.New("voucher repository not initialised")
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.Voucher{}, repositories.NewVoucherError(repositories.VoucherErrorNotFound, "voucher code is required", nil, nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Voucher{}, pfirestore.WrapError("vouchers.findByCode", err)
	}

	iter := client.Collection(vouchersCollection).Where("code", "==", code).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Voucher{}, repositories.NewVoucherError(repositories.VoucherErrorNotFound, fmt.Sprintf("voucher %s not found", code), []string{code}, nil)
	}
	if err != nil {
		return domain.Voucher{}, pfirestore.WrapError("vouchers.findByCode", err)
	}

	var doc voucherDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Voucher{}, fmt.Errorf("decode voucher %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *VoucherRepository) FindByCodes(ctx context.Context, codes []string) (map[string]domain.Voucher, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("voucher repository not initialised")
	}

	out := make(map[string]domain.Voucher, len(codes))
	normalised := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" {
			normalised = append(normalised, code)
		}
	}
	if len(normalised) == 0 {
		return out, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("vouchers.findByCodes", err)
	}

	for start := 0; start < len(normalised); start += voucherCodeChunkSize {
		end := start + voucherCodeChunkSize
		if end > len(normalised) {
			end = len(normalised)
		}
		chunk := normalised[start:end]

		iter := client.Collection(vouchersCollection).Where("code", "in", chunk).Documents(ctx)
		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				iter.Stop()
				return nil, pfirestore.WrapError("vouchers.findByCodes", err)
			}
			var doc voucherDocument
			if err := snap.DataTo(&doc); err != nil {
				iter.Stop()
				return nil, fmt.Errorf("decode voucher %s: %w", snap.Ref.ID, err)
			}
			voucher := doc.toDomain(snap.Ref.ID)
			out[voucher.Code] = voucher
		}
		iter.Stop()
	}
	return out, nil
}

type voucherDocument struct {
	Code          string     `firestore:"code"`
	DiscountType  string     `firestore:"discountType"`
	DiscountValue int64      `firestore:"discountValue"`
	StartsAt      time.Time  `firestore:"startsAt"`
	EndsAt        *time.Time `firestore:"endsAt,omitempty"`
	UsedCount     int64      `firestore:"usedCount"`
	Active        bool       `firestore:"active"`
	ProductRefs   []string   `firestore:"productRefs"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
}

func (d voucherDocument) toDomain(id string) domain.Voucher {
	voucher := domain.Voucher{
		ID:            id,
		Code:          strings.TrimSpace(d.Code),
		DiscountType:  domain.DiscountType(strings.TrimSpace(d.DiscountType)),
		DiscountValue: d.DiscountValue,
		StartsAt:      d.StartsAt,
		UsedCount:     d.UsedCount,
		Active:        d.Active,
		ProductIDs:    append([]string(nil), d.ProductRefs...),
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.EndsAt != nil {
		voucher.EndsAt = *d.EndsAt
	}
	return voucher
}
