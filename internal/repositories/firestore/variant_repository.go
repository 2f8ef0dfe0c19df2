package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/merchline/api/internal/domain"
	pfirestore "github.com/merchline/api/internal/platform/firestore"
	"github.com/merchline/api/internal/repositories"
)

const variantsCollection = "productVariants"

// VariantRepository reads product variant documents. Stock writes go through
// the transactional order operations, never through this type.
type VariantRepository struct {
	provider *pfirestore.Provider
	variants *pfirestore.BaseRepository[variantDocument]
}

// NewVariantRepository constructs a Firestore-backed variant reader.
func NewVariantRepository(provider *pfirestore.Provider) (*VariantRepository, error) {
	if provider == nil {
		return nil, errors.New("variant repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[variantDocument](provider, variantsCollection, nil, nil)
	return &VariantRepository{provider: provider, variants: base}, nil
}

func (r *VariantRepository) FindByID(ctx context.Context, variantID string) (domain.ProductVariant, error) {
	if r == nil || r.variants == nil {
		return domain.ProductVariant{}, errors.New("variant repository not initialised")
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.ProductVariant{}, repositories.NewInventoryError(repositories.InventoryErrorVariantNotFound, "variant id is required", nil, nil)
	}

	doc, err := r.variants.Get(ctx, variantID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.ProductVariant{}, repositories.NewInventoryError(repositories.InventoryErrorVariantNotFound, fmt.Sprintf("variant %s not found", variantID), []string{variantID}, err)
		}
		return domain.ProductVariant{}, pfirestore.WrapError("variants.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *VariantRepository) FindByIDs(ctx context.Context, variantIDs []string) (map[string]domain.ProductVariant, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("variant repository not initialised")
	}

	out := make(map[string]domain.ProductVariant, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("variants.getAll", err)
	}

	refs := make([]*firestore.DocumentRef, 0, len(variantIDs))
	for _, id := range variantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs = append(refs, client.Collection(variantsCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return out, nil
		}
		return nil, pfirestore.WrapError("variants.getAll", err)
	}

	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode variant %s: %w", snap.Ref.ID, err)
		}
		out[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return out, nil
}

type variantDocument struct {
	ProductRef     string    `firestore:"productRef"`
	ProductName    string    `firestore:"productName"`
	Name           string    `firestore:"name"`
	SKU            string    `firestore:"sku"`
	ImageURL       string    `firestore:"imageUrl"`
	UnitPrice      int64     `firestore:"unitPrice"`
	Stock          int64     `firestore:"stock"`
	Deleted        bool      `firestore:"deleted"`
	ProductDeleted bool      `firestore:"productDeleted"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func (d variantDocument) toDomain(id string) domain.ProductVariant {
	return domain.ProductVariant{
		ID:             id,
		ProductID:      strings.TrimSpace(d.ProductRef),
		ProductName:    strings.TrimSpace(d.ProductName),
		Name:           strings.TrimSpace(d.Name),
		SKU:            strings.TrimSpace(d.SKU),
		ImageURL:       strings.TrimSpace(d.ImageURL),
		UnitPrice:      d.UnitPrice,
		Stock:          d.Stock,
		Deleted:        d.Deleted,
		ProductDeleted: d.ProductDeleted,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
