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
)

const designsCollection = "designs"

// DesignRepository reads the customer designs that order lines may reference.
type DesignRepository struct {
	provider *pfirestore.Provider
	designs  *pfirestore.BaseRepository[designDocument]
}

// NewDesignRepository constructs a Firestore-backed design reader.
func NewDesignRepository(provider *pfirestore.Provider) (*DesignRepository, error) {
	if provider == nil {
		return nil, errors.New("design repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[designDocument](provider, designsCollection, nil, nil)
	return &DesignRepository{provider: provider, designs: base}, nil
}

func (r *DesignRepository) FindByID(ctx context.Context, designID string) (domain.Design, error) {
	if r == nil || r.designs == nil {
		return domain.Design{}, errors.New("design repository not initialised")
	}
	designID = strings.TrimSpace(designID)
	if designID == "" {
		return domain.Design{}, errors.New("design repository: design id is required")
	}

	doc, err := r.designs.Get(ctx, designID)
	if err != nil {
		return domain.Design{}, pfirestore.WrapError("designs.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *DesignRepository) FindByIDs(ctx context.Context, designIDs []string) (map[string]domain.Design, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("design repository not initialised")
	}

	out := make(map[string]domain.Design, len(designIDs))
	if len(designIDs) == 0 {
		return out, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("designs.getAll", err)
	}

	refs := make([]*firestore.DocumentRef, 0, len(designIDs))
	for _, id := range designIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs = append(refs, client.Collection(designsCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return out, nil
		}
		return nil, pfirestore.WrapError("designs.getAll", err)
	}

	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc designDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode design %s: %w", snap.Ref.ID, err)
		}
		out[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return out, nil
}

type designDocument struct {
	OwnerUID  string     `firestore:"ownerUid"`
	Name      string     `firestore:"name"`
	CreatedAt time.Time  `firestore:"createdAt"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
	DeletedAt *time.Time `firestore:"deletedAt,omitempty"`
}

func (d designDocument) toDomain(id string) domain.Design {
	return domain.Design{
		ID:        id,
		OwnerID:   strings.TrimSpace(d.OwnerUID),
		Name:      strings.TrimSpace(d.Name),
		Deleted:   d.DeletedAt != nil,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
