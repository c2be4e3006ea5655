package customers

import (
	"context"

	"github.com/foamcrew/foamcrew/internal/store"
)

// Repository persists customer profiles in the Customers collection.
type Repository struct {
	store *store.Store
}

// NewRepository constructs Repository.
func NewRepository(s *store.Store) *Repository {
	return &Repository{store: s}
}

// All returns every readable customer record.
func (r *Repository) All(ctx context.Context, tenantID string) ([]Profile, error) {
	docs, err := r.store.Scan(ctx, store.Customers, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(docs))
	for _, doc := range docs {
		var p Profile
		if store.Decode(doc, &p) && p.ID != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// ReplaceAll swaps the tenant's customer set wholesale.
func (r *Repository) ReplaceAll(ctx context.Context, tenantID string, profiles []Profile) error {
	rows := make([]store.Row, 0, len(profiles))
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		rows = append(rows, store.Row{
			Key: p.ID,
			Doc: p,
			Fields: store.Fields{
				"name":   p.Name,
				"city":   p.City,
				"state":  p.State,
				"phone":  p.Phone,
				"email":  p.Email,
				"status": orDefault(p.Status, "Active"),
			},
		})
	}
	return r.store.Replace(ctx, store.Customers, tenantID, rows)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
