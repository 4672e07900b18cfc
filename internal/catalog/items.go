package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/model"
	"github.com/ariefcatur/go-storefront/internal/store"
)

type NewItem struct {
	OwnerID        string                `json:"-"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	Price          string                `json:"price"`
	Quantity       int                   `json:"quantity"`
	Category       string                `json:"category"`
	Specifications []model.Specification `json:"specifications"`
}

type ItemPatch struct {
	Name           *string                `json:"name"`
	Description    *string                `json:"description"`
	Price          *string                `json:"price"`
	Quantity       *int                   `json:"quantity"`
	Category       *string                `json:"category"`
	Specifications *[]model.Specification `json:"specifications"`
}

// cleanSpecs trims keys and values and drops pairs where either is blank.
func cleanSpecs(in []model.Specification) []model.Specification {
	out := make([]model.Specification, 0, len(in))
	for _, sp := range in {
		k, v := strings.TrimSpace(sp.Key), strings.TrimSpace(sp.Value)
		if k == "" || v == "" {
			continue
		}
		out = append(out, model.Specification{Key: k, Value: v})
	}
	return out
}

func (s *Service) CreateItem(ctx context.Context, in NewItem) (model.Item, error) {
	name := strings.TrimSpace(in.Name)
	if in.OwnerID == "" || name == "" {
		return model.Item{}, fmt.Errorf("%w: owner and name are required", ErrInvalidInput)
	}
	if in.Quantity < 0 {
		return model.Item{}, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	if !model.ValidCategorySlug(in.Category) {
		return model.Item{}, fmt.Errorf("%w: %q", ErrInvalidCategory, in.Category)
	}
	price, err := s.Policy.ForCreate(in.Price)
	if err != nil {
		return model.Item{}, err
	}

	var out model.Item
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.CreateItem(ctx, model.Item{
			OwnerID:        in.OwnerID,
			Name:           name,
			Description:    in.Description,
			Price:          price,
			Quantity:       in.Quantity,
			Category:       in.Category,
			Specifications: cleanSpecs(in.Specifications),
		})
		return err
	})
	return out, err
}

func (s *Service) Item(ctx context.Context, id string) (model.Item, error) {
	var out model.Item
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Item(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return out, err
}

// UpdateItem edits a listing owned by ownerID. A non-nil Specifications
// replaces the whole set.
func (s *Service) UpdateItem(ctx context.Context, id, ownerID string, patch ItemPatch) (model.Item, error) {
	var out model.Item
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		it, err := tx.Item(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		if err != nil {
			return err
		}
		if it.OwnerID != ownerID {
			return ErrNotOwner
		}
		if patch.Name != nil {
			if strings.TrimSpace(*patch.Name) == "" {
				return fmt.Errorf("%w: name is required", ErrInvalidInput)
			}
			it.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			it.Description = *patch.Description
		}
		if patch.Price != nil {
			if it.Price, err = s.Policy.ForUpdate(*patch.Price); err != nil {
				return err
			}
		}
		if patch.Quantity != nil {
			if *patch.Quantity < 0 {
				return fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
			}
			it.Quantity = *patch.Quantity
		}
		if patch.Category != nil {
			if !model.ValidCategorySlug(*patch.Category) {
				return fmt.Errorf("%w: %q", ErrInvalidCategory, *patch.Category)
			}
			it.Category = *patch.Category
		}
		if patch.Specifications != nil {
			it.Specifications = cleanSpecs(*patch.Specifications)
		}
		out, err = tx.UpdateItem(ctx, it)
		return err
	})
	return out, err
}
