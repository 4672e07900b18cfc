// Package catalog manages products, categories and legacy item listings,
// and serves the by-id product read model.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/model"
	"github.com/ariefcatur/go-storefront/internal/obs"
	"github.com/ariefcatur/go-storefront/internal/pricing"
	"github.com/ariefcatur/go-storefront/internal/store"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotOwner        = errors.New("item belongs to another user")
)

// Cache is the product read-model cache. Implemented by redisx.ProductCache.
// Fill must not store p when id was invalidated after Version was read.
type Cache interface {
	Get(ctx context.Context, id string) (model.Product, bool, error)
	Version(ctx context.Context, id string) (int64, error)
	Fill(ctx context.Context, p model.Product, version int64) (bool, error)
	Invalidate(ctx context.Context, ids ...string) error
}

type Service struct {
	Store  store.Store
	Cache  Cache // optional
	Policy pricing.Policy
}

type NewProduct struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        string `json:"price"`
	Stock        int    `json:"stock"`
	CategorySlug string `json:"category_slug"`
}

// ProductPatch holds optional edits; nil fields are left unchanged.
type ProductPatch struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	Price        *string `json:"price"`
	Stock        *int    `json:"stock"`
	CategorySlug *string `json:"category_slug"`
}

func categoryName(slug string) string {
	return strings.ToUpper(slug[:1]) + slug[1:]
}

func (s *Service) category(ctx context.Context, tx store.Tx, slug string) (model.Category, error) {
	if !model.ValidCategorySlug(slug) {
		return model.Category{}, fmt.Errorf("%w: %q", ErrInvalidCategory, slug)
	}
	c, err := tx.CategoryBySlug(ctx, slug)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Category{}, err
	}
	return tx.CreateCategory(ctx, model.Category{Slug: slug, Name: categoryName(slug)})
}

func (s *Service) CreateProduct(ctx context.Context, in NewProduct) (model.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Product{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Stock < 0 {
		return model.Product{}, fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	price, err := s.Policy.ForCreate(in.Price)
	if err != nil {
		return model.Product{}, err
	}

	var out model.Product
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, err := s.category(ctx, tx, in.CategorySlug)
		if err != nil {
			return err
		}
		out, err = tx.CreateProduct(ctx, model.Product{
			Name:        name,
			Description: in.Description,
			Price:       price,
			Stock:       in.Stock,
			Available:   in.Stock > 0,
			CategoryID:  c.ID,
		})
		return err
	})
	if err != nil {
		return model.Product{}, err
	}
	obs.Logger.Info("product created", slog.String(obs.KeyProductID, out.ID), slog.String("price", out.Price.StringFixed(2)))
	return out, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (model.Product, error) {
	var out model.Product
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.LockProducts(ctx, []string{id})
		if err != nil {
			return err
		}
		p, ok := locked[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrProductNotFound, id)
		}
		if patch.Name != nil {
			if strings.TrimSpace(*patch.Name) == "" {
				return fmt.Errorf("%w: name is required", ErrInvalidInput)
			}
			p.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			p.Description = *patch.Description
		}
		if patch.Price != nil {
			if p.Price, err = s.Policy.ForUpdate(*patch.Price); err != nil {
				return err
			}
		}
		if patch.Stock != nil {
			if *patch.Stock < 0 {
				return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
			}
			p.Stock = *patch.Stock
			p.Available = p.Stock > 0
		}
		if patch.CategorySlug != nil {
			c, err := s.category(ctx, tx, *patch.CategorySlug)
			if err != nil {
				return err
			}
			p.CategoryID = c.ID
		}
		out, err = tx.UpdateProduct(ctx, p)
		return err
	})
	if err != nil {
		return model.Product{}, err
	}
	s.invalidate(ctx, out.ID)
	return out, nil
}

// Product returns the current product, reading through the cache.
func (s *Service) Product(ctx context.Context, id string) (model.Product, error) {
	var (
		version int64
		fill    = s.Cache != nil
	)
	if s.Cache != nil {
		p, ok, err := s.Cache.Get(ctx, id)
		if err != nil {
			obs.Logger.Warn("product cache read failed", slog.String(obs.KeyProductID, id), slog.String(obs.KeyError, err.Error()))
		} else if ok {
			return p, nil
		}
		// version is taken before the store read
		if version, err = s.Cache.Version(ctx, id); err != nil {
			obs.Logger.Warn("product cache version failed", slog.String(obs.KeyProductID, id), slog.String(obs.KeyError, err.Error()))
			fill = false
		}
	}

	var p model.Product
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		p, err = tx.Product(ctx, id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err != nil {
		return model.Product{}, err
	}
	if fill {
		if _, err := s.Cache.Fill(ctx, p, version); err != nil {
			obs.Logger.Warn("product cache write failed", slog.String(obs.KeyProductID, id), slog.String(obs.KeyError, err.Error()))
		}
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	var out []model.Product
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListAvailableProducts(ctx)
		return err
	})
	return out, err
}

func (s *Service) Categories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Categories(ctx)
		return err
	})
	return out, err
}

func (s *Service) invalidate(ctx context.Context, ids ...string) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, ids...); err != nil {
		obs.Logger.Error("product cache invalidation failed", slog.Any("product_ids", ids), slog.String(obs.KeyError, err.Error()))
	}
}
