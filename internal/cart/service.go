// Package cart implements the per-user shopping cart. Every mutation runs in
// one transaction that holds the cart lock, so concurrent increments on the
// same cart do not lose updates.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/model"
	"github.com/ariefcatur/go-storefront/internal/obs"
	"github.com/ariefcatur/go-storefront/internal/store"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrLineNotFound    = errors.New("item not found in cart")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrMissingUser     = errors.New("user id is required")
)

type Service struct {
	Store store.Store
}

// Line is a cart line joined with the product's current data.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type View struct {
	CartID string          `json:"cart_id"`
	UserID string          `json:"user_id"`
	Lines  []Line          `json:"lines"`
	Total  decimal.Decimal `json:"total"`
}

func (s *Service) GetOrCreate(ctx context.Context, userID string) (model.Cart, bool, error) {
	if userID == "" {
		return model.Cart{}, false, ErrMissingUser
	}
	var (
		c       model.Cart
		created bool
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		c, created, err = tx.GetOrCreateCart(ctx, userID)
		return err
	})
	return c, created, err
}

// AddItem adds qty of an available product, incrementing an existing line.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (model.CartLine, error) {
	if userID == "" {
		return model.CartLine{}, ErrMissingUser
	}
	if qty < 1 {
		return model.CartLine{}, ErrInvalidQuantity
	}
	var line model.CartLine
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, _, err := tx.GetOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		p, err := tx.Product(ctx, productID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !p.Available) {
			return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
		}
		if err != nil {
			return err
		}

		line, err = tx.CartLine(ctx, c.ID, productID)
		switch {
		case err == nil:
			line.Quantity += qty
		case errors.Is(err, store.ErrNotFound):
			line = model.CartLine{CartID: c.ID, ProductID: productID, Quantity: qty}
		default:
			return err
		}
		return tx.PutCartLine(ctx, line)
	})
	if err != nil {
		return model.CartLine{}, err
	}
	obs.Logger.Debug("cart line added", slog.String(obs.KeyUserID, userID),
		slog.String(obs.KeyProductID, productID), slog.Int("quantity", line.Quantity))
	return line, nil
}

// UpdateItem overwrites a line's quantity. A quantity of zero or less
// removes the line and reports removed=true.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, qty int) (line model.CartLine, removed bool, err error) {
	if userID == "" {
		return model.CartLine{}, false, ErrMissingUser
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, _, err := tx.GetOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		line, err = tx.CartLine(ctx, c.ID, productID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrLineNotFound, productID)
		}
		if err != nil {
			return err
		}
		if qty <= 0 {
			removed = true
			return tx.DeleteCartLine(ctx, c.ID, productID)
		}
		line.Quantity = qty
		return tx.PutCartLine(ctx, line)
	})
	if err != nil {
		return model.CartLine{}, false, err
	}
	if removed {
		line.Quantity = 0
	}
	return line, removed, nil
}

// Total sums current product prices over the cart. It is never cached.
func (s *Service) Total(ctx context.Context, userID string) (decimal.Decimal, error) {
	v, err := s.View(ctx, userID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return v.Total, nil
}

func (s *Service) View(ctx context.Context, userID string) (View, error) {
	if userID == "" {
		return View{}, ErrMissingUser
	}
	var v View
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, _, err := tx.GetOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		lines, err := tx.CartLines(ctx, c.ID)
		if err != nil {
			return err
		}
		products, err := tx.Products(ctx, productIDs(lines))
		if err != nil {
			return err
		}
		v = Build(c, lines, products)
		return nil
	})
	return v, err
}

// Clear removes every line; the cart itself is kept.
func (s *Service) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrMissingUser
	}
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, _, err := tx.GetOrCreateCart(ctx, userID)
		if err != nil {
			return err
		}
		_, err = tx.ClearCart(ctx, c.ID)
		return err
	})
}

// Build prices lines against products. Lines whose product has vanished
// are skipped.
func Build(c model.Cart, lines []model.CartLine, products map[string]model.Product) View {
	v := View{CartID: c.ID, UserID: c.UserID, Lines: make([]Line, 0, len(lines)), Total: decimal.Zero}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			continue
		}
		sub := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		v.Lines = append(v.Lines, Line{
			ProductID: l.ProductID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			Price:     p.Price,
			Subtotal:  sub,
		})
		v.Total = v.Total.Add(sub)
	}
	return v
}

func productIDs(lines []model.CartLine) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}
