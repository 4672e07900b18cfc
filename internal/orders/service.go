// Package orders turns a user's cart into an order.
package orders

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

type EmptyCartPolicy string

const (
	EmptyCartAllow  EmptyCartPolicy = "allow"
	EmptyCartReject EmptyCartPolicy = "reject"
)

// ParseEmptyCartPolicy maps a config value to a policy, defaulting to allow.
func ParseEmptyCartPolicy(s string) EmptyCartPolicy {
	if EmptyCartPolicy(s) == EmptyCartReject {
		return EmptyCartReject
	}
	return EmptyCartAllow
}

// Invalidator drops cached product rows. Implemented by redisx.ProductCache.
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...string) error
}

type Service struct {
	Store       store.Store
	Cache       Invalidator // optional
	Producer    Publisher   // optional
	ServiceName string
	EmptyCart   EmptyCartPolicy
}

type PlaceOrderInput struct {
	UserID          string
	ShippingAddress string
	BillingAddress  string
	PaymentMethod   string
	TraceID         string
}

// PlaceOrder converts the user's cart into a pending order in a single
// transaction: lock cart and products, check every line against stock,
// snapshot prices into order lines, decrement stock, empty the cart.
// Nothing is written unless every step succeeds.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (model.Order, error) {
	if in.UserID == "" {
		return model.Order{}, ErrMissingUser
	}
	pm := in.PaymentMethod
	if pm == "" {
		pm = model.DefaultPaymentMethod
	}

	var (
		order model.Order
		after []model.Product
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, _, err := tx.GetOrCreateCart(ctx, in.UserID)
		if err != nil {
			return err
		}
		lines, err := tx.CartLines(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 && s.EmptyCart == EmptyCartReject {
			return ErrEmptyCart
		}

		ids := make([]string, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ProductID)
		}
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return err
		}

		if v := checkStock(lines, products); len(v) > 0 {
			return &InsufficientStockError{Violations: v}
		}

		// total and snapshot prices come from the same locked read
		total := decimal.Zero
		orderLines := make([]model.OrderLine, 0, len(lines))
		for _, l := range lines {
			ol := model.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity, Price: products[l.ProductID].Price}
			total = total.Add(ol.Subtotal())
			orderLines = append(orderLines, ol)
		}

		order, err = tx.CreateOrder(ctx, model.Order{
			UserID:          in.UserID,
			TotalAmount:     total.Round(2),
			Status:          model.StatusPending,
			ShippingAddress: in.ShippingAddress,
			BillingAddress:  in.BillingAddress,
			PaymentMethod:   pm,
			Lines:           orderLines,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		after = after[:0]
		for _, l := range lines {
			p, err := tx.DecrementStock(ctx, l.ProductID, l.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock %s: %w", l.ProductID, err)
			}
			after = append(after, p)
		}

		if _, err := tx.ClearCart(ctx, c.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		var ise *InsufficientStockError
		if errors.As(err, &ise) {
			obs.Logger.Info("checkout rejected", slog.String(obs.KeyUserID, in.UserID),
				slog.Int("violations", len(ise.Violations)))
		}
		return model.Order{}, err
	}

	s.afterCommit(ctx, order, after, in.TraceID)
	obs.Logger.Info("order placed", slog.String(obs.KeyOrderID, order.ID), slog.String(obs.KeyUserID, order.UserID),
		slog.String("total", order.TotalAmount.StringFixed(2)), slog.Int("lines", len(order.Lines)))
	return order, nil
}

// checkStock reports every line whose quantity exceeds current stock. A
// product missing from the locked set counts as zero stock.
func checkStock(lines []model.CartLine, products map[string]model.Product) []StockViolation {
	var out []StockViolation
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			out = append(out, StockViolation{ProductID: l.ProductID, Requested: l.Quantity})
			continue
		}
		if l.Quantity > p.Stock {
			out = append(out, StockViolation{
				ProductID: p.ID, Name: p.Name, Requested: l.Quantity, Available: p.Stock,
			})
		}
	}
	return out
}

func (s *Service) afterCommit(ctx context.Context, o model.Order, after []model.Product, traceID string) {
	if s.Cache != nil && len(after) > 0 {
		ids := make([]string, 0, len(after))
		for _, p := range after {
			ids = append(ids, p.ID)
		}
		if err := s.Cache.Invalidate(ctx, ids...); err != nil {
			obs.Logger.Error("product cache invalidation failed", slog.String(obs.KeyOrderID, o.ID),
				slog.String(obs.KeyError, err.Error()))
		}
	}
	if s.Producer != nil {
		ev := NewEnvelope(EventOrderPlaced, s.ServiceName, traceID, o.ID, orderPlacedPayload(o, after))
		PublishEnvelope(s.Producer, o.ID, ev)
	}
}

// Orders lists the user's orders, newest first.
func (s *Service) Orders(ctx context.Context, userID string) ([]model.Order, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	var out []model.Order
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.OrdersByUser(ctx, userID)
		return err
	})
	return out, err
}

// Order returns one of the user's orders. Orders of other users are
// reported as not found.
func (s *Service) Order(ctx context.Context, userID, orderID string) (model.Order, error) {
	var o model.Order
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		o, err = tx.Order(ctx, orderID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) || (err == nil && o.UserID != userID) {
		return model.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o, err
}
