// Package inventory reacts to placed orders: it refreshes cached product
// rows and announces products that sold out.
package inventory

import (
	"context"
	"encoding/json"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/obs"
	"github.com/ariefcatur/go-storefront/internal/orders"
)

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Service struct {
	Dedup       Deduper
	Cache       orders.Invalidator
	Depleted    orders.Publisher // publishes product.stock.depleted
	ServiceName string
}

// HandleOrderPlaced is installed as the consumer handler for order.placed.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if seen {
		obs.Logger.Debug("duplicate event skipped", slog.String(obs.KeyEventID, env.EventID))
		return nil
	}

	if err := s.process(ctx, env); err != nil {
		if ferr := s.Dedup.Forget(ctx, env.EventID); ferr != nil {
			obs.Logger.Warn("dedup reset failed", slog.String(obs.KeyEventID, env.EventID), slog.String(obs.KeyError, ferr.Error()))
		}
		return err
	}
	return nil
}

func (s *Service) process(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(p.Stock))
	for _, st := range p.Stock {
		ids = append(ids, st.ProductID)
	}
	if err := s.Cache.Invalidate(ctx, ids...); err != nil {
		return err
	}

	for _, st := range p.Stock {
		if st.Available {
			continue
		}
		ev := orders.NewEnvelope(orders.EventStockDepleted, s.ServiceName, env.TraceID, p.OrderID,
			orders.StockDepletedPayload{ProductID: st.ProductID, OrderID: p.OrderID})
		orders.PublishEnvelope(s.Depleted, st.ProductID, ev)
		obs.Logger.Info("product sold out", slog.String(obs.KeyProductID, st.ProductID), slog.String(obs.KeyOrderID, p.OrderID))
	}
	return nil
}
