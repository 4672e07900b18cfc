package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/model"
)

const (
	EventOrderPlaced   = "OrderPlaced"
	EventStockDepleted = "StockDepleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type ItemPrice struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Price     string `json:"price"`
}

// StockLevel is a product's stock right after the checkout committed.
type StockLevel struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
	Available bool   `json:"available"`
}

type OrderPlacedPayload struct {
	OrderID     string       `json:"order_id"`
	UserID      string       `json:"user_id"`
	Items       []ItemPrice  `json:"items"`
	TotalAmount string       `json:"total_amount"`
	Stock       []StockLevel `json:"stock"`
}

type StockDepletedPayload struct {
	ProductID string `json:"product_id"`
	OrderID   string `json:"order_id"`
}

// Publisher is satisfied by kafkax.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// NewEnvelope wraps payload as version 1 of eventType.
func NewEnvelope(eventType, producer, traceID, correlationID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

// PublishEnvelope sends ev keyed by key with the type/version headers.
func PublishEnvelope(p Publisher, key string, ev Envelope) {
	p.Publish(PartitionKey(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func orderPlacedPayload(o model.Order, after []model.Product) OrderPlacedPayload {
	p := OrderPlacedPayload{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Items:       make([]ItemPrice, 0, len(o.Lines)),
		TotalAmount: o.TotalAmount.StringFixed(2),
		Stock:       make([]StockLevel, 0, len(after)),
	}
	for _, l := range o.Lines {
		p.Items = append(p.Items, ItemPrice{ProductID: l.ProductID, Qty: l.Quantity, Price: l.Price.StringFixed(2)})
	}
	for _, pr := range after {
		p.Stock = append(p.Stock, StockLevel{ProductID: pr.ID, Stock: pr.Stock, Available: pr.Available})
	}
	return p
}
