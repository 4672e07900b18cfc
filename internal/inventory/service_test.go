package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []kafkago.Message
}

func (p *recordingPublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}

func newService(t *testing.T) (*Service, *miniredis.Miniredis, *recordingPublisher) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	pub := &recordingPublisher{}
	return &Service{
		Dedup:       &redisx.Dedup{Redis: rdb, Service: "inventory"},
		Cache:       &redisx.ProductCache{Redis: rdb},
		Depleted:    pub,
		ServiceName: "inventory-test",
	}, mr, pub
}

func placedMessage(t *testing.T) kafkago.Message {
	t.Helper()
	ev := orders.NewEnvelope(orders.EventOrderPlaced, "api", "trace-1", "o-1", orders.OrderPlacedPayload{
		OrderID: "o-1",
		UserID:  "u1",
		Stock: []orders.StockLevel{
			{ProductID: "p1", Stock: 0, Available: false},
			{ProductID: "p2", Stock: 4, Available: true},
		},
	})
	return kafkago.Message{Value: kafkax.MustMarshal(ev)}
}

func TestHandleOrderPlaced(t *testing.T) {
	s, mr, pub := newService(t)
	ctx := context.Background()
	require.NoError(t, mr.Set(fmt.Sprintf(redisx.KeyProduct, "p1"), "{}"))
	require.NoError(t, mr.Set(fmt.Sprintf(redisx.KeyProduct, "p2"), "{}"))

	m := placedMessage(t)
	require.NoError(t, s.HandleOrderPlaced(ctx, m))

	assert.False(t, mr.Exists(fmt.Sprintf(redisx.KeyProduct, "p1")))
	assert.False(t, mr.Exists(fmt.Sprintf(redisx.KeyProduct, "p2")))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "p1", string(pub.msgs[0].Key))
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].Value, &env))
	assert.Equal(t, orders.EventStockDepleted, env.EventType)
	assert.Equal(t, "trace-1", env.TraceID)

	// redelivery of the same event is a no-op
	require.NoError(t, s.HandleOrderPlaced(ctx, m))
	assert.Len(t, pub.msgs, 1)
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	s, _, pub := newService(t)
	ev := orders.NewEnvelope(orders.EventStockDepleted, "x", "", "o", orders.StockDepletedPayload{ProductID: "p"})
	require.NoError(t, s.HandleOrderPlaced(context.Background(), kafkago.Message{Value: kafkax.MustMarshal(ev)}))
	assert.Empty(t, pub.msgs)

	require.Error(t, s.HandleOrderPlaced(context.Background(), kafkago.Message{Value: []byte("not json")}))
}

func TestHandleForgetsEventOnFailure(t *testing.T) {
	s, _, pub := newService(t)
	ctx := context.Background()
	ev := orders.NewEnvelope(orders.EventOrderPlaced, "api", "", "o-2", "not an object")
	m := kafkago.Message{Value: kafkax.MustMarshal(ev)}

	require.Error(t, s.HandleOrderPlaced(ctx, m))
	seen, err := s.Dedup.Seen(ctx, ev.EventID)
	require.NoError(t, err)
	assert.False(t, seen, "failed events must be retried")
	assert.Empty(t, pub.msgs)
}
