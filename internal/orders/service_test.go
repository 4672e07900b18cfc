package orders

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/model"
	"github.com/ariefcatur/go-storefront/internal/store"
	"github.com/ariefcatur/go-storefront/internal/store/memory"
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

type recordingCache struct {
	mu  sync.Mutex
	ids []string
}

func (c *recordingCache) Invalidate(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, ids...)
	return nil
}

func seed(t *testing.T, st store.Store, id, price string, stock int) {
	t.Helper()
	ctx := context.Background()
	err := st.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.CreateCategory(ctx, model.Category{Slug: "fashion", Name: "Fashion"})
		if err != nil {
			return err
		}
		_, err = tx.CreateProduct(ctx, model.Product{
			ID: id, Name: "name-" + id, Price: decimal.RequireFromString(price),
			Stock: stock, Available: stock > 0, CategoryID: c.ID,
		})
		return err
	})
	require.NoError(t, err)
}

func product(t *testing.T, st store.Store, id string) model.Product {
	t.Helper()
	var p model.Product
	err := st.WithTx(context.Background(), func(tx store.Tx) error {
		var err error
		p, err = tx.Product(context.Background(), id)
		return err
	})
	require.NoError(t, err)
	return p
}

type fixture struct {
	st    *memory.Store
	cart  *cart.Service
	svc   *Service
	pub   *recordingPublisher
	cache *recordingCache
}

func newFixture() *fixture {
	st := memory.New()
	pub := &recordingPublisher{}
	cache := &recordingCache{}
	return &fixture{
		st:    st,
		cart:  &cart.Service{Store: st},
		svc:   &Service{Store: st, Cache: cache, Producer: pub, ServiceName: "test", EmptyCart: EmptyCartAllow},
		pub:   pub,
		cache: cache,
	}
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seed(t, f.st, "shirt", "19.99", 5)
	seed(t, f.st, "socks", "15.00", 3)

	_, err := f.cart.AddItem(ctx, "u1", "shirt", 1)
	require.NoError(t, err)
	_, err = f.cart.AddItem(ctx, "u1", "socks", 2)
	require.NoError(t, err)

	o, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1", ShippingAddress: "1 Main St"})
	require.NoError(t, err)
	assert.Equal(t, "49.99", o.TotalAmount.StringFixed(2))
	assert.Equal(t, model.StatusPending, o.Status)
	assert.Equal(t, model.DefaultPaymentMethod, o.PaymentMethod)
	require.Len(t, o.Lines, 2)
	for _, l := range o.Lines {
		assert.Equal(t, o.ID, l.OrderID)
	}

	assert.Equal(t, 4, product(t, f.st, "shirt").Stock)
	socks := product(t, f.st, "socks")
	assert.Equal(t, 1, socks.Stock)
	assert.True(t, socks.Available)

	v, err := f.cart.View(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, v.Lines)

	assert.ElementsMatch(t, []string{"shirt", "socks"}, f.cache.ids)

	require.Len(t, f.pub.msgs, 1)
	var env Envelope
	require.NoError(t, json.Unmarshal(f.pub.msgs[0].Value, &env))
	assert.Equal(t, EventOrderPlaced, env.EventType)
	assert.Equal(t, o.ID, string(f.pub.msgs[0].Key))
	var payload OrderPlacedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "49.99", payload.TotalAmount)
	assert.Len(t, payload.Stock, 2)
}

func TestPlaceOrderSnapshotsPrice(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seed(t, f.st, "hat", "10.00", 5)

	_, err := f.cart.AddItem(ctx, "u1", "hat", 2)
	require.NoError(t, err)
	o, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1"})
	require.NoError(t, err)

	err = f.st.WithTx(ctx, func(tx store.Tx) error {
		p, err := tx.Product(ctx, "hat")
		if err != nil {
			return err
		}
		p.Price = decimal.RequireFromString("99.00")
		_, err = tx.UpdateProduct(ctx, p)
		return err
	})
	require.NoError(t, err)

	got, err := f.svc.Order(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", got.TotalAmount.StringFixed(2))
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "10.00", got.Lines[0].Price.StringFixed(2))
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seed(t, f.st, "a", "1.00", 2)
	seed(t, f.st, "b", "1.00", 1)
	seed(t, f.st, "c", "1.00", 10)

	_, err := f.cart.AddItem(ctx, "u1", "a", 3)
	require.NoError(t, err)
	_, err = f.cart.AddItem(ctx, "u1", "b", 2)
	require.NoError(t, err)
	_, err = f.cart.AddItem(ctx, "u1", "c", 1)
	require.NoError(t, err)

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1"})
	require.ErrorIs(t, err, ErrInsufficientStock)
	var ise *InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, []StockViolation{
		{ProductID: "a", Name: "name-a", Requested: 3, Available: 2},
		{ProductID: "b", Name: "name-b", Requested: 2, Available: 1},
	}, ise.Violations)

	v, err := f.cart.View(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, v.Lines, 3, "cart is unchanged")
	assert.Equal(t, 2, product(t, f.st, "a").Stock)
	assert.Equal(t, 10, product(t, f.st, "c").Stock)

	orders, err := f.svc.Orders(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.pub.msgs)
}

func TestPlaceOrderEmptyCartPolicy(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, o.TotalAmount.IsZero())
	assert.Empty(t, o.Lines)

	f.svc.EmptyCart = EmptyCartReject
	_, err = f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1"})
	require.ErrorIs(t, err, ErrEmptyCart)

	assert.Equal(t, EmptyCartReject, ParseEmptyCartPolicy("reject"))
	assert.Equal(t, EmptyCartAllow, ParseEmptyCartPolicy("whatever"))
}

func TestPlaceOrderDepletesStock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seed(t, f.st, "last", "5.00", 2)

	_, err := f.cart.AddItem(ctx, "u1", "last", 2)
	require.NoError(t, err)
	_, err = f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1"})
	require.NoError(t, err)

	p := product(t, f.st, "last")
	assert.Equal(t, 0, p.Stock)
	assert.False(t, p.Available)
}

type failingStore struct{ store.Store }

func (f failingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return f.Store.WithTx(ctx, func(tx store.Tx) error { return fn(failingTx{Tx: tx}) })
}

type failingTx struct{ store.Tx }

func (failingTx) ClearCart(context.Context, string) (int, error) {
	return 0, errors.New("disk on fire")
}

func TestPlaceOrderRollsBackOnLateFailure(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seed(t, f.st, "mug", "8.00", 4)
	_, err := f.cart.AddItem(ctx, "u1", "mug", 2)
	require.NoError(t, err)

	f.svc.Store = failingStore{Store: f.st}
	_, err = f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1"})
	require.Error(t, err)

	assert.Equal(t, 4, product(t, f.st, "mug").Stock)
	v, err := f.cart.View(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, v.Lines, 1)
	orders, err := f.svc.Orders(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.pub.msgs)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seed(t, f.st, "gpu", "499.99", 3)

	const buyers = 10
	for i := 0; i < buyers; i++ {
		_, err := f.cart.AddItem(ctx, userID(i), "gpu", 1)
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: userID(i)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				placed++
			} else if errors.Is(err, ErrInsufficientStock) {
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, placed)
	assert.Equal(t, buyers-3, rejected)
	p := product(t, f.st, "gpu")
	assert.Equal(t, 0, p.Stock)
	assert.False(t, p.Available)
}

func userID(i int) string { return "buyer-" + string(rune('a'+i)) }

func TestOrderOwnership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	o, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1", PaymentMethod: "card"})
	require.NoError(t, err)
	assert.Equal(t, "card", o.PaymentMethod)

	_, err = f.svc.Order(ctx, "u2", o.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
	_, err = f.svc.Order(ctx, "u1", "missing")
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = f.svc.PlaceOrder(ctx, PlaceOrderInput{})
	require.ErrorIs(t, err, ErrMissingUser)
}
