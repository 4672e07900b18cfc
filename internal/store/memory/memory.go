// Package memory is an in-process store. Transactions run one at a time
// against a private copy of the state, which replaces the shared state only
// when the callback succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-storefront/internal/model"
	"github.com/ariefcatur/go-storefront/internal/store"
)

type state struct {
	products   map[string]model.Product
	categories map[string]model.Category
	carts      map[string]model.Cart // by user id
	lines      map[string]map[string]model.CartLine
	orders     map[string]model.Order
	items      map[string]model.Item
}

func newState() *state {
	return &state{
		products:   map[string]model.Product{},
		categories: map[string]model.Category{},
		carts:      map[string]model.Cart{},
		lines:      map[string]map[string]model.CartLine{},
		orders:     map[string]model.Order{},
		items:      map[string]model.Item{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, m := range s.lines {
		cm := make(map[string]model.CartLine, len(m))
		for pk, l := range m {
			cm[pk] = l
		}
		c.lines[k] = cm
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{st: s.st.clone(), now: s.now}
	if err := fn(t); err != nil {
		return err
	}
	s.st = t.st
	return nil
}

type tx struct {
	st  *state
	now func() time.Time
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
}

func (t *tx) GetOrCreateCart(_ context.Context, userID string) (model.Cart, bool, error) {
	if c, ok := t.st.carts[userID]; ok {
		return c, false, nil
	}
	c := model.Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: t.now()}
	t.st.carts[userID] = c
	t.st.lines[c.ID] = map[string]model.CartLine{}
	return c, true, nil
}

func (t *tx) CartLines(_ context.Context, cartID string) ([]model.CartLine, error) {
	m := t.st.lines[cartID]
	out := make([]model.CartLine, 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (t *tx) CartLine(_ context.Context, cartID, productID string) (model.CartLine, error) {
	l, ok := t.st.lines[cartID][productID]
	if !ok {
		return model.CartLine{}, notFound("cart line", productID)
	}
	return l, nil
}

func (t *tx) PutCartLine(_ context.Context, line model.CartLine) error {
	m, ok := t.st.lines[line.CartID]
	if !ok {
		m = map[string]model.CartLine{}
		t.st.lines[line.CartID] = m
	}
	m[line.ProductID] = line
	return nil
}

func (t *tx) DeleteCartLine(_ context.Context, cartID, productID string) error {
	if _, ok := t.st.lines[cartID][productID]; !ok {
		return notFound("cart line", productID)
	}
	delete(t.st.lines[cartID], productID)
	return nil
}

func (t *tx) ClearCart(_ context.Context, cartID string) (int, error) {
	n := len(t.st.lines[cartID])
	t.st.lines[cartID] = map[string]model.CartLine{}
	return n, nil
}

func (t *tx) Product(_ context.Context, id string) (model.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return model.Product{}, notFound("product", id)
	}
	return t.withSlug(p), nil
}

func (t *tx) withSlug(p model.Product) model.Product {
	for _, c := range t.st.categories {
		if c.ID == p.CategoryID {
			p.CategorySlug = c.Slug
			break
		}
	}
	return p
}

func (t *tx) Products(ctx context.Context, ids []string) (map[string]model.Product, error) {
	out := make(map[string]model.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = t.withSlug(p)
		}
	}
	return out, nil
}

func (t *tx) LockProducts(ctx context.Context, ids []string) (map[string]model.Product, error) {
	return t.Products(ctx, ids)
}

func (t *tx) ListAvailableProducts(_ context.Context) ([]model.Product, error) {
	var out []model.Product
	for _, p := range t.st.products {
		if p.Available {
			out = append(out, t.withSlug(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (t *tx) CreateProduct(_ context.Context, p model.Product) (model.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := t.now()
	p.CreatedAt, p.UpdatedAt = now, now
	t.st.products[p.ID] = p
	return t.withSlug(p), nil
}

func (t *tx) UpdateProduct(_ context.Context, p model.Product) (model.Product, error) {
	old, ok := t.st.products[p.ID]
	if !ok {
		return model.Product{}, notFound("product", p.ID)
	}
	p.CreatedAt = old.CreatedAt
	p.UpdatedAt = t.now()
	t.st.products[p.ID] = p
	return t.withSlug(p), nil
}

func (t *tx) DecrementStock(_ context.Context, productID string, qty int) (model.Product, error) {
	p, ok := t.st.products[productID]
	if !ok {
		return model.Product{}, notFound("product", productID)
	}
	p.Stock -= qty
	if p.Stock < 0 {
		p.Stock = 0
	}
	p.Available = p.Stock > 0
	p.UpdatedAt = t.now()
	t.st.products[productID] = p
	return t.withSlug(p), nil
}

func (t *tx) CategoryBySlug(_ context.Context, slug string) (model.Category, error) {
	c, ok := t.st.categories[slug]
	if !ok {
		return model.Category{}, notFound("category", slug)
	}
	return c, nil
}

func (t *tx) CreateCategory(_ context.Context, c model.Category) (model.Category, error) {
	if existing, ok := t.st.categories[c.Slug]; ok {
		return existing, nil
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	t.st.categories[c.Slug] = c
	return c, nil
}

func (t *tx) Categories(_ context.Context) ([]model.Category, error) {
	out := make([]model.Category, 0, len(t.st.categories))
	for _, c := range t.st.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (t *tx) Item(_ context.Context, id string) (model.Item, error) {
	it, ok := t.st.items[id]
	if !ok {
		return model.Item{}, notFound("item", id)
	}
	return it, nil
}

func (t *tx) CreateItem(_ context.Context, it model.Item) (model.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	now := t.now()
	it.CreatedAt, it.UpdatedAt = now, now
	it.Specifications = append([]model.Specification(nil), it.Specifications...)
	t.st.items[it.ID] = it
	return it, nil
}

func (t *tx) UpdateItem(_ context.Context, it model.Item) (model.Item, error) {
	old, ok := t.st.items[it.ID]
	if !ok {
		return model.Item{}, notFound("item", it.ID)
	}
	it.CreatedAt = old.CreatedAt
	it.UpdatedAt = t.now()
	it.Specifications = append([]model.Specification(nil), it.Specifications...)
	t.st.items[it.ID] = it
	return it, nil
}

func (t *tx) CreateOrder(_ context.Context, o model.Order) (model.Order, error) {
	o.ID = uuid.NewString()
	o.CreatedAt = t.now()
	lines := make([]model.OrderLine, len(o.Lines))
	for i, l := range o.Lines {
		l.OrderID = o.ID
		lines[i] = l
	}
	o.Lines = lines
	t.st.orders[o.ID] = o
	return o, nil
}

func (t *tx) Order(_ context.Context, id string) (model.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return model.Order{}, notFound("order", id)
	}
	return o, nil
}

func (t *tx) OrdersByUser(_ context.Context, userID string) ([]model.Order, error) {
	var out []model.Order
	for _, o := range t.st.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
