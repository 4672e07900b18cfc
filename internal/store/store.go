// Package store defines the transactional persistence port shared by the
// postgres and memory adapters.
package store

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-storefront/internal/model"
)

var ErrNotFound = errors.New("not found")

// Store runs fn inside one transaction. If fn returns an error every write
// made through tx is discarded.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	CartTx
	CatalogTx
	OrderTx
}

type CartTx interface {
	// GetOrCreateCart returns the user's cart, creating it when absent, and
	// holds a lock on it until the transaction ends.
	GetOrCreateCart(ctx context.Context, userID string) (cart model.Cart, created bool, err error)
	CartLines(ctx context.Context, cartID string) ([]model.CartLine, error)
	CartLine(ctx context.Context, cartID, productID string) (model.CartLine, error)
	PutCartLine(ctx context.Context, line model.CartLine) error
	DeleteCartLine(ctx context.Context, cartID, productID string) error
	ClearCart(ctx context.Context, cartID string) (int, error)
}

type CatalogTx interface {
	Product(ctx context.Context, id string) (model.Product, error)
	Products(ctx context.Context, ids []string) (map[string]model.Product, error)
	// LockProducts reads and locks the given products in id order.
	LockProducts(ctx context.Context, ids []string) (map[string]model.Product, error)
	ListAvailableProducts(ctx context.Context) ([]model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) (model.Product, error)
	// DecrementStock subtracts qty from stock, never below zero, and
	// recomputes availability.
	DecrementStock(ctx context.Context, productID string, qty int) (model.Product, error)

	CategoryBySlug(ctx context.Context, slug string) (model.Category, error)
	CreateCategory(ctx context.Context, c model.Category) (model.Category, error)
	Categories(ctx context.Context) ([]model.Category, error)

	Item(ctx context.Context, id string) (model.Item, error)
	CreateItem(ctx context.Context, it model.Item) (model.Item, error)
	UpdateItem(ctx context.Context, it model.Item) (model.Item, error)
}

type OrderTx interface {
	// CreateOrder inserts the order with its lines and returns it with ids
	// and timestamps filled in.
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	Order(ctx context.Context, id string) (model.Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
}
