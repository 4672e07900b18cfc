package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-storefront/internal/model"
	"github.com/ariefcatur/go-storefront/internal/store"
)

// Store runs every operation in a read-committed transaction. Rows that
// must not change under a caller (carts, products during checkout) are
// taken with SELECT ... FOR UPDATE.
type Store struct{ DB *pgxpool.Pool }

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct{ tx pgx.Tx }

func notFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return err
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode numeric %q: %w", s, err)
	}
	return d, nil
}

// ---- carts ----

func (t *pgTx) GetOrCreateCart(ctx context.Context, userID string) (model.Cart, bool, error) {
	ct, err := t.tx.Exec(ctx, `
		INSERT INTO carts(id, user_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING`, uuid.NewString(), userID)
	if err != nil {
		return model.Cart{}, false, err
	}
	var c model.Cart
	err = t.tx.QueryRow(ctx, `
		SELECT id, user_id, created_at FROM carts WHERE user_id=$1 FOR UPDATE`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt)
	if err != nil {
		return model.Cart{}, false, err
	}
	return c, ct.RowsAffected() == 1, nil
}

func (t *pgTx) CartLines(ctx context.Context, cartID string) ([]model.CartLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT cart_id, product_id, quantity FROM cart_items
		WHERE cart_id=$1 ORDER BY product_id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CartLine
	for rows.Next() {
		var l model.CartLine
		if err := rows.Scan(&l.CartID, &l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *pgTx) CartLine(ctx context.Context, cartID, productID string) (model.CartLine, error) {
	var l model.CartLine
	err := t.tx.QueryRow(ctx, `
		SELECT cart_id, product_id, quantity FROM cart_items
		WHERE cart_id=$1 AND product_id=$2`, cartID, productID).
		Scan(&l.CartID, &l.ProductID, &l.Quantity)
	if err != nil {
		return model.CartLine{}, notFound(err, "cart line", productID)
	}
	return l, nil
}

func (t *pgTx) PutCartLine(ctx context.Context, line model.CartLine) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO cart_items(cart_id, product_id, quantity) VALUES ($1,$2,$3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		line.CartID, line.ProductID, line.Quantity)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `UPDATE carts SET updated_at=now() WHERE id=$1`, line.CartID)
	return err
}

func (t *pgTx) DeleteCartLine(ctx context.Context, cartID, productID string) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1 AND product_id=$2`, cartID, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("cart line %s: %w", productID, store.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ClearCart(ctx context.Context, cartID string) (int, error) {
	ct, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// ---- catalog ----

const productCols = `p.id, p.name, p.description, p.price::text, p.stock, p.available,
	p.category_id, c.slug, p.created_at, p.updated_at`

func scanProduct(row pgx.Row) (model.Product, error) {
	var (
		p     model.Product
		price string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Available,
		&p.CategoryID, &p.CategorySlug, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return model.Product{}, err
	}
	if p.Price, err = parseDecimal(price); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

func (t *pgTx) Product(ctx context.Context, id string) (model.Product, error) {
	p, err := scanProduct(t.tx.QueryRow(ctx, `
		SELECT `+productCols+` FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.id=$1`, id))
	if err != nil {
		return model.Product{}, notFound(err, "product", id)
	}
	return p, nil
}

func (t *pgTx) queryProducts(ctx context.Context, sql string, args ...any) ([]model.Product, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func byID(ps []model.Product) map[string]model.Product {
	m := make(map[string]model.Product, len(ps))
	for _, p := range ps {
		m[p.ID] = p
	}
	return m
}

func (t *pgTx) Products(ctx context.Context, ids []string) (map[string]model.Product, error) {
	ps, err := t.queryProducts(ctx, `
		SELECT `+productCols+` FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return byID(ps), nil
}

// LockProducts takes row locks in id order so that two checkouts sharing
// products always acquire them in the same sequence.
func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]model.Product, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	ps, err := t.queryProducts(ctx, `
		SELECT `+productCols+` FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.id = ANY($1) ORDER BY p.id FOR UPDATE OF p`, sorted)
	if err != nil {
		return nil, err
	}
	return byID(ps), nil
}

func (t *pgTx) ListAvailableProducts(ctx context.Context) ([]model.Product, error) {
	return t.queryProducts(ctx, `
		SELECT `+productCols+` FROM products p JOIN categories c ON c.id = p.category_id
		WHERE p.available ORDER BY p.created_at DESC, p.id DESC`)
}

func (t *pgTx) CreateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO products(id, name, description, price, stock, available, category_id)
		VALUES ($1,$2,$3,$4::numeric,$5,$6,$7)`,
		p.ID, p.Name, p.Description, p.Price.StringFixed(2), p.Stock, p.Available, p.CategoryID)
	if err != nil {
		return model.Product{}, err
	}
	return t.Product(ctx, p.ID)
}

func (t *pgTx) UpdateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products SET name=$2, description=$3, price=$4::numeric, stock=$5,
			available=$6, category_id=$7, updated_at=now()
		WHERE id=$1`,
		p.ID, p.Name, p.Description, p.Price.StringFixed(2), p.Stock, p.Available, p.CategoryID)
	if err != nil {
		return model.Product{}, err
	}
	if ct.RowsAffected() != 1 {
		return model.Product{}, fmt.Errorf("product %s: %w", p.ID, store.ErrNotFound)
	}
	return t.Product(ctx, p.ID)
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) (model.Product, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products
		SET stock = GREATEST(stock - $2, 0),
		    available = GREATEST(stock - $2, 0) > 0,
		    updated_at = now()
		WHERE id=$1`, productID, qty)
	if err != nil {
		return model.Product{}, err
	}
	if ct.RowsAffected() != 1 {
		return model.Product{}, fmt.Errorf("product %s: %w", productID, store.ErrNotFound)
	}
	return t.Product(ctx, productID)
}

func (t *pgTx) CategoryBySlug(ctx context.Context, slug string) (model.Category, error) {
	var c model.Category
	err := t.tx.QueryRow(ctx, `SELECT id, slug, name, description FROM categories WHERE slug=$1`, slug).
		Scan(&c.ID, &c.Slug, &c.Name, &c.Description)
	if err != nil {
		return model.Category{}, notFound(err, "category", slug)
	}
	return c, nil
}

func (t *pgTx) CreateCategory(ctx context.Context, c model.Category) (model.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO categories(id, slug, name, description) VALUES ($1,$2,$3,$4)
		ON CONFLICT (slug) DO NOTHING`, c.ID, c.Slug, c.Name, c.Description)
	if err != nil {
		return model.Category{}, err
	}
	return t.CategoryBySlug(ctx, c.Slug)
}

func (t *pgTx) Categories(ctx context.Context) ([]model.Category, error) {
	rows, err := t.tx.Query(ctx, `SELECT id, slug, name, description FROM categories ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Slug, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ---- legacy items ----

func (t *pgTx) Item(ctx context.Context, id string) (model.Item, error) {
	var (
		it    model.Item
		price string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, owner_id, name, description, price::text, quantity, category, created_at, updated_at
		FROM items WHERE id=$1`, id).
		Scan(&it.ID, &it.OwnerID, &it.Name, &it.Description, &price, &it.Quantity, &it.Category,
			&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return model.Item{}, notFound(err, "item", id)
	}
	if it.Price, err = parseDecimal(price); err != nil {
		return model.Item{}, err
	}

	rows, err := t.tx.Query(ctx, `SELECT key, value FROM item_specifications WHERE item_id=$1 ORDER BY id`, id)
	if err != nil {
		return model.Item{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var sp model.Specification
		if err := rows.Scan(&sp.Key, &sp.Value); err != nil {
			return model.Item{}, err
		}
		it.Specifications = append(it.Specifications, sp)
	}
	return it, rows.Err()
}

func (t *pgTx) insertSpecs(ctx context.Context, itemID string, specs []model.Specification) error {
	for _, sp := range specs {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO item_specifications(item_id, key, value) VALUES ($1,$2,$3)`,
			itemID, sp.Key, sp.Value); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) CreateItem(ctx context.Context, it model.Item) (model.Item, error) {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO items(id, owner_id, name, description, price, quantity, category)
		VALUES ($1,$2,$3,$4,$5::numeric,$6,$7)`,
		it.ID, it.OwnerID, it.Name, it.Description, it.Price.StringFixed(2), it.Quantity, it.Category)
	if err != nil {
		return model.Item{}, err
	}
	if err := t.insertSpecs(ctx, it.ID, it.Specifications); err != nil {
		return model.Item{}, err
	}
	return t.Item(ctx, it.ID)
}

func (t *pgTx) UpdateItem(ctx context.Context, it model.Item) (model.Item, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE items SET name=$2, description=$3, price=$4::numeric, quantity=$5, category=$6,
			updated_at=now()
		WHERE id=$1`,
		it.ID, it.Name, it.Description, it.Price.StringFixed(2), it.Quantity, it.Category)
	if err != nil {
		return model.Item{}, err
	}
	if ct.RowsAffected() != 1 {
		return model.Item{}, fmt.Errorf("item %s: %w", it.ID, store.ErrNotFound)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM item_specifications WHERE item_id=$1`, it.ID); err != nil {
		return model.Item{}, err
	}
	if err := t.insertSpecs(ctx, it.ID, it.Specifications); err != nil {
		return model.Item{}, err
	}
	return t.Item(ctx, it.ID)
}

// ---- orders ----

func (t *pgTx) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	o.ID = uuid.NewString()
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, total_amount, status, shipping_address, billing_address, payment_method)
		VALUES ($1,$2,$3::numeric,$4,$5,$6,$7)
		RETURNING created_at`,
		o.ID, o.UserID, o.TotalAmount.StringFixed(2), string(o.Status),
		o.ShippingAddress, o.BillingAddress, o.PaymentMethod).Scan(&o.CreatedAt)
	if err != nil {
		return model.Order{}, err
	}

	lines := make([]model.OrderLine, len(o.Lines))
	for i, l := range o.Lines {
		l.OrderID = o.ID
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, price)
			VALUES ($1,$2,$3,$4::numeric)`,
			o.ID, l.ProductID, l.Quantity, l.Price.StringFixed(2)); err != nil {
			return model.Order{}, err
		}
		lines[i] = l
	}
	o.Lines = lines
	return o, nil
}

const orderCols = `id, user_id, total_amount::text, status, shipping_address, billing_address,
	payment_method, created_at`

func scanOrder(row pgx.Row) (model.Order, error) {
	var (
		o      model.Order
		total  string
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &total, &status, &o.ShippingAddress, &o.BillingAddress,
		&o.PaymentMethod, &o.CreatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = model.Status(status)
	if o.TotalAmount, err = parseDecimal(total); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (t *pgTx) orderLines(ctx context.Context, orderIDs []string) (map[string][]model.OrderLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT order_id, product_id, quantity, price::text FROM order_items
		WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]model.OrderLine{}
	for rows.Next() {
		var (
			l     model.OrderLine
			price string
		)
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.Quantity, &price); err != nil {
			return nil, err
		}
		if l.Price, err = parseDecimal(price); err != nil {
			return nil, err
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

func (t *pgTx) Order(ctx context.Context, id string) (model.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return model.Order{}, notFound(err, "order", id)
	}
	lines, err := t.orderLines(ctx, []string{o.ID})
	if err != nil {
		return model.Order{}, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

func (t *pgTx) OrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+orderCols+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []model.Order
		ids []string
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if len(out) == 0 {
		return out, nil
	}

	lines, err := t.orderLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}
