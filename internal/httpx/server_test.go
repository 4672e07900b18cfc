package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/pricing"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/ariefcatur/go-storefront/internal/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := memory.New()
	cache := &redisx.ProductCache{Redis: rdb}
	h := &Handler{
		Catalog: &catalog.Service{Store: st, Cache: cache, Policy: pricing.DefaultPolicy()},
		Cart:    &cart.Service{Store: st},
		Orders:  &orders.Service{Store: st, Cache: cache, ServiceName: "api-test"},
		Idem:    &redisx.Idempotency{Redis: rdb},
	}
	r := NewRouter()
	h.Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, user string, body any, hdr ...string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]any
	if res.StatusCode != http.StatusNoContent {
		var raw json.RawMessage
		_ = json.NewDecoder(res.Body).Decode(&raw)
		_ = json.Unmarshal(raw, &out)
	}
	return res, out
}

func createProduct(t *testing.T, srv *httptest.Server, price string, stock int) string {
	t.Helper()
	res, body := do(t, srv, http.MethodPost, "/products", "", map[string]any{
		"name": "Mouse", "price": price, "stock": stock, "category_slug": "electronics",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	return body["id"].(string)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestProductEndpoints(t *testing.T) {
	srv := newTestServer(t)

	res, body := do(t, srv, http.MethodPost, "/products", "", map[string]any{
		"name": "Mouse", "price": "49", "stock": 2, "category_slug": "electronics",
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "49.99", body["price"])
	id := body["id"].(string)

	res, body = do(t, srv, http.MethodGet, "/products/"+id, "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Mouse", body["name"])

	res, body = do(t, srv, http.MethodPatch, "/products/"+id, "", map[string]any{"price": "12.345"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.NotEmpty(t, body["error"])

	res, _ = do(t, srv, http.MethodGet, "/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res, _ = do(t, srv, http.MethodPost, "/products", "", map[string]any{
		"name": "Thing", "price": "abc", "stock": 1, "category_slug": "electronics",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCartRequiresUser(t *testing.T) {
	srv := newTestServer(t)
	res, _ := do(t, srv, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestCheckoutFlow(t *testing.T) {
	srv := newTestServer(t)
	id := createProduct(t, srv, "49", 2)

	res, _ := do(t, srv, http.MethodPost, "/cart/items", "u1", map[string]any{"product_id": id, "quantity": 3})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := do(t, srv, http.MethodPost, "/orders", "u1", map[string]any{"shipping_address": "Jl. Mawar 1"})
	require.Equal(t, http.StatusConflict, res.StatusCode)
	details, ok := body["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	v := details[0].(map[string]any)
	assert.Equal(t, id, v["product_id"])
	assert.EqualValues(t, 3, v["requested"])
	assert.EqualValues(t, 2, v["available"])

	res, _ = do(t, srv, http.MethodPut, "/cart/items/"+id, "u1", map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body = do(t, srv, http.MethodPost, "/orders", "u1", map[string]any{"shipping_address": "Jl. Mawar 1"},
		HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusCreated, res.StatusCode)
	order := body["order"].(map[string]any)
	assert.Equal(t, "99.98", order["total_amount"])
	assert.Equal(t, "pending", order["status"])
	orderID := order["id"].(string)

	// replay returns the same order without a second checkout
	res, body = do(t, srv, http.MethodPost, "/orders", "u1", map[string]any{"shipping_address": "Jl. Mawar 1"},
		HeaderIdempotencyKey, "k1")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, body["idempotent"])
	assert.Equal(t, orderID, body["order"].(map[string]any)["id"])

	res, body = do(t, srv, http.MethodGet, "/cart", "u1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, body["lines"])

	res, body = do(t, srv, http.MethodGet, "/products/"+id, "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 0, body["stock"])
	assert.Equal(t, false, body["available"])

	res, _ = do(t, srv, http.MethodGet, "/orders/"+orderID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, body = do(t, srv, http.MethodGet, "/orders/"+orderID, "u1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, body["lines"], 1)
}

func TestUpdateCartItemToZeroRemoves(t *testing.T) {
	srv := newTestServer(t)
	id := createProduct(t, srv, "10", 5)

	res, _ := do(t, srv, http.MethodPost, "/cart/items", "u1", map[string]any{"product_id": id})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = do(t, srv, http.MethodPut, "/cart/items/"+id, "u1", map[string]any{"quantity": 0})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	res, _ = do(t, srv, http.MethodDelete, "/cart", "u1", nil)
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
}

func TestItemOwnership(t *testing.T) {
	srv := newTestServer(t)
	res, body := do(t, srv, http.MethodPost, "/items", "seller", map[string]any{
		"name": "Kaos", "price": "75000", "quantity": 3, "category": "fashion",
		"specifications": []map[string]string{{"key": "size", "value": "L"}},
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	id := body["id"].(string)

	res, _ = do(t, srv, http.MethodPatch, "/items/"+id, "someone-else", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body = do(t, srv, http.MethodPatch, "/items/"+id, "seller", map[string]any{"quantity": 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, body["quantity"])
}

func TestConcurrentIdempotentCheckout(t *testing.T) {
	srv := newTestServer(t)
	id := createProduct(t, srv, "10", 5)
	res, _ := do(t, srv, http.MethodPost, "/cart/items", "u1", map[string]any{"product_id": id, "quantity": 2})
	require.Equal(t, http.StatusOK, res.StatusCode)

	const n = 8
	var (
		wg       sync.WaitGroup
		codes    = make([]int, n)
		orderIDs = make([]string, n)
		errs     = make([]error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := http.NewRequest(http.MethodPost, srv.URL+"/orders", strings.NewReader(`{"shipping_address":"Jl. Melati 2"}`))
			if err != nil {
				errs[i] = err
				return
			}
			req.Header.Set(HeaderUserID, "u1")
			req.Header.Set(HeaderIdempotencyKey, "same")
			res, err := http.DefaultClient.Do(req)
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			var body placeOrderResp
			errs[i] = json.NewDecoder(res.Body).Decode(&body)
			codes[i] = res.StatusCode
			orderIDs[i] = body.Order.ID
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if codes[i] == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusOK, codes[i])
		}
		assert.Equal(t, orderIDs[0], orderIDs[i], "every response names the same order")
	}
	assert.Equal(t, 1, created)

	res, err := func() (*http.Response, error) {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/orders", nil)
		req.Header.Set(HeaderUserID, "u1")
		return http.DefaultClient.Do(req)
	}()
	require.NoError(t, err)
	defer res.Body.Close()
	var list []map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestFailedCheckoutReleasesIdempotencyKey(t *testing.T) {
	srv := newTestServer(t)
	id := createProduct(t, srv, "10", 1)
	res, _ := do(t, srv, http.MethodPost, "/cart/items", "u1", map[string]any{"product_id": id, "quantity": 2})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = do(t, srv, http.MethodPost, "/orders", "u1", nil, HeaderIdempotencyKey, "k")
	require.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = do(t, srv, http.MethodPut, "/cart/items/"+id, "u1", map[string]any{"quantity": 1})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = do(t, srv, http.MethodPost, "/orders", "u1", nil, HeaderIdempotencyKey, "k")
	assert.Equal(t, http.StatusCreated, res.StatusCode)
}

func TestUpdateCartItemRequiresQuantity(t *testing.T) {
	srv := newTestServer(t)
	id := createProduct(t, srv, "10", 5)
	res, _ := do(t, srv, http.MethodPost, "/cart/items", "u1", map[string]any{"product_id": id})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = do(t, srv, http.MethodPut, "/cart/items/"+id, "u1", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body := do(t, srv, http.MethodGet, "/cart", "u1", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, body["lines"], 1, "line survives a request without quantity")
}
