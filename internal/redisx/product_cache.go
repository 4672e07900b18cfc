package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront/internal/model"
)

// ProductCache stores product snapshots for the by-id read model. Writers
// that change stock or price must call Invalidate before returning.
//
// Every Invalidate bumps a per-product version. Readers take the version
// before loading from the store and fill only if it is unchanged, so a row
// read before a commit cannot overwrite the invalidation that followed it.
type ProductCache struct {
	Redis redis.Cmdable
	TTL   time.Duration
}

func (c *ProductCache) Get(ctx context.Context, id string) (model.Product, bool, error) {
	b, err := c.Redis.Get(ctx, fmt.Sprintf(KeyProduct, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Product{}, false, nil
	}
	if err != nil {
		return model.Product{}, false, err
	}
	var p model.Product
	if err := json.Unmarshal(b, &p); err != nil {
		return model.Product{}, false, fmt.Errorf("decode cached product: %w", err)
	}
	return p, true, nil
}

// fillIfUnchanged: KEYS[1] snapshot, KEYS[2] version; ARGV version, body, ttl ms.
var fillIfUnchanged = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Version returns the invalidation counter for id; 0 when never invalidated.
func (c *ProductCache) Version(ctx context.Context, id string) (int64, error) {
	v, err := c.Redis.Get(ctx, fmt.Sprintf(KeyProductVersion, id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Fill stores p unless id was invalidated after version was taken. It
// reports whether the snapshot was written.
func (c *ProductCache) Fill(ctx context.Context, p model.Product, version int64) (bool, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = TTLProduct
	}
	n, err := fillIfUnchanged.Run(ctx, c.Redis,
		[]string{fmt.Sprintf(KeyProduct, p.ID), fmt.Sprintf(KeyProductVersion, p.ID)},
		strconv.FormatInt(version, 10), b, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *ProductCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := c.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Incr(ctx, fmt.Sprintf(KeyProductVersion, id))
			pipe.Del(ctx, fmt.Sprintf(KeyProduct, id))
		}
		return nil
	})
	return err
}
