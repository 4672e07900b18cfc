package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// ErrIdempotencyPending means another request still holds the key.
var ErrIdempotencyPending = errors.New("request with this idempotency key is still in progress")

const idemPending = "pending"

// Idempotency maps a client-supplied key to the order it produced. A key is
// claimed with a pending marker before checkout so concurrent requests with
// the same key cannot both check out.
type Idempotency struct {
	Redis redis.Cmdable
	TTL   time.Duration
	Wait  time.Duration // how long a duplicate waits for the holder; default 3s
	Poll  time.Duration // default 25ms
}

func (i *Idempotency) ttl() time.Duration {
	if i.TTL <= 0 {
		return TTLIdempotency
	}
	return i.TTL
}

// Acquire claims key for userID. It returns "" when the caller now owns the
// claim and must either Remember or Release it. When the key already maps
// to an order, that order id is returned. A claim still pending after Wait
// yields ErrIdempotencyPending.
func (i *Idempotency) Acquire(ctx context.Context, userID, key string) (string, error) {
	k := fmt.Sprintf(KeyIdemOrderPlace, userID, key)
	wait, poll := i.Wait, i.Poll
	if wait <= 0 {
		wait = 3 * time.Second
	}
	if poll <= 0 {
		poll = 25 * time.Millisecond
	}
	deadline := time.Now().Add(wait)
	for {
		ok, err := i.Redis.SetNX(ctx, k, idemPending, i.ttl()).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return "", nil
		}
		v, err := i.Redis.Get(ctx, k).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue // released between SetNX and Get
		case err != nil:
			return "", err
		case v != idemPending:
			return v, nil
		}
		if time.Now().After(deadline) {
			return "", ErrIdempotencyPending
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(poll):
		}
	}
}

// Remember replaces the pending marker with the order id.
func (i *Idempotency) Remember(ctx context.Context, userID, key, orderID string) error {
	return i.Redis.Set(ctx, fmt.Sprintf(KeyIdemOrderPlace, userID, key), orderID, i.ttl()).Err()
}

// Release drops a claim whose checkout failed so the key can be retried.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	return i.Redis.Del(ctx, fmt.Sprintf(KeyIdemOrderPlace, userID, key)).Err()
}

// Dedup reports whether an event was already seen, marking it seen when not.
type Dedup struct {
	Redis   redis.Cmdable
	Service string
}

func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.Redis.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID), "1", TTLDedup).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Forget clears the mark so a failed event can be redelivered.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.Redis.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID)).Err()
}
