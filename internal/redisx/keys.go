package redisx

import "time"

const (
	// Idempotent checkout: idem:order:place:{user_id}:{key} -> order_id
	KeyIdemOrderPlace = "idem:order:place:%s:%s"

	// Product read model: product:{product_id} -> JSON snapshot
	KeyProduct = "product:%s"
	// Invalidation counter, no TTL: product:ver:{product_id} -> int
	KeyProductVersion = "product:ver:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLProduct     = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
