// Package store provides the durable tier behind the in-memory token cache.
// The tier is optional: callers hold a Durable and treat a nil value as
// "memory only".
package store

import (
	"context"
	"time"
)

// Durable is the capability interface for the persistent token tier.
// Implementations store opaque byte values under string keys with a TTL.
// A miss is reported as (nil, nil), not as an error.
type Durable interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Pinger is implemented by durable tiers that can report reachability,
// used by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}
