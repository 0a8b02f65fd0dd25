// Package cache abstracts the TTL key-value store used for one-time
// tokens, the access-token deny-list, pending MFA state and rate
// counters.
//
// Backends:
//   - Memory (in-process, dev/testing)
//   - Redis (distributed, production)
//
// The GetDel primitive is the atomic lookup-and-delete every single-use
// token relies on; both backends implement it atomically.
package cache

import (
	"context"
	"time"
)

// Client defines the key-value operations.
type Client interface {
	// Get returns a value. Returns ErrNotFound if the key is absent or
	// expired.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with a TTL. ttl of 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// GetDel atomically returns and removes a value. Returns
	// ErrNotFound if the key is absent or expired. Exactly one of any
	// number of concurrent callers observes the value.
	GetDel(ctx context.Context, key string) (string, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "cache: key not found" }

// IsNotFound reports whether err is the missing-key sentinel.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}
