// Package leases implements the C6 coordination service: TTL-bounded
// exclusive leases that give multiple concurrent writers (agents,
// indexer runs) a way to serialize access to a shared resource without
// a central scheduler (§4.5).
package leases

import (
	"context"
	"time"
)

// Lease is one exclusive hold on a resource.
type Lease struct {
	ID         string    `json:"id"`
	Resource   string    `json:"resource"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lease's TTL has passed as of now.
// Expired leases are considered released (§4.5).
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Backend is the coordination contract every lease store implements:
// in-memory (single process / tests), file-backed (embedded, no
// Redis), and Redis-backed (multi-process, multi-host).
type Backend interface {
	// Acquire creates a lease for resource if no unexpired lease exists
	// for it, whoever holds it (the same holder included), else fails
	// with Conflict.
	Acquire(ctx context.Context, resource, holder string, ttl time.Duration) (*Lease, error)
	// Renew extends an existing, unexpired lease's expiry. Fails with
	// NotFound if the lease is missing or has already expired.
	Renew(ctx context.Context, leaseID string, ttl time.Duration) (*Lease, error)
	// Release deletes a lease. Idempotent: releasing a lease that does
	// not exist (already expired and swept, or already released)
	// succeeds.
	Release(ctx context.Context, leaseID string) error
	// List enumerates active (unexpired) leases whose resource starts
	// with prefix. An empty prefix matches everything.
	List(ctx context.Context, prefix string) ([]Lease, error)
	// Sweep forces an expired-lease GC pass and reports how many were
	// removed. The lazy per-resource sweep on Acquire already keeps a
	// contended resource clean; Sweep exists for the admin surface to
	// reclaim expired leases on resources nobody is currently trying to
	// acquire. Backends whose TTL is enforced by the underlying store
	// itself (Redis) have nothing to sweep and always report 0.
	Sweep(ctx context.Context) (int, error)
}
