package leases

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amp-proto/amp/internal/amperrors"
)

// MemoryBackend is a single-process Backend: a plain map guarded by one
// mutex. It is the default for tests and for deployments with exactly
// one AMP process.
type MemoryBackend struct {
	mu     sync.Mutex
	byID   map[string]*Lease
	byName map[string]string // resource -> lease id
}

// NewMemoryBackend constructs an empty in-memory lease store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{byID: make(map[string]*Lease), byName: make(map[string]string)}
}

func (m *MemoryBackend) Acquire(ctx context.Context, resource, holder string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.sweepResourceLocked(resource, now)

	if _, held := m.byName[resource]; held {
		return nil, amperrors.Conflict("resource already leased", resource)
	}

	l := &Lease{
		ID:         uuid.New().String(),
		Resource:   resource,
		Holder:     holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	m.byID[l.ID] = l
	m.byName[resource] = l.ID
	out := *l
	return &out, nil
}

func (m *MemoryBackend) Renew(ctx context.Context, leaseID string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.byID[leaseID]
	if !ok {
		return nil, amperrors.NotFound("lease", leaseID)
	}
	now := time.Now()
	if l.Expired(now) {
		delete(m.byID, leaseID)
		if m.byName[l.Resource] == leaseID {
			delete(m.byName, l.Resource)
		}
		return nil, amperrors.NotFound("lease", leaseID)
	}
	l.ExpiresAt = now.Add(ttl)
	out := *l
	return &out, nil
}

func (m *MemoryBackend) Release(ctx context.Context, leaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.byID[leaseID]
	if !ok {
		return nil
	}
	delete(m.byID, leaseID)
	if m.byName[l.Resource] == leaseID {
		delete(m.byName, l.Resource)
	}
	return nil
}

func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]Lease, 0, len(m.byID))
	for id, l := range m.byID {
		if l.Expired(now) {
			delete(m.byID, id)
			if m.byName[l.Resource] == id {
				delete(m.byName, l.Resource)
			}
			continue
		}
		if prefix != "" && !strings.HasPrefix(l.Resource, prefix) {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

// Sweep forces a full GC pass over every resource, independent of any
// particular resource's Acquire traffic.
func (m *MemoryBackend) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	swept := 0
	for id, l := range m.byID {
		if !l.Expired(now) {
			continue
		}
		delete(m.byID, id)
		if m.byName[l.Resource] == id {
			delete(m.byName, l.Resource)
		}
		swept++
	}
	return swept, nil
}

// sweepResourceLocked drops resource's current lease if it has
// expired, implementing the lazy per-acquire sweep (§4.5). Caller
// holds m.mu.
func (m *MemoryBackend) sweepResourceLocked(resource string, now time.Time) {
	id, held := m.byName[resource]
	if !held {
		return
	}
	if l, ok := m.byID[id]; ok && !l.Expired(now) {
		return
	}
	delete(m.byID, id)
	delete(m.byName, resource)
}
