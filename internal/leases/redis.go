package leases

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/amp-proto/amp/internal/amperrors"
)

// RedisBackend is the multi-process/multi-host Backend: each lease is
// a Redis key set with `SET NX PX`, so TTL expiry is enforced by Redis
// itself rather than a sweep. Renew/Release are atomic compare-then-act
// Lua scripts so a caller can never renew or release a lease it no
// longer holds, the canonical Redis distributed-lock pattern also used
// for the teacher's rate limiter scripts.
type RedisBackend struct {
	client *redis.Client
	prefix string
	renew  *redis.Script
	del    *redis.Script
}

// leaseRecord is what's actually stored at each Redis key; Resource is
// folded back in from the key name on List so it isn't duplicated.
type leaseRecord struct {
	ID         string    `json:"id"`
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

const renewScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 0
end
local rec = cjson.decode(raw)
if rec.id ~= ARGV[1] then
  return 0
end
rec.expires_at = ARGV[2]
redis.call('SET', KEYS[1], cjson.encode(rec), 'PX', ARGV[3])
return 1
`

const releaseScript = `
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 1
end
local rec = cjson.decode(raw)
if rec.id ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`

// NewRedisBackend wires a client against addr with keys namespaced
// under prefix (default "amp:lease:" when empty).
func NewRedisBackend(addr, password string, db int, prefix string) (*RedisBackend, error) {
	if prefix == "" {
		prefix = "amp:lease:"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, amperrors.ProviderUnavailable("redis", err)
	}

	return &RedisBackend{
		client: client,
		prefix: prefix,
		renew:  redis.NewScript(renewScript),
		del:    redis.NewScript(releaseScript),
	}, nil
}

func (r *RedisBackend) key(resource string) string { return r.prefix + resource }

func (r *RedisBackend) Acquire(ctx context.Context, resource, holder string, ttl time.Duration) (*Lease, error) {
	now := time.Now()
	rec := leaseRecord{ID: uuid.New().String(), Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, amperrors.Internal("LEASE_ENCODE", err.Error())
	}

	ok, err := r.client.SetNX(ctx, r.key(resource), data, ttl).Result()
	if err != nil {
		return nil, amperrors.ProviderUnavailable("redis", err)
	}
	if !ok {
		return nil, amperrors.Conflict("resource already leased", resource)
	}

	return &Lease{ID: rec.ID, Resource: resource, Holder: holder, AcquiredAt: rec.AcquiredAt, ExpiresAt: rec.ExpiresAt}, nil
}

// Renew extends leaseID's expiry. The lease key in Redis is addressed
// by resource, but callers only carry the lease id, so Renew scans the
// prefix for the owning key — acceptable since leases are short-lived
// and resource counts are small relative to a full keyspace scan.
func (r *RedisBackend) Renew(ctx context.Context, leaseID string, ttl time.Duration) (*Lease, error) {
	resource, rec, err := r.findByID(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, amperrors.NotFound("lease", leaseID)
	}

	newExpiry := time.Now().Add(ttl)
	res, err := r.renew.Run(ctx, r.client, []string{r.key(resource)}, leaseID, newExpiry.Format(time.RFC3339Nano), ttl.Milliseconds()).Int()
	if err != nil {
		return nil, amperrors.ProviderUnavailable("redis", err)
	}
	if res == 0 {
		return nil, amperrors.NotFound("lease", leaseID)
	}

	return &Lease{ID: leaseID, Resource: resource, Holder: rec.Holder, AcquiredAt: rec.AcquiredAt, ExpiresAt: newExpiry}, nil
}

func (r *RedisBackend) Release(ctx context.Context, leaseID string) error {
	resource, rec, err := r.findByID(ctx, leaseID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	if _, err := r.del.Run(ctx, r.client, []string{r.key(resource)}, leaseID).Int(); err != nil {
		return amperrors.ProviderUnavailable("redis", err)
	}
	return nil
}

func (r *RedisBackend) List(ctx context.Context, prefix string) ([]Lease, error) {
	var out []Lease
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		resource := strings.TrimPrefix(key, r.prefix)
		if prefix != "" && !strings.HasPrefix(resource, prefix) {
			continue
		}
		data, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, amperrors.ProviderUnavailable("redis", err)
		}
		var rec leaseRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		out = append(out, Lease{ID: rec.ID, Resource: resource, Holder: rec.Holder, AcquiredAt: rec.AcquiredAt, ExpiresAt: rec.ExpiresAt})
	}
	if err := iter.Err(); err != nil {
		return nil, amperrors.ProviderUnavailable("redis", err)
	}
	return out, nil
}

// Sweep is a no-op: Redis's own key TTL already expires lease keys
// without any sweep logic.
func (r *RedisBackend) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}

// findByID scans the lease prefix for the key holding leaseID, since
// Redis addresses leases by resource but callers only carry the lease
// id. Returns a nil record when no key holds leaseID.
func (r *RedisBackend) findByID(ctx context.Context, leaseID string) (string, *leaseRecord, error) {
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := r.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return "", nil, amperrors.ProviderUnavailable("redis", err)
		}
		var rec leaseRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if rec.ID == leaseID {
			return strings.TrimPrefix(key, r.prefix), &rec, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", nil, amperrors.ProviderUnavailable("redis", err)
	}
	return "", nil, nil
}
