package leases

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/amp-proto/amp/internal/amperrors"
)

// FileBackend persists leases to a JSON file on disk, guarded by a
// gofrs/flock advisory lock so multiple processes sharing a data
// directory (an embedded, no-Redis deployment) can coordinate safely.
// Grounded on the teacher's embed/lock.go FileLock.
type FileBackend struct {
	dataPath string
	lock     *flock.Flock
}

// NewFileBackend stores lease state at <dir>/leases.json, guarded by
// <dir>/.leases.lock.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, amperrors.Internal("LEASE_DIR", err.Error())
	}
	return &FileBackend{
		dataPath: filepath.Join(dir, "leases.json"),
		lock:     flock.New(filepath.Join(dir, ".leases.lock")),
	}, nil
}

func (f *FileBackend) Acquire(ctx context.Context, resource, holder string, ttl time.Duration) (*Lease, error) {
	var result *Lease
	err := f.withLock(ctx, func(all map[string]*Lease) (bool, error) {
		now := time.Now()
		for id, l := range all {
			if l.Resource == resource {
				if !l.Expired(now) {
					return false, amperrors.Conflict("resource already leased", resource)
				}
				delete(all, id)
			}
		}
		l := &Lease{ID: uuid.New().String(), Resource: resource, Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
		all[l.ID] = l
		result = l
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *FileBackend) Renew(ctx context.Context, leaseID string, ttl time.Duration) (*Lease, error) {
	var result *Lease
	err := f.withLock(ctx, func(all map[string]*Lease) (bool, error) {
		l, ok := all[leaseID]
		if !ok {
			return false, amperrors.NotFound("lease", leaseID)
		}
		now := time.Now()
		if l.Expired(now) {
			delete(all, leaseID)
			return true, amperrors.NotFound("lease", leaseID)
		}
		l.ExpiresAt = now.Add(ttl)
		result = l
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *FileBackend) Release(ctx context.Context, leaseID string) error {
	return f.withLock(ctx, func(all map[string]*Lease) (bool, error) {
		if _, ok := all[leaseID]; !ok {
			return false, nil
		}
		delete(all, leaseID)
		return true, nil
	})
}

func (f *FileBackend) List(ctx context.Context, prefix string) ([]Lease, error) {
	var out []Lease
	err := f.withLock(ctx, func(all map[string]*Lease) (bool, error) {
		now := time.Now()
		changed := false
		for id, l := range all {
			if l.Expired(now) {
				delete(all, id)
				changed = true
				continue
			}
			if prefix != "" && !strings.HasPrefix(l.Resource, prefix) {
				continue
			}
			out = append(out, *l)
		}
		return changed, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *FileBackend) Sweep(ctx context.Context) (int, error) {
	swept := 0
	err := f.withLock(ctx, func(all map[string]*Lease) (bool, error) {
		now := time.Now()
		for id, l := range all {
			if l.Expired(now) {
				delete(all, id)
				swept++
			}
		}
		return swept > 0, nil
	})
	if err != nil {
		return 0, err
	}
	return swept, nil
}

// withLock acquires the advisory file lock, loads the current lease
// set, runs mutate, and — if mutate reports a change — persists the
// result back before releasing the lock. mutate's error (if any) is
// still returned to the caller even when no write is needed.
func (f *FileBackend) withLock(ctx context.Context, mutate func(all map[string]*Lease) (changed bool, err error)) error {
	if err := f.lock.Lock(); err != nil {
		return amperrors.Internal("LEASE_LOCK", err.Error())
	}
	defer f.lock.Unlock()

	all, err := f.load()
	if err != nil {
		return err
	}

	changed, mutErr := mutate(all)
	if changed {
		if err := f.save(all); err != nil {
			return err
		}
	}
	return mutErr
}

func (f *FileBackend) load() (map[string]*Lease, error) {
	data, err := os.ReadFile(f.dataPath)
	if os.IsNotExist(err) {
		return make(map[string]*Lease), nil
	}
	if err != nil {
		return nil, amperrors.Internal("LEASE_READ", err.Error())
	}
	if len(data) == 0 {
		return make(map[string]*Lease), nil
	}
	var all map[string]*Lease
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, amperrors.Internal("LEASE_DECODE", err.Error())
	}
	return all, nil
}

func (f *FileBackend) save(all map[string]*Lease) error {
	data, err := json.Marshal(all)
	if err != nil {
		return amperrors.Internal("LEASE_ENCODE", err.Error())
	}
	if err := os.WriteFile(f.dataPath, data, 0o644); err != nil {
		return amperrors.Internal("LEASE_WRITE", err.Error())
	}
	return nil
}
