// Package provenance surfaces an object's provenance record as its own
// read path, mirroring how the teacher surfaces FileLog audit trails
// as a dedicated view rather than requiring callers to pull the whole
// object (§3.1 FileLog audit trail, generalized to every object kind
// via the envelope's Provenance field).
package provenance

import (
	"context"

	"github.com/amp-proto/amp/internal/objects"
	"github.com/amp-proto/amp/internal/store"
)

// Record is the response shape for a provenance lookup: the envelope's
// identity plus its provenance, and — when the underlying object is a
// FileLog — its full audit trail too.
type Record struct {
	ID         string               `json:"id"`
	Type       objects.Type         `json:"type"`
	CreatedAt  string               `json:"created_at"`
	UpdatedAt  string               `json:"updated_at"`
	Provenance objects.Provenance   `json:"provenance"`
	AuditTrail []objects.AuditEntry `json:"audit_trail,omitempty"`
}

// Service looks up provenance for any stored object.
type Service struct {
	store store.ObjectStore
}

// NewService wires a Service to the object store.
func NewService(st store.ObjectStore) *Service {
	return &Service{store: st}
}

// Get returns id's provenance record, NotFound if id doesn't exist.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &Record{
		ID:         rec.Envelope.ID,
		Type:       rec.Envelope.Type,
		CreatedAt:  rec.Envelope.CreatedAt.Format(timeLayout),
		UpdatedAt:  rec.Envelope.UpdatedAt.Format(timeLayout),
		Provenance: rec.Envelope.Provenance,
	}
	if log, ok := rec.Variant.(*objects.FileLog); ok {
		out.AuditTrail = log.AuditTrail
	}
	return out, nil
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
