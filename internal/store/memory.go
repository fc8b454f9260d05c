package store

import (
	"context"
	"sort"
	"sync"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/objects"
)

// MemoryStore is the in-process ObjectStore backend, selected by
// database_url=memory. The sqlite and postgres backends are separate
// implementations and do not use it.
type MemoryStore struct {
	mu sync.RWMutex

	byID        map[string]*Record
	byType      map[objects.Type]map[string]struct{}
	byProject   map[string]map[string]struct{}
	byTenant    map[string]map[string]struct{}
	byPath      map[string]map[string]struct{}

	relationships map[string]*objects.Relationship
	outbound      map[string]map[string]struct{} // sourceID -> relationship IDs
	inbound       map[string]map[string]struct{} // targetID -> relationship IDs

	vectorIndex VectorIndex
	log         logging.Logger
}

// NewMemoryStore constructs an empty store backed by the given vector
// index (a BruteForceIndex if nil).
func NewMemoryStore(vectorIndex VectorIndex) *MemoryStore {
	if vectorIndex == nil {
		vectorIndex = NewBruteForceIndex(0)
	}
	return &MemoryStore{
		byID:          make(map[string]*Record),
		byType:        make(map[objects.Type]map[string]struct{}),
		byProject:     make(map[string]map[string]struct{}),
		byTenant:      make(map[string]map[string]struct{}),
		byPath:        make(map[string]map[string]struct{}),
		relationships: make(map[string]*objects.Relationship),
		outbound:      make(map[string]map[string]struct{}),
		inbound:       make(map[string]map[string]struct{}),
		vectorIndex:   vectorIndex,
		log:           logging.WithComponent("store.memory"),
	}
}

func pathOf(variant interface{}) string {
	switch v := variant.(type) {
	case *objects.Symbol:
		return v.Path
	case *objects.FileChunk:
		return v.ParentPath
	case *objects.FileLog:
		return v.FilePath
	default:
		return ""
	}
}

func indexSet(m map[string]map[string]struct{}, key, id string) {
	if key == "" {
		return
	}
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][id] = struct{}{}
}

func indexUnset(m map[string]map[string]struct{}, key, id string) {
	if key == "" || m[key] == nil {
		return
	}
	delete(m[key], id)
	if len(m[key]) == 0 {
		delete(m, key)
	}
}

func (s *MemoryStore) index(rec *Record) {
	env := rec.Envelope
	if s.byType[env.Type] == nil {
		s.byType[env.Type] = make(map[string]struct{})
	}
	s.byType[env.Type][env.ID] = struct{}{}
	indexSet(s.byProject, env.ProjectID, env.ID)
	indexSet(s.byTenant, env.TenantID, env.ID)
	indexSet(s.byPath, pathOf(rec.Variant), env.ID)
}

func (s *MemoryStore) unindex(rec *Record) {
	env := rec.Envelope
	delete(s.byType[env.Type], env.ID)
	indexUnset(s.byProject, env.ProjectID, env.ID)
	indexUnset(s.byTenant, env.TenantID, env.ID)
	indexUnset(s.byPath, pathOf(rec.Variant), env.ID)
}

func (s *MemoryStore) Put(ctx context.Context, env *objects.Envelope, variant interface{}) error {
	if env.ID == "" {
		return amperrors.ValidationMsg("object id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	env.Touch()
	rec := &Record{Envelope: env, Variant: variant}
	s.byID[env.ID] = rec
	s.index(rec)

	if len(env.Embedding) > 0 {
		if err := s.vectorIndex.Upsert(ctx, env.ID, env.Embedding); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) PutBatch(ctx context.Context, items []PutItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		err := s.Put(ctx, item.Envelope, item.Variant)
		results[i] = BatchResult{ID: item.Envelope.ID, Success: err == nil, Error: err}
	}
	return results, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, amperrors.NotFound("object", id)
	}
	return rec, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, env *objects.Envelope, variant interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[id]
	if !ok {
		return amperrors.NotFound("object", id)
	}
	if existing.Envelope.Type != env.Type {
		return amperrors.ValidationMsg("update may not change an object's discriminant type")
	}

	s.unindex(existing)
	env.ID = id
	env.CreatedAt = existing.Envelope.CreatedAt
	env.Touch()
	rec := &Record{Envelope: env, Variant: variant}
	s.byID[id] = rec
	s.index(rec)

	if len(env.Embedding) > 0 {
		if err := s.vectorIndex.Upsert(ctx, id, env.Embedding); err != nil {
			return err
		}
	} else {
		_ = s.vectorIndex.Delete(ctx, id)
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return amperrors.NotFound("object", id)
	}
	s.unindex(rec)
	delete(s.byID, id)
	_ = s.vectorIndex.Delete(ctx, id)

	// Purge relationships with this object on either end (invariant 2).
	for relID := range s.outbound[id] {
		s.deleteRelationshipLocked(relID)
	}
	for relID := range s.inbound[id] {
		s.deleteRelationshipLocked(relID)
	}
	return nil
}

func (s *MemoryStore) deleteRelationshipLocked(relID string) {
	rel, ok := s.relationships[relID]
	if !ok {
		return
	}
	delete(s.relationships, relID)
	indexUnset(s.outbound, rel.SourceID, relID)
	indexUnset(s.inbound, rel.TargetID, relID)
}

func (s *MemoryStore) List(ctx context.Context, filter Filter, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := s.candidateSet(filter)
	out := make([]*Record, 0, len(candidates))
	for id := range candidates {
		rec, ok := s.byID[id]
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Envelope.CreatedAt.Before(out[j].Envelope.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// candidateSet intersects whichever secondary indices the filter
// names, narrowing from the cheapest (type) to the most specific
// (path), per the store's indexing contract.
func (s *MemoryStore) candidateSet(filter Filter) map[string]struct{} {
	var sets []map[string]struct{}
	if filter.Type != "" {
		sets = append(sets, s.byType[filter.Type])
	}
	if filter.ProjectID != "" {
		sets = append(sets, s.byProject[filter.ProjectID])
	}
	if filter.TenantID != "" {
		sets = append(sets, s.byTenant[filter.TenantID])
	}
	if filter.Path != "" {
		sets = append(sets, s.byPath[filter.Path])
	}
	if len(sets) == 0 {
		all := make(map[string]struct{}, len(s.byID))
		for id := range s.byID {
			all[id] = struct{}{}
		}
		return all
	}
	result := sets[0]
	for _, set := range sets[1:] {
		result = intersect(result, set)
	}
	return result
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s *MemoryStore) PutRelationship(ctx context.Context, rel *objects.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rel.SourceID]; !ok {
		return amperrors.Validation("source_id", "references a non-existent object", rel.SourceID)
	}
	if _, ok := s.byID[rel.TargetID]; !ok {
		return amperrors.Validation("target_id", "references a non-existent object", rel.TargetID)
	}
	s.relationships[rel.ID] = rel
	indexSet(s.outbound, rel.SourceID, rel.ID)
	indexSet(s.inbound, rel.TargetID, rel.ID)
	return nil
}

func (s *MemoryStore) ListRelationships(ctx context.Context, sourceID string) ([]*objects.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*objects.Relationship, 0, len(s.outbound[sourceID]))
	for relID := range s.outbound[sourceID] {
		out = append(out, s.relationships[relID])
	}
	return out, nil
}

func (s *MemoryStore) Neighbors(ctx context.Context, id string, dir objects.Direction, types []objects.RelationType) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[objects.RelationType]bool)
	for _, t := range types {
		allowed[t] = true
	}

	seen := make(map[string]struct{})
	var out []*Record
	collect := func(relIDs map[string]struct{}, pick func(*objects.Relationship) string) {
		for relID := range relIDs {
			rel := s.relationships[relID]
			if rel == nil {
				continue
			}
			if len(allowed) > 0 && !allowed[rel.Type] {
				continue
			}
			other := pick(rel)
			if _, dup := seen[other]; dup {
				continue
			}
			rec, ok := s.byID[other]
			if !ok {
				continue
			}
			seen[other] = struct{}{}
			out = append(out, rec)
		}
	}

	if dir == objects.DirectionOutbound || dir == objects.DirectionBoth {
		collect(s.outbound[id], func(r *objects.Relationship) string { return r.TargetID })
	}
	if dir == objects.DirectionInbound || dir == objects.DirectionBoth {
		collect(s.inbound[id], func(r *objects.Relationship) string { return r.SourceID })
	}
	return out, nil
}

func (s *MemoryStore) VectorSearch(ctx context.Context, queryVector []float32, topK int) ([]ScoredID, error) {
	return s.vectorIndex.Search(ctx, queryVector, topK)
}

func (s *MemoryStore) Counts(ctx context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), len(s.relationships), nil
}

func (s *MemoryStore) NuclearDelete(ctx context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	objCount := len(s.byID)
	relCount := len(s.relationships)

	s.byID = make(map[string]*Record)
	s.byType = make(map[objects.Type]map[string]struct{})
	s.byProject = make(map[string]map[string]struct{})
	s.byTenant = make(map[string]map[string]struct{})
	s.byPath = make(map[string]map[string]struct{})
	s.relationships = make(map[string]*objects.Relationship)
	s.outbound = make(map[string]map[string]struct{})
	s.inbound = make(map[string]map[string]struct{})

	s.log.Info("nuclear delete executed", "objects_deleted", objCount, "relationships_deleted", relCount)
	return objCount, relCount, nil
}
