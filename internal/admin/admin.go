// Package admin implements the runtime-settings and destructive
// maintenance surface: GET/PUT /v1/settings, the guarded nuclear-delete
// (with a dry-run mode), and an explicit lease sweep for backends that
// don't self-expire.
package admin

import (
	"context"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/config"
	"github.com/amp-proto/amp/internal/leases"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/store"
)

// Service owns the live Config and exposes the admin operations over
// it and the rest of the engine's state.
type Service struct {
	mu     sync.RWMutex
	cfg    *config.Config
	store  store.ObjectStore
	leases leases.Backend
	log    logging.Logger
}

// NewService wires a Service to the components it administers.
func NewService(cfg *config.Config, st store.ObjectStore, lb leases.Backend) *Service {
	return &Service{cfg: cfg, store: st, leases: lb, log: logging.WithComponent("admin")}
}

// GetSettings returns a snapshot of the current configuration.
func (s *Service) GetSettings() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s.cfg
	return &cp
}

// PutSettings decodes a partial or full settings document (as posted —
// typically produced by unmarshalling a JSON/YAML body into a generic
// map) onto a copy of the current config, validates it, and — only if
// valid — makes it live.
func (s *Service) PutSettings(update map[string]interface{}) (*config.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.cfg
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		Result:           &next,
	})
	if err != nil {
		return nil, amperrors.Internal("SETTINGS_DECODER", err.Error())
	}
	if err := decoder.Decode(update); err != nil {
		return nil, amperrors.ValidationMsg("settings update could not be decoded: " + err.Error())
	}
	if err := next.Validate(); err != nil {
		return nil, amperrors.ValidationMsg(err.Error())
	}

	s.cfg = &next
	cp := next
	return &cp, nil
}

// SettingsYAML renders the current configuration as YAML, for callers
// that want the on-disk-compatible representation rather than JSON.
func (s *Service) SettingsYAML() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return yaml.Marshal(s.cfg)
}

// NuclearDeleteResult reports what a nuclear-delete call removed (or,
// in dry-run mode, would remove).
type NuclearDeleteResult struct {
	DryRun            bool `json:"dry_run"`
	ObjectCount       int  `json:"object_count"`
	RelationshipCount int  `json:"relationship_count"`
}

// NuclearDelete wipes every object and relationship, unless dryRun is
// set, in which case it only reports the counts a real call would
// remove. This is the engine's most destructive operation; callers
// must require an explicit confirmation token before invoking it with
// dryRun=false.
func (s *Service) NuclearDelete(ctx context.Context, dryRun bool) (*NuclearDeleteResult, error) {
	if dryRun {
		objCount, relCount, err := s.store.Counts(ctx)
		if err != nil {
			return nil, err
		}
		return &NuclearDeleteResult{DryRun: true, ObjectCount: objCount, RelationshipCount: relCount}, nil
	}

	objCount, relCount, err := s.store.NuclearDelete(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Warn("nuclear delete executed", "objects_deleted", objCount, "relationships_deleted", relCount)
	return &NuclearDeleteResult{DryRun: false, ObjectCount: objCount, RelationshipCount: relCount}, nil
}

// SweepLeasesResult reports how many expired leases a forced sweep
// found and removed.
type SweepLeasesResult struct {
	Swept int `json:"swept"`
}

// SweepLeases forces an expired-lease GC pass. The Redis backend
// doesn't need this (keys self-evict via TTL), but the memory and file
// backends only sweep lazily on Acquire for the same resource, so a
// caller with no write traffic on a resource can use this to reclaim
// it without attempting an acquire of its own.
func (s *Service) SweepLeases(ctx context.Context) (*SweepLeasesResult, error) {
	swept, err := s.leases.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	return &SweepLeasesResult{Swept: swept}, nil
}
