package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/objects"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS objects (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	project_id TEXT,
	tenant_id TEXT,
	path TEXT,
	envelope_json JSONB NOT NULL,
	variant_json JSONB NOT NULL,
	embedding_json JSONB
);
CREATE INDEX IF NOT EXISTS idx_objects_type ON objects(type);
CREATE INDEX IF NOT EXISTS idx_objects_project ON objects(project_id);
CREATE INDEX IF NOT EXISTS idx_objects_tenant ON objects(tenant_id);
CREATE INDEX IF NOT EXISTS idx_objects_path ON objects(path);

CREATE TABLE IF NOT EXISTS relationships (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	type TEXT NOT NULL,
	target_id TEXT NOT NULL,
	metadata_json JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(target_id);
`

// PostgresStore is an additive ObjectStore backend for multi-writer
// deployments, beyond the three database_url schemes the external
// interface enumerates (memory, file://, ws://) — a postgres:// URL
// routes here instead of being rejected, so a fleet of indexers and
// agents can share one durable store.
type PostgresStore struct {
	db          *sql.DB
	vectorIndex VectorIndex
	log         logging.Logger
}

// OpenPostgresStore connects to dsn, applies the schema, and warms the
// in-memory vector index from persisted embeddings (Postgres without
// pgvector has no native nearest-neighbor operator, so AMP keeps its
// own in-memory BruteForceIndex in front of it, as it does for SQLite).
func OpenPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("postgres: schema migration failed: %w", err)
	}

	s := &PostgresStore{db: db, vectorIndex: NewBruteForceIndex(0), log: logging.WithComponent("store.postgres")}
	if err := s.warmVectorIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) warmVectorIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding_json FROM objects WHERE embedding_json IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("postgres: failed to warm vector index: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, embJSON string
		if err := rows.Scan(&id, &embJSON); err != nil {
			return err
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			continue
		}
		if err := s.vectorIndex.Upsert(ctx, id, vec); err != nil {
			s.log.Warn("skipping embedding with mismatched dimension on warm load", "id", id)
		}
	}
	return rows.Err()
}

func (s *PostgresStore) upsertRow(ctx context.Context, env *objects.Envelope, variant interface{}) error {
	envJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("postgres: marshal envelope: %w", err)
	}
	varJSON, err := json.Marshal(variant)
	if err != nil {
		return fmt.Errorf("postgres: marshal variant: %w", err)
	}
	var embJSON interface{}
	if len(env.Embedding) > 0 {
		b, err := json.Marshal(env.Embedding)
		if err != nil {
			return fmt.Errorf("postgres: marshal embedding: %w", err)
		}
		embJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO objects (id, type, project_id, tenant_id, path, envelope_json, variant_json, embedding_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, project_id=excluded.project_id, tenant_id=excluded.tenant_id,
			path=excluded.path, envelope_json=excluded.envelope_json, variant_json=excluded.variant_json,
			embedding_json=excluded.embedding_json`,
		env.ID, string(env.Type), env.ProjectID, env.TenantID, pathOf(variant), string(envJSON), string(varJSON), embJSON,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert failed: %w", err)
	}

	if len(env.Embedding) > 0 {
		return s.vectorIndex.Upsert(ctx, env.ID, env.Embedding)
	}
	_ = s.vectorIndex.Delete(ctx, env.ID)
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, env *objects.Envelope, variant interface{}) error {
	if env.ID == "" {
		return amperrors.ValidationMsg("object id is required")
	}
	env.Touch()
	return s.upsertRow(ctx, env, variant)
}

func (s *PostgresStore) PutBatch(ctx context.Context, items []PutItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		err := s.Put(ctx, item.Envelope, item.Variant)
		results[i] = BatchResult{ID: item.Envelope.ID, Success: err == nil, Error: err}
	}
	return results, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT type, envelope_json, variant_json FROM objects WHERE id = $1`, id)
	var typ, envJSON, varJSON string
	if err := row.Scan(&typ, &envJSON, &varJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, amperrors.NotFound("object", id)
		}
		return nil, fmt.Errorf("postgres: get failed: %w", err)
	}
	return decodeRecord(objects.Type(typ), envJSON, varJSON)
}

func (s *PostgresStore) Update(ctx context.Context, id string, env *objects.Envelope, variant interface{}) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Envelope.Type != env.Type {
		return amperrors.ValidationMsg("update may not change an object's discriminant type")
	}
	env.ID = id
	env.CreatedAt = existing.Envelope.CreatedAt
	env.Touch()
	return s.upsertRow(ctx, env, variant)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return amperrors.NotFound("object", id)
	}
	_ = s.vectorIndex.Delete(ctx, id)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE source_id = $1 OR target_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: relationship cascade delete failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter, limit int) ([]*Record, error) {
	query := `SELECT type, envelope_json, variant_json FROM objects WHERE 1=1`
	var args []interface{}
	add := func(clause string, val interface{}) {
		args = append(args, val)
		query += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}
	if filter.Type != "" {
		add("type", string(filter.Type))
	}
	if filter.ProjectID != "" {
		add("project_id", filter.ProjectID)
	}
	if filter.TenantID != "" {
		add("tenant_id", filter.TenantID)
	}
	if filter.Path != "" {
		add("path", filter.Path)
	}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var typ, envJSON, varJSON string
		if err := rows.Scan(&typ, &envJSON, &varJSON); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(objects.Type(typ), envJSON, varJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutRelationship(ctx context.Context, rel *objects.Relationship) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE id = $1`, rel.SourceID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: relationship source lookup failed: %w", err)
	}
	if exists == 0 {
		return amperrors.Validation("source_id", "references a non-existent object", rel.SourceID)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE id = $1`, rel.TargetID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: relationship target lookup failed: %w", err)
	}
	if exists == 0 {
		return amperrors.Validation("target_id", "references a non-existent object", rel.TargetID)
	}

	metaJSON, err := json.Marshal(rel.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal relationship metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, source_id, type, target_id, metadata_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rel.ID, rel.SourceID, string(rel.Type), rel.TargetID, string(metaJSON), rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert relationship failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRelationships(ctx context.Context, sourceID string) ([]*objects.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_id, type, target_id, metadata_json, created_at FROM relationships WHERE source_id = $1`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list relationships failed: %w", err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func (s *PostgresStore) Neighbors(ctx context.Context, id string, dir objects.Direction, types []objects.RelationType) ([]*Record, error) {
	seen := map[string]struct{}{}
	var ids []string

	collect := func(query string) error {
		rows, err := s.db.QueryContext(ctx, query, id)
		if err != nil {
			return fmt.Errorf("postgres: neighbors query failed: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var relType, other string
			if err := rows.Scan(&relType, &other); err != nil {
				return err
			}
			if len(types) > 0 && !containsRelType(types, objects.RelationType(relType)) {
				continue
			}
			if _, dup := seen[other]; dup {
				continue
			}
			seen[other] = struct{}{}
			ids = append(ids, other)
		}
		return rows.Err()
	}

	if dir == objects.DirectionOutbound || dir == objects.DirectionBoth {
		if err := collect(`SELECT type, target_id FROM relationships WHERE source_id = $1`); err != nil {
			return nil, err
		}
	}
	if dir == objects.DirectionInbound || dir == objects.DirectionBoth {
		if err := collect(`SELECT type, source_id FROM relationships WHERE target_id = $1`); err != nil {
			return nil, err
		}
	}

	out := make([]*Record, 0, len(ids))
	for _, otherID := range ids {
		rec, err := s.Get(ctx, otherID)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *PostgresStore) VectorSearch(ctx context.Context, queryVector []float32, topK int) ([]ScoredID, error) {
	return s.vectorIndex.Search(ctx, queryVector, topK)
}

func (s *PostgresStore) Counts(ctx context.Context) (int, int, error) {
	var objCount, relCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects`).Scan(&objCount); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM relationships`).Scan(&relCount); err != nil {
		return 0, 0, err
	}
	return objCount, relCount, nil
}

func (s *PostgresStore) NuclearDelete(ctx context.Context) (int, int, error) {
	var objCount, relCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects`).Scan(&objCount); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM relationships`).Scan(&relCount); err != nil {
		return 0, 0, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM objects`); err != nil {
		return 0, 0, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM relationships`); err != nil {
		return 0, 0, err
	}
	s.log.Info("nuclear delete executed", "objects_deleted", objCount, "relationships_deleted", relCount)
	return objCount, relCount, nil
}

// Close releases the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
