package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/amp-proto/amp/internal/amperrors"
	"github.com/amp-proto/amp/internal/logging"
	"github.com/amp-proto/amp/internal/objects"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS objects (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	project_id TEXT,
	tenant_id TEXT,
	path TEXT,
	envelope_json TEXT NOT NULL,
	variant_json TEXT NOT NULL,
	embedding_json TEXT
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
	metadata_json TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source_id);
CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(target_id);
`

// SQLiteStore is the ObjectStore backend for database_url=file://<path>.
// It persists the envelope and decoded variant as JSON columns
// alongside the narrow secondary-index columns (type, project, tenant,
// path) the store's indexing contract requires, and rebuilds an
// in-memory vector index from the embedding_json column at open time —
// SQLite has no native vector search, so nearest-neighbor queries are
// served out of a BruteForceIndex kept warm in process memory.
type SQLiteStore struct {
	db          *sql.DB
	vectorIndex VectorIndex
	log         logging.Logger
}

// OpenSQLiteStore opens (creating if absent) the database at path and
// loads its embeddings into an in-memory vector index.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("sqlite: schema migration failed: %w", err)
	}

	s := &SQLiteStore{db: db, vectorIndex: NewBruteForceIndex(0), log: logging.WithComponent("store.sqlite")}
	if err := s.warmVectorIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) warmVectorIndex(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding_json FROM objects WHERE embedding_json IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to warm vector index: %w", err)
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

func (s *SQLiteStore) upsertRow(ctx context.Context, env *objects.Envelope, variant interface{}) error {
	envJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("sqlite: marshal envelope: %w", err)
	}
	varJSON, err := json.Marshal(variant)
	if err != nil {
		return fmt.Errorf("sqlite: marshal variant: %w", err)
	}
	var embJSON interface{}
	if len(env.Embedding) > 0 {
		b, err := json.Marshal(env.Embedding)
		if err != nil {
			return fmt.Errorf("sqlite: marshal embedding: %w", err)
		}
		embJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO objects (id, type, project_id, tenant_id, path, envelope_json, variant_json, embedding_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, project_id=excluded.project_id, tenant_id=excluded.tenant_id,
			path=excluded.path, envelope_json=excluded.envelope_json, variant_json=excluded.variant_json,
			embedding_json=excluded.embedding_json`,
		env.ID, string(env.Type), env.ProjectID, env.TenantID, pathOf(variant), string(envJSON), string(varJSON), embJSON,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert failed: %w", err)
	}

	if len(env.Embedding) > 0 {
		return s.vectorIndex.Upsert(ctx, env.ID, env.Embedding)
	}
	_ = s.vectorIndex.Delete(ctx, env.ID)
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, env *objects.Envelope, variant interface{}) error {
	if env.ID == "" {
		return amperrors.ValidationMsg("object id is required")
	}
	env.Touch()
	return s.upsertRow(ctx, env, variant)
}

func (s *SQLiteStore) PutBatch(ctx context.Context, items []PutItem) ([]BatchResult, error) {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		err := s.Put(ctx, item.Envelope, item.Variant)
		results[i] = BatchResult{ID: item.Envelope.ID, Success: err == nil, Error: err}
	}
	return results, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT type, envelope_json, variant_json FROM objects WHERE id = ?`, id)
	var typ, envJSON, varJSON string
	if err := row.Scan(&typ, &envJSON, &varJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, amperrors.NotFound("object", id)
		}
		return nil, fmt.Errorf("sqlite: get failed: %w", err)
	}
	return decodeRecord(objects.Type(typ), envJSON, varJSON)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, env *objects.Envelope, variant interface{}) error {
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

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return amperrors.NotFound("object", id)
	}
	_ = s.vectorIndex.Delete(ctx, id)

	if _, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("sqlite: relationship cascade delete failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter, limit int) ([]*Record, error) {
	query := `SELECT type, envelope_json, variant_json FROM objects WHERE 1=1`
	var args []interface{}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Path != "" {
		query += ` AND path = ?`
		args = append(args, filter.Path)
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list failed: %w", err)
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

func (s *SQLiteStore) PutRelationship(ctx context.Context, rel *objects.Relationship) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE id = ?`, rel.SourceID).Scan(&exists); err != nil {
		return fmt.Errorf("sqlite: relationship source lookup failed: %w", err)
	}
	if exists == 0 {
		return amperrors.Validation("source_id", "references a non-existent object", rel.SourceID)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects WHERE id = ?`, rel.TargetID).Scan(&exists); err != nil {
		return fmt.Errorf("sqlite: relationship target lookup failed: %w", err)
	}
	if exists == 0 {
		return amperrors.Validation("target_id", "references a non-existent object", rel.TargetID)
	}

	metaJSON, err := json.Marshal(rel.Metadata)
	if err != nil {
		return fmt.Errorf("sqlite: marshal relationship metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, source_id, type, target_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rel.ID, rel.SourceID, string(rel.Type), rel.TargetID, string(metaJSON), rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: insert relationship failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListRelationships(ctx context.Context, sourceID string) ([]*objects.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, source_id, type, target_id, metadata_json, created_at FROM relationships WHERE source_id = ?`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list relationships failed: %w", err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func (s *SQLiteStore) Neighbors(ctx context.Context, id string, dir objects.Direction, types []objects.RelationType) ([]*Record, error) {
	return neighborsViaSQL(ctx, s.db, s.Get, id, dir, types)
}

func (s *SQLiteStore) VectorSearch(ctx context.Context, queryVector []float32, topK int) ([]ScoredID, error) {
	return s.vectorIndex.Search(ctx, queryVector, topK)
}

func (s *SQLiteStore) Counts(ctx context.Context) (int, int, error) {
	var objCount, relCount int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM objects`).Scan(&objCount); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM relationships`).Scan(&relCount); err != nil {
		return 0, 0, err
	}
	return objCount, relCount, nil
}

func (s *SQLiteStore) NuclearDelete(ctx context.Context) (int, int, error) {
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// decodeRecord reconstructs a typed variant struct from its stored
// JSON, dispatching on the discriminant tag.
func decodeRecord(typ objects.Type, envJSON, varJSON string) (*Record, error) {
	var env objects.Envelope
	if err := json.Unmarshal([]byte(envJSON), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	variant, err := newVariant(typ)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(varJSON), variant); err != nil {
		return nil, fmt.Errorf("decode variant: %w", err)
	}
	return &Record{Envelope: &env, Variant: variant}, nil
}

// NewVariant returns a freshly zeroed pointer to the Go type backing
// typ, for callers (chiefly the HTTP layer) that need to decode a
// request body into the right struct before it has an Envelope.
func NewVariant(typ objects.Type) (interface{}, error) {
	return newVariant(typ)
}

func newVariant(typ objects.Type) (interface{}, error) {
	switch typ {
	case objects.TypeSymbol:
		return &objects.Symbol{}, nil
	case objects.TypeFileChunk:
		return &objects.FileChunk{}, nil
	case objects.TypeFileLog:
		return &objects.FileLog{}, nil
	case objects.TypeDecision:
		return &objects.Decision{}, nil
	case objects.TypeChangeSet:
		return &objects.ChangeSet{}, nil
	case objects.TypeNote:
		return &objects.Note{}, nil
	case objects.TypeRun:
		return &objects.Run{}, nil
	case objects.TypeCacheBlock:
		return &objects.CacheBlock{}, nil
	default:
		return nil, amperrors.Internal("UNKNOWN_TYPE", fmt.Sprintf("unknown object type %q", typ))
	}
}

func scanRelationships(rows *sql.Rows) ([]*objects.Relationship, error) {
	var out []*objects.Relationship
	for rows.Next() {
		var rel objects.Relationship
		var metaJSON sql.NullString
		var typ string
		if err := rows.Scan(&rel.ID, &rel.SourceID, &typ, &rel.TargetID, &metaJSON, &rel.CreatedAt); err != nil {
			return nil, err
		}
		rel.Type = objects.RelationType(typ)
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &rel.Metadata)
		}
		out = append(out, &rel)
	}
	return out, rows.Err()
}

// neighborsViaSQL walks the relationships table using `?` placeholder
// syntax; the Postgres backend has its own copy using `$1` syntax since
// database/sql does not abstract placeholder style across drivers.
func neighborsViaSQL(ctx context.Context, db *sql.DB, get func(context.Context, string) (*Record, error), id string, dir objects.Direction, types []objects.RelationType) ([]*Record, error) {
	seen := map[string]struct{}{}
	var ids []string

	collect := func(query string) error {
		rows, err := db.QueryContext(ctx, query, id)
		if err != nil {
			return fmt.Errorf("sqlite: neighbors query failed: %w", err)
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
		if err := collect(`SELECT type, target_id FROM relationships WHERE source_id = ?`); err != nil {
			return nil, err
		}
	}
	if dir == objects.DirectionInbound || dir == objects.DirectionBoth {
		if err := collect(`SELECT type, source_id FROM relationships WHERE target_id = ?`); err != nil {
			return nil, err
		}
	}

	out := make([]*Record, 0, len(ids))
	for _, otherID := range ids {
		rec, err := get(ctx, otherID)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func containsRelType(types []objects.RelationType, t objects.RelationType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
