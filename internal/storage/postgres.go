// Package storage holds the durable layer: Postgres for records and
// embeddings, MinIO for media bytes. The in-memory library index stays
// authoritative at runtime; Postgres exists so a restart can rebuild it.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/medialib/internal/config"
	"github.com/your-org/medialib/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Assets ---

// SaveAsset upserts the full asset record. Derived state is stored as JSON
// documents; the searchable structure lives in the in-memory index, not in
// SQL.
func (s *PostgresStore) SaveAsset(ctx context.Context, a *models.MediaAsset) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	analysis, err := json.Marshal(a.Analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	versions, err := json.Marshal(a.Versions)
	if err != nil {
		return fmt.Errorf("marshal versions: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO media_assets (id, filename, kind, size_bytes, captured_at, uploaded_at, metadata, status, error_reason, tags, analysis, versions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		   filename = EXCLUDED.filename,
		   size_bytes = EXCLUDED.size_bytes,
		   captured_at = EXCLUDED.captured_at,
		   metadata = EXCLUDED.metadata,
		   status = EXCLUDED.status,
		   error_reason = EXCLUDED.error_reason,
		   tags = EXCLUDED.tags,
		   analysis = EXCLUDED.analysis,
		   versions = EXCLUDED.versions,
		   updated_at = EXCLUDED.updated_at`,
		a.ID, a.Filename, a.Kind, a.SizeBytes, a.CapturedAt, a.UploadedAt,
		metadata, a.Status, a.ErrorReason, tags, analysis, versions,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAsset(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM face_detections WHERE asset_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete asset faces: %w", err)
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM media_assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	return nil
}

// GetAsset loads one asset with its faces, or nil when absent.
func (s *PostgresStore) GetAsset(ctx context.Context, id uuid.UUID) (*models.MediaAsset, error) {
	a := &models.MediaAsset{}
	var metadata, tags, analysis, versions []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, kind, size_bytes, captured_at, uploaded_at, metadata, status, error_reason, tags, analysis, versions, created_at, updated_at
		 FROM media_assets WHERE id = $1`, id,
	).Scan(&a.ID, &a.Filename, &a.Kind, &a.SizeBytes, &a.CapturedAt, &a.UploadedAt,
		&metadata, &a.Status, &a.ErrorReason, &tags, &analysis, &versions,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	if err := unmarshalAssetDocs(a, metadata, tags, analysis, versions); err != nil {
		return nil, err
	}

	faces, err := s.listFacesForAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Faces = faces
	return a, nil
}

// ListAssets loads every asset with its faces, for rebuilding the index on
// startup.
func (s *PostgresStore) ListAssets(ctx context.Context) ([]*models.MediaAsset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, kind, size_bytes, captured_at, uploaded_at, metadata, status, error_reason, tags, analysis, versions, created_at, updated_at
		 FROM media_assets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.MediaAsset
	byID := make(map[uuid.UUID]*models.MediaAsset)
	for rows.Next() {
		a := &models.MediaAsset{}
		var metadata, tags, analysis, versions []byte
		if err := rows.Scan(&a.ID, &a.Filename, &a.Kind, &a.SizeBytes, &a.CapturedAt, &a.UploadedAt,
			&metadata, &a.Status, &a.ErrorReason, &tags, &analysis, &versions,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		if err := unmarshalAssetDocs(a, metadata, tags, analysis, versions); err != nil {
			return nil, err
		}
		assets = append(assets, a)
		byID[a.ID] = a
	}

	faces, err := s.listFaces(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range faces {
		if a, ok := byID[f.AssetID]; ok {
			a.Faces = append(a.Faces, f)
		}
	}
	return assets, nil
}

func unmarshalAssetDocs(a *models.MediaAsset, metadata, tags, analysis, versions []byte) error {
	if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
		return fmt.Errorf("unmarshal metadata: %w", err)
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &a.Tags); err != nil {
			return fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(analysis) > 0 && string(analysis) != "null" {
		if err := json.Unmarshal(analysis, &a.Analysis); err != nil {
			return fmt.Errorf("unmarshal analysis: %w", err)
		}
	}
	if len(versions) > 0 {
		if err := json.Unmarshal(versions, &a.Versions); err != nil {
			return fmt.Errorf("unmarshal versions: %w", err)
		}
	}
	return nil
}

// --- Face detections ---

func (s *PostgresStore) SaveFaces(ctx context.Context, faces []models.FaceDetection) error {
	for _, f := range faces {
		landmarks, err := json.Marshal(f.Landmarks)
		if err != nil {
			return fmt.Errorf("marshal landmarks: %w", err)
		}
		emotions, err := json.Marshal(f.Emotions)
		if err != nil {
			return fmt.Errorf("marshal emotions: %w", err)
		}
		box, err := json.Marshal(f.Box)
		if err != nil {
			return fmt.Errorf("marshal box: %w", err)
		}
		vec := pgvector.NewVector(f.Embedding)
		_, err = s.pool.Exec(ctx,
			`INSERT INTO face_detections (id, asset_id, box, confidence, landmarks, emotions, age, gender, gender_confidence, embedding, person_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (id) DO UPDATE SET person_id = EXCLUDED.person_id`,
			f.ID, f.AssetID, box, f.Confidence, landmarks, emotions,
			f.Age, f.Gender, f.GenderConfidence, vec, f.PersonID, f.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("save face %s: %w", f.ID, err)
		}
	}
	return nil
}

func (s *PostgresStore) UpdateFacePerson(ctx context.Context, faceID, personID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE face_detections SET person_id = $2 WHERE id = $1`, faceID, personID)
	if err != nil {
		return fmt.Errorf("update face person: %w", err)
	}
	return nil
}

func (s *PostgresStore) listFaces(ctx context.Context) ([]models.FaceDetection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asset_id, box, confidence, landmarks, emotions, age, gender, gender_confidence, person_id, created_at
		 FROM face_detections ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

func (s *PostgresStore) listFacesForAsset(ctx context.Context, assetID uuid.UUID) ([]models.FaceDetection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, asset_id, box, confidence, landmarks, emotions, age, gender, gender_confidence, person_id, created_at
		 FROM face_detections WHERE asset_id = $1 ORDER BY created_at`, assetID)
	if err != nil {
		return nil, fmt.Errorf("list asset faces: %w", err)
	}
	defer rows.Close()
	return scanFaces(rows)
}

func scanFaces(rows pgx.Rows) ([]models.FaceDetection, error) {
	var faces []models.FaceDetection
	for rows.Next() {
		var f models.FaceDetection
		var box, landmarks, emotions []byte
		if err := rows.Scan(&f.ID, &f.AssetID, &box, &f.Confidence, &landmarks, &emotions,
			&f.Age, &f.Gender, &f.GenderConfidence, &f.PersonID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		if err := json.Unmarshal(box, &f.Box); err != nil {
			return nil, fmt.Errorf("unmarshal box: %w", err)
		}
		if len(landmarks) > 0 {
			if err := json.Unmarshal(landmarks, &f.Landmarks); err != nil {
				return nil, fmt.Errorf("unmarshal landmarks: %w", err)
			}
		}
		if len(emotions) > 0 {
			if err := json.Unmarshal(emotions, &f.Emotions); err != nil {
				return nil, fmt.Errorf("unmarshal emotions: %w", err)
			}
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// --- Persons ---

func (s *PostgresStore) UpsertPerson(ctx context.Context, p *models.Person) error {
	aliases, err := json.Marshal(p.Aliases)
	if err != nil {
		return fmt.Errorf("marshal aliases: %w", err)
	}
	faceIDs, err := json.Marshal(p.FaceIDs)
	if err != nil {
		return fmt.Errorf("marshal face ids: %w", err)
	}
	relationships, err := json.Marshal(p.Relationships)
	if err != nil {
		return fmt.Errorf("marshal relationships: %w", err)
	}

	var centroid interface{}
	if len(p.Centroid) > 0 {
		centroid = pgvector.NewVector(p.Centroid)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO persons (id, name, aliases, face_ids, first_seen, last_seen, verified, retired, merged_into, relationships, centroid, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   aliases = EXCLUDED.aliases,
		   face_ids = EXCLUDED.face_ids,
		   last_seen = EXCLUDED.last_seen,
		   verified = EXCLUDED.verified,
		   retired = EXCLUDED.retired,
		   merged_into = EXCLUDED.merged_into,
		   relationships = EXCLUDED.relationships,
		   centroid = EXCLUDED.centroid,
		   updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, aliases, faceIDs, p.FirstSeen, p.LastSeen,
		p.Verified, p.Retired, p.MergedInto, relationships, centroid,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert person: %w", err)
	}
	return nil
}

// ListPersons loads every person, retired ones included, for warm-starting
// the identity registry.
func (s *PostgresStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, aliases, face_ids, first_seen, last_seen, verified, retired, merged_into, relationships, centroid, created_at, updated_at
		 FROM persons ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		var aliases, faceIDs, relationships []byte
		var centroid *pgvector.Vector
		if err := rows.Scan(&p.ID, &p.Name, &aliases, &faceIDs, &p.FirstSeen, &p.LastSeen,
			&p.Verified, &p.Retired, &p.MergedInto, &relationships, &centroid,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		if len(aliases) > 0 {
			if err := json.Unmarshal(aliases, &p.Aliases); err != nil {
				return nil, fmt.Errorf("unmarshal aliases: %w", err)
			}
		}
		if len(faceIDs) > 0 {
			if err := json.Unmarshal(faceIDs, &p.FaceIDs); err != nil {
				return nil, fmt.Errorf("unmarshal face ids: %w", err)
			}
		}
		if len(relationships) > 0 && string(relationships) != "null" {
			if err := json.Unmarshal(relationships, &p.Relationships); err != nil {
				return nil, fmt.Errorf("unmarshal relationships: %w", err)
			}
		}
		if centroid != nil {
			p.Centroid = centroid.Slice()
		}
		persons = append(persons, p)
	}
	return persons, nil
}

// GetPerson loads one person row, or nil when none exists.
func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	var aliases, faceIDs, relationships []byte
	var centroid *pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, aliases, face_ids, first_seen, last_seen, verified, retired, merged_into, relationships, centroid, created_at, updated_at
		 FROM persons WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &aliases, &faceIDs, &p.FirstSeen, &p.LastSeen,
		&p.Verified, &p.Retired, &p.MergedInto, &relationships, &centroid,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	if len(aliases) > 0 {
		if err := json.Unmarshal(aliases, &p.Aliases); err != nil {
			return nil, fmt.Errorf("unmarshal aliases: %w", err)
		}
	}
	if len(faceIDs) > 0 {
		if err := json.Unmarshal(faceIDs, &p.FaceIDs); err != nil {
			return nil, fmt.Errorf("unmarshal face ids: %w", err)
		}
	}
	if len(relationships) > 0 && string(relationships) != "null" {
		if err := json.Unmarshal(relationships, &p.Relationships); err != nil {
			return nil, fmt.Errorf("unmarshal relationships: %w", err)
		}
	}
	if centroid != nil {
		p.Centroid = centroid.Slice()
	}
	return p, nil
}

// identityLockKey is the advisory-lock key shared by every process that
// writes person rows. One key serializes all identity mutations.
const identityLockKey = 0x6d6c_1d01

// WithIdentityLock runs fn while holding the session advisory lock that
// guards person writes across processes. The lock rides a dedicated pooled
// connection; the unlock uses a non-cancelable context so a canceled fn
// cannot leak the lock for the connection's lifetime.
func (s *PostgresStore) WithIdentityLock(ctx context.Context, fn func(context.Context) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, identityLockKey); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, identityLockKey)
	}()

	return fn(ctx)
}

// NearestPerson returns the person owning the face embedding closest to the
// query, when its cosine similarity clears the threshold. Backs the
// resolver's cold-start fallback: a fresh registry can recover assignments
// from rows it has not warm-started yet.
func (s *PostgresStore) NearestPerson(ctx context.Context, embedding []float32, threshold float64) (uuid.UUID, float64, bool, error) {
	matches, err := s.SimilarFaces(ctx, embedding, threshold, 1)
	if err != nil {
		return uuid.Nil, 0, false, err
	}
	if len(matches) == 0 {
		return uuid.Nil, 0, false, nil
	}
	return matches[0].PersonID, float64(matches[0].Score), true, nil
}

// --- Collections ---

func (s *PostgresStore) SaveCollection(ctx context.Context, c *models.Collection) error {
	assetIDs, err := json.Marshal(c.AssetIDs)
	if err != nil {
		return fmt.Errorf("marshal asset ids: %w", err)
	}
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO collections (id, name, type, dimension, group_key, confidence, asset_ids, settings, generated_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   asset_ids = EXCLUDED.asset_ids,
		   settings = EXCLUDED.settings,
		   generated_at = EXCLUDED.generated_at,
		   updated_at = EXCLUDED.updated_at`,
		c.ID, c.Name, c.Type, c.Dimension, c.GroupKey, c.Confidence,
		assetIDs, settings, c.GeneratedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	return nil
}

// ReplaceAutoCollections swaps the entire persisted auto set in one
// transaction, matching the wholesale regeneration semantics of the
// registry.
func (s *PostgresStore) ReplaceAutoCollections(ctx context.Context, generated []*models.Collection) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM collections WHERE type = 'auto'`); err != nil {
		return fmt.Errorf("clear auto collections: %w", err)
	}
	for _, c := range generated {
		assetIDs, err := json.Marshal(c.AssetIDs)
		if err != nil {
			return fmt.Errorf("marshal asset ids: %w", err)
		}
		settings, err := json.Marshal(c.Settings)
		if err != nil {
			return fmt.Errorf("marshal settings: %w", err)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO collections (id, name, type, dimension, group_key, confidence, asset_ids, settings, generated_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, c.Name, c.Type, c.Dimension, c.GroupKey, c.Confidence,
			assetIDs, settings, c.GeneratedAt, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert collection: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteCollection(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListCollections loads every persisted collection for warm-starting the
// registry.
func (s *PostgresStore) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, type, dimension, group_key, confidence, asset_ids, settings, generated_at, created_at, updated_at
		 FROM collections ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []*models.Collection
	for rows.Next() {
		c := &models.Collection{}
		var assetIDs, settings []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Dimension, &c.GroupKey, &c.Confidence,
			&assetIDs, &settings, &c.GeneratedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		if len(assetIDs) > 0 {
			if err := json.Unmarshal(assetIDs, &c.AssetIDs); err != nil {
				return nil, fmt.Errorf("unmarshal asset ids: %w", err)
			}
		}
		if len(settings) > 0 {
			if err := json.Unmarshal(settings, &c.Settings); err != nil {
				return nil, fmt.Errorf("unmarshal settings: %w", err)
			}
		}
		collections = append(collections, c)
	}
	return collections, nil
}

// SimilarFaces finds the closest persons to an embedding using the pgvector
// cosine operator, skipping retired persons. NearestPerson narrows this to
// the single best match for the resolver's cold-start fallback.
func (s *PostgresStore) SimilarFaces(ctx context.Context, embedding []float32, threshold float64, limit int) ([]FaceMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT fd.person_id, p.name, 1 - (fd.embedding <=> $1) AS score
		 FROM face_detections fd
		 JOIN persons p ON p.id = fd.person_id
		 WHERE fd.person_id IS NOT NULL
		   AND NOT p.retired
		   AND 1 - (fd.embedding <=> $1) >= $2
		 ORDER BY fd.embedding <=> $1
		 LIMIT $3`,
		vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similar faces: %w", err)
	}
	defer rows.Close()

	var matches []FaceMatch
	for rows.Next() {
		var m FaceMatch
		if err := rows.Scan(&m.PersonID, &m.Name, &m.Score); err != nil {
			return nil, fmt.Errorf("scan face match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

type FaceMatch struct {
	PersonID uuid.UUID `json:"person_id"`
	Name     string    `json:"name"`
	Score    float32   `json:"score"`
}
