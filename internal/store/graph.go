package store

import (
	"context"
	"errors"
	"time"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// GraphStore is the pgx-backed implementation of domain.GraphStore. Every
// write is a merge-by-id upsert so a retried sweep re-applies cleanly.
type GraphStore struct {
	db *pgxpool.Pool
}

func NewGraphStore(db *pgxpool.Pool) *GraphStore {
	return &GraphStore{db: db}
}

const entityColumns = `id, name, type, category, tier, confidence, observation_count,
	       properties, sources, ontology_code, ontology_system, ontology_confidence,
	       embedding, ambiguous, first_observed_at, last_observed_at,
	       last_contradicted_at, created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *GraphStore) UpsertEntity(ctx context.Context, e *domain.Entity) error {
	return upsertEntity(ctx, s.db, e)
}

func upsertEntity(ctx context.Context, q querier, e *domain.Entity) error {
	var embedding *pgvector.Vector
	if len(e.Embedding) > 0 {
		v := pgvector.NewVector(e.Embedding)
		embedding = &v
	}

	var ontCode, ontSystem *string
	var ontConfidence *float64
	if e.OntologyMatch != nil {
		ontCode = &e.OntologyMatch.Code
		ontSystem = &e.OntologyMatch.System
		ontConfidence = &e.OntologyMatch.Confidence
	}

	err := q.QueryRow(ctx,
		`INSERT INTO entities (id, name, normalized_name, type, category, tier, confidence,
		        observation_count, properties, sources, ontology_code, ontology_system,
		        ontology_confidence, embedding, ambiguous, first_observed_at, last_observed_at,
		        last_contradicted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     normalized_name = EXCLUDED.normalized_name,
		     type = EXCLUDED.type,
		     category = EXCLUDED.category,
		     tier = EXCLUDED.tier,
		     confidence = EXCLUDED.confidence,
		     observation_count = EXCLUDED.observation_count,
		     properties = EXCLUDED.properties,
		     sources = EXCLUDED.sources,
		     ontology_code = EXCLUDED.ontology_code,
		     ontology_system = EXCLUDED.ontology_system,
		     ontology_confidence = EXCLUDED.ontology_confidence,
		     embedding = COALESCE(EXCLUDED.embedding, entities.embedding),
		     ambiguous = EXCLUDED.ambiguous,
		     first_observed_at = LEAST(entities.first_observed_at, EXCLUDED.first_observed_at),
		     last_observed_at = GREATEST(entities.last_observed_at, EXCLUDED.last_observed_at),
		     last_contradicted_at = EXCLUDED.last_contradicted_at,
		     updated_at = NOW()
		 RETURNING created_at, updated_at`,
		e.ID, e.Name, e.NormalizedName(), e.Type, e.Category, e.Tier, e.Confidence,
		e.ObservationCount, e.Properties, e.Sources, ontCode, ontSystem,
		ontConfidence, embedding, e.Ambiguous, e.FirstObservedAt, e.LastObservedAt,
		e.LastContradictedAt,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	return wrapConn(err)
}

func (s *GraphStore) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+entityColumns+`
		 FROM entities WHERE id = $1 AND absorbed_into IS NULL`,
		id,
	)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapConn(err)
	}
	return e, nil
}

func (s *GraphStore) QueryCandidates(ctx context.Context, tier domain.Tier, limit int) ([]domain.Entity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE tier = $1 AND absorbed_into IS NULL
		 ORDER BY first_observed_at, id
		 LIMIT $2`,
		tier, limit,
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

func (s *GraphStore) SetTier(ctx context.Context, id string, tier domain.Tier) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE entities SET tier = $2, updated_at = NOW()
		 WHERE id = $1 AND absorbed_into IS NULL`,
		id, tier,
	)
	if err != nil {
		return wrapConn(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AbsorbEntities upserts the canonical record and tombstones the absorbed
// rows with a pointer to it, all in one transaction. Re-running after a crash
// re-applies the same terminal state.
func (s *GraphStore) AbsorbEntities(ctx context.Context, canonical *domain.Entity, absorbedIDs []string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return wrapConn(err)
	}
	defer tx.Rollback(ctx)

	if err := upsertEntity(ctx, tx, canonical); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE entities SET absorbed_into = $1, updated_at = NOW()
		 WHERE id = ANY($2) AND id <> $1`,
		canonical.ID, absorbedIDs,
	); err != nil {
		return wrapConn(err)
	}

	// Re-point edges of absorbed rows at the canonical entity.
	if _, err := tx.Exec(ctx,
		`UPDATE relationships SET source_id = $1, updated_at = NOW()
		 WHERE source_id = ANY($2)`,
		canonical.ID, absorbedIDs,
	); err != nil {
		return wrapConn(err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE relationships SET target_id = $1, updated_at = NOW()
		 WHERE target_id = ANY($2)`,
		canonical.ID, absorbedIDs,
	); err != nil {
		return wrapConn(err)
	}

	return wrapConn(tx.Commit(ctx))
}

func (s *GraphStore) MarkContradicted(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE entities SET last_contradicted_at = $2, updated_at = NOW()
		 WHERE id = $1 AND absorbed_into IS NULL`,
		id, at,
	)
	if err != nil {
		return wrapConn(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GraphStore) UpsertRelationship(ctx context.Context, r *domain.Relationship) error {
	if r.ID == "" {
		r.ID = service.RelationshipID(r.SourceID, r.Type, r.TargetID)
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO relationships (id, source_id, target_id, type, tier, confidence, properties, inferred)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET tier = EXCLUDED.tier,
		     confidence = GREATEST(relationships.confidence, EXCLUDED.confidence),
		     properties = EXCLUDED.properties,
		     inferred = relationships.inferred AND EXCLUDED.inferred,
		     updated_at = NOW()
		 RETURNING created_at, updated_at`,
		r.ID, r.SourceID, r.TargetID, r.Type, r.Tier, r.Confidence, r.Properties, r.Inferred,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	return wrapConn(err)
}

func (s *GraphStore) RelationshipExists(ctx context.Context, sourceID, targetID, relType string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM relationships
		   WHERE source_id = $1 AND target_id = $2 AND type = $3
		 )`,
		sourceID, targetID, relType,
	).Scan(&exists)
	return exists, wrapConn(err)
}

func (s *GraphStore) RelationshipsFrom(ctx context.Context, sourceID, relType string) ([]domain.Relationship, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, source_id, target_id, type, tier, confidence, properties, inferred, created_at, updated_at
		 FROM relationships
		 WHERE source_id = $1 AND type = $2`,
		sourceID, relType,
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()
	return collectRelationships(rows)
}

func (s *GraphStore) RelationshipsTouching(ctx context.Context, entityID string, relType string) ([]domain.Relationship, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, source_id, target_id, type, tier, confidence, properties, inferred, created_at, updated_at
		 FROM relationships
		 WHERE (source_id = $1 OR target_id = $1) AND type = $2`,
		entityID, relType,
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()
	return collectRelationships(rows)
}

func (s *GraphStore) FindByNormalizedName(ctx context.Context, name string, minTier domain.Tier) ([]domain.Entity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE normalized_name = $1 AND tier = ANY($2) AND absorbed_into IS NULL`,
		domain.NormalizeName(name), tiersAtOrAbove(minTier),
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

func (s *GraphStore) FindByEmbedding(ctx context.Context, embedding []float32, minTier domain.Tier, threshold float64, limit int) ([]domain.EntityMatch, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+`,
		        1 - (embedding <=> $1::vector) AS similarity
		 FROM entities
		 WHERE tier = ANY($2)
		   AND absorbed_into IS NULL
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $1::vector) >= $3
		 ORDER BY similarity DESC
		 LIMIT $4`,
		vec, tiersAtOrAbove(minTier), threshold, limit,
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()

	var matches []domain.EntityMatch
	for rows.Next() {
		var m domain.EntityMatch
		if err := scanEntityInto(rows, &m.Entity, &m.Similarity); err != nil {
			return nil, wrapConn(err)
		}
		matches = append(matches, m)
	}
	return matches, wrapConn(rows.Err())
}

func (s *GraphStore) FindByNameLike(ctx context.Context, fragment string, minTier domain.Tier, limit int) ([]domain.Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE normalized_name LIKE '%' || $1 || '%'
		   AND tier = ANY($2) AND absorbed_into IS NULL
		 ORDER BY confidence DESC
		 LIMIT $3`,
		domain.NormalizeName(fragment), tiersAtOrAbove(minTier), limit,
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

func (s *GraphStore) FindAssertions(ctx context.Context, subject string, minTier domain.Tier) ([]domain.Entity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+entityColumns+`
		 FROM entities
		 WHERE category = $1
		   AND properties->'subject'->>'string' = $2
		   AND tier = ANY($3)
		   AND absorbed_into IS NULL`,
		service.AssertionCategory, subject, tiersAtOrAbove(minTier),
	)
	if err != nil {
		return nil, wrapConn(err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

func tiersAtOrAbove(min domain.Tier) []string {
	var out []string
	for _, t := range domain.AllTiers() {
		if t.Rank() >= min.Rank() {
			out = append(out, string(t))
		}
	}
	return out
}

func scanEntity(row pgx.Row) (*domain.Entity, error) {
	e := &domain.Entity{}
	if err := scanEntityInto(row, e); err != nil {
		return nil, err
	}
	return e, nil
}

// scanEntityInto scans the entityColumns set plus any trailing extras.
func scanEntityInto(row pgx.Row, e *domain.Entity, extras ...any) error {
	var embedding *pgvector.Vector
	var ontCode, ontSystem *string
	var ontConfidence *float64

	dest := []any{
		&e.ID, &e.Name, &e.Type, &e.Category, &e.Tier, &e.Confidence, &e.ObservationCount,
		&e.Properties, &e.Sources, &ontCode, &ontSystem, &ontConfidence,
		&embedding, &e.Ambiguous, &e.FirstObservedAt, &e.LastObservedAt,
		&e.LastContradictedAt, &e.CreatedAt, &e.UpdatedAt,
	}
	dest = append(dest, extras...)

	if err := row.Scan(dest...); err != nil {
		return err
	}

	if embedding != nil {
		e.Embedding = embedding.Slice()
	}
	if ontCode != nil {
		e.OntologyMatch = &domain.OntologyMatch{Code: *ontCode}
		if ontSystem != nil {
			e.OntologyMatch.System = *ontSystem
		}
		if ontConfidence != nil {
			e.OntologyMatch.Confidence = *ontConfidence
		}
	}
	return nil
}

func collectEntities(rows pgx.Rows) ([]domain.Entity, error) {
	var entities []domain.Entity
	for rows.Next() {
		var e domain.Entity
		if err := scanEntityInto(rows, &e); err != nil {
			return nil, wrapConn(err)
		}
		entities = append(entities, e)
	}
	return entities, wrapConn(rows.Err())
}

func collectRelationships(rows pgx.Rows) ([]domain.Relationship, error) {
	var rels []domain.Relationship
	for rows.Next() {
		var r domain.Relationship
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &r.Tier,
			&r.Confidence, &r.Properties, &r.Inferred, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, wrapConn(err)
		}
		rels = append(rels, r)
	}
	return rels, wrapConn(rows.Err())
}
