// Package postgres implements [coreauthz.Store] on top of a relational
// schema: tuples, relation_configs and condition_definitions tables served
// through a pgx connection pool, with schema management handled by
// golang-migrate against SQL files embedded in the binary.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	pgxuuid "github.com/jackc/pgx-gofrs-uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"

	"github.com/gofrs/uuid/v5"

	"github.com/coreauthz/coreauthz"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations brings the schema at databaseURL up to date, embedding the
// SQL files shipped alongside this package.
func RunMigrations(databaseURL string) error {
	driver, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", driver, databaseURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Option configures a Storage at construction time.
type Option interface {
	apply(*config)
}

type config struct {
	maxConns int32
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

// WithMaxConns caps the pool's connection count.
func WithMaxConns(n int32) Option {
	return optionFunc(func(c *config) { c.maxConns = n })
}

// Storage is a pgx-backed [coreauthz.Store].
type Storage struct {
	pool *pgxpool.Pool
}

// New opens a connection pool against databaseURL and registers the gofrs
// uuid codec used for the tuples table's surrogate key.
func New(ctx context.Context, databaseURL string, opts ...Option) (*Storage, error) {
	cfg := config{}
	lo.ForEach(opts, func(o Option, _ int) { o.apply(&cfg) })

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.maxConns > 0 {
		poolConfig.MaxConns = cfg.maxConns
	}
	poolConfig.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxuuid.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func toTuple(objectType, objectID, relation, subjectType, subjectID, subjectRelation, conditionName string, conditionContext []byte) (coreauthz.Tuple, error) {
	t := coreauthz.Tuple{
		ObjectType:      objectType,
		ObjectID:        objectID,
		Relation:        relation,
		SubjectType:     subjectType,
		SubjectID:       subjectID,
		SubjectRelation: subjectRelation,
		ConditionName:   conditionName,
	}
	if len(conditionContext) > 0 {
		if err := json.Unmarshal(conditionContext, &t.ConditionContext); err != nil {
			return coreauthz.Tuple{}, err
		}
	}
	return t, nil
}

func (s *Storage) FindDirectTuple(ctx context.Context, objectType, objectID, relation, subjectType, subjectID, subjectRelation string) (coreauthz.Tuple, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT condition_name, condition_context FROM tuples
		WHERE object_type=$1 AND object_id=$2 AND relation=$3
		  AND subject_type=$4 AND subject_id=$5 AND subject_relation=$6`,
		objectType, objectID, relation, subjectType, subjectID, subjectRelation)

	var conditionName string
	var conditionContext []byte
	if err := row.Scan(&conditionName, &conditionContext); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coreauthz.Tuple{}, false, nil
		}
		return coreauthz.Tuple{}, false, err
	}
	t, err := toTuple(objectType, objectID, relation, subjectType, subjectID, subjectRelation, conditionName, conditionContext)
	return t, true, err
}

func (s *Storage) queryTuples(ctx context.Context, query string, args ...any) ([]coreauthz.Tuple, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coreauthz.Tuple
	for rows.Next() {
		var objectType, objectID, relation, subjectType, subjectID, subjectRelation, conditionName string
		var conditionContext []byte
		if err := rows.Scan(&objectType, &objectID, &relation, &subjectType, &subjectID, &subjectRelation, &conditionName, &conditionContext); err != nil {
			return nil, err
		}
		t, err := toTuple(objectType, objectID, relation, subjectType, subjectID, subjectRelation, conditionName, conditionContext)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Storage) FindUsersetTuples(ctx context.Context, objectType, objectID, relation string) ([]coreauthz.Tuple, error) {
	return s.queryTuples(ctx, `
		SELECT object_type, object_id, relation, subject_type, subject_id, subject_relation, condition_name, condition_context
		FROM tuples
		WHERE object_type=$1 AND object_id=$2 AND relation=$3 AND subject_relation<>''
		ORDER BY subject_type, subject_id, subject_relation`,
		objectType, objectID, relation)
}

func (s *Storage) FindTuplesByRelation(ctx context.Context, objectType, objectID, relation string) ([]coreauthz.Tuple, error) {
	return s.queryTuples(ctx, `
		SELECT object_type, object_id, relation, subject_type, subject_id, subject_relation, condition_name, condition_context
		FROM tuples
		WHERE object_type=$1 AND object_id=$2 AND relation=$3
		ORDER BY subject_type, subject_id, subject_relation`,
		objectType, objectID, relation)
}

func (s *Storage) ListDirectSubjects(ctx context.Context, objectType, objectID, relation string) ([]coreauthz.Tuple, error) {
	return s.FindTuplesByRelation(ctx, objectType, objectID, relation)
}

func (s *Storage) InsertTuple(ctx context.Context, t coreauthz.Tuple) error {
	var conditionContext []byte
	if t.ConditionContext != nil {
		var err error
		conditionContext, err = json.Marshal(t.ConditionContext)
		if err != nil {
			return err
		}
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tuples (id, object_type, object_id, relation, subject_type, subject_id, subject_relation, condition_name, condition_context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (object_type, object_id, relation, subject_type, subject_id, subject_relation)
		DO UPDATE SET condition_name = EXCLUDED.condition_name, condition_context = EXCLUDED.condition_context`,
		id, t.ObjectType, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID, t.SubjectRelation, t.ConditionName, conditionContext)
	return err
}

func (s *Storage) DeleteTuple(ctx context.Context, t coreauthz.Tuple) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM tuples
		WHERE object_type=$1 AND object_id=$2 AND relation=$3
		  AND subject_type=$4 AND subject_id=$5 AND subject_relation=$6`,
		t.ObjectType, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID, t.SubjectRelation)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Storage) ListCandidateObjectIDs(ctx context.Context, objectType string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT object_id FROM tuples WHERE object_type=$1 ORDER BY object_id`, objectType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Storage) FindRelationConfig(ctx context.Context, objectType, relation string) (coreauthz.RelationConfig, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT directly_assignable_types, allows_userset_subjects, implied_by, computed_userset, tuple_to_userset, intersection, excluded_by
		FROM relation_configs WHERE object_type=$1 AND relation=$2`,
		objectType, relation)

	var cfg coreauthz.RelationConfig
	var ttuJSON, intersectionJSON []byte
	err := row.Scan(&cfg.DirectlyAssignableTypes, &cfg.AllowsUsersetSubjects, &cfg.ImpliedBy, &cfg.ComputedUserset, &ttuJSON, &intersectionJSON, &cfg.ExcludedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coreauthz.RelationConfig{}, false, nil
		}
		return coreauthz.RelationConfig{}, false, err
	}
	if err := json.Unmarshal(ttuJSON, &cfg.TupleToUserset); err != nil {
		return coreauthz.RelationConfig{}, false, err
	}
	if err := json.Unmarshal(intersectionJSON, &cfg.Intersection); err != nil {
		return coreauthz.RelationConfig{}, false, err
	}
	return cfg, true, nil
}

func (s *Storage) UpsertRelationConfig(ctx context.Context, objectType, relation string, cfg coreauthz.RelationConfig) error {
	ttuJSON, err := json.Marshal(cfg.TupleToUserset)
	if err != nil {
		return err
	}
	intersectionJSON, err := json.Marshal(cfg.Intersection)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO relation_configs (object_type, relation, directly_assignable_types, allows_userset_subjects, implied_by, computed_userset, tuple_to_userset, intersection, excluded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (object_type, relation) DO UPDATE SET
			directly_assignable_types = EXCLUDED.directly_assignable_types,
			allows_userset_subjects = EXCLUDED.allows_userset_subjects,
			implied_by = EXCLUDED.implied_by,
			computed_userset = EXCLUDED.computed_userset,
			tuple_to_userset = EXCLUDED.tuple_to_userset,
			intersection = EXCLUDED.intersection,
			excluded_by = EXCLUDED.excluded_by`,
		objectType, relation, cfg.DirectlyAssignableTypes, cfg.AllowsUsersetSubjects, cfg.ImpliedBy, cfg.ComputedUserset, ttuJSON, intersectionJSON, cfg.ExcludedBy)
	return err
}

func (s *Storage) DeleteRelationConfig(ctx context.Context, objectType, relation string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM relation_configs WHERE object_type=$1 AND relation=$2`, objectType, relation)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Storage) FindConditionDefinition(ctx context.Context, name string) (coreauthz.ConditionDefinition, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT parameters, expression FROM condition_definitions WHERE name=$1`, name)
	var paramsJSON []byte
	def := coreauthz.ConditionDefinition{Name: name}
	if err := row.Scan(&paramsJSON, &def.Expression); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return coreauthz.ConditionDefinition{}, false, nil
		}
		return coreauthz.ConditionDefinition{}, false, err
	}
	if err := json.Unmarshal(paramsJSON, &def.Parameters); err != nil {
		return coreauthz.ConditionDefinition{}, false, err
	}
	return def, true, nil
}

func (s *Storage) UpsertConditionDefinition(ctx context.Context, def coreauthz.ConditionDefinition) error {
	paramsJSON, err := json.Marshal(def.Parameters)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO condition_definitions (name, parameters, expression)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET parameters = EXCLUDED.parameters, expression = EXCLUDED.expression`,
		def.Name, paramsJSON, def.Expression)
	return err
}

func (s *Storage) DeleteConditionDefinition(ctx context.Context, name string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM condition_definitions WHERE name=$1`, name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

var _ coreauthz.Store = (*Storage)(nil)
