package coreauthz

import "context"

// Store is the narrow set of indexed lookups the evaluator issues, plus
// the writes and schema operations the [Client] façade needs. It is the
// only I/O boundary this package crosses; every method here is a
// suspension point and must honor ctx cancellation.
//
// Implementations must provide stable iteration for the duration of a
// single call and read-your-writes within the process that issued a
// write. No cross-call transactional isolation is assumed.
type Store interface {
	// FindDirectTuple is the point lookup behind steps 1-2 of Check: an
	// exact match on the tuple identity key. subjectRelation is "" for a
	// plain subject match and non-empty to match a stored userset-subject
	// tuple exactly (used when the request subject is itself a userset).
	// Wildcard lookups pass subjectID = WildcardSubjectID.
	FindDirectTuple(ctx context.Context, objectType, objectID, relation, subjectType, subjectID, subjectRelation string) (Tuple, bool, error)

	// FindUsersetTuples returns every tuple on (objectType, objectID,
	// relation) whose subject carries a SubjectRelation, for step 3's
	// userset-subject expansion.
	FindUsersetTuples(ctx context.Context, objectType, objectID, relation string) ([]Tuple, error)

	// FindTuplesByRelation returns every tuple on (objectType, objectID,
	// relation) regardless of subject shape, for tuple-to-userset
	// enumeration.
	FindTuplesByRelation(ctx context.Context, objectType, objectID, relation string) ([]Tuple, error)

	// InsertTuple writes t, overwriting any existing tuple with the same
	// identity key (last-write-wins on condition metadata).
	InsertTuple(ctx context.Context, t Tuple) error

	// DeleteTuple removes the tuple matching t's identity key and reports
	// whether one existed.
	DeleteTuple(ctx context.Context, t Tuple) (bool, error)

	// ListCandidateObjectIDs enumerates every known object id of
	// objectType, for list_objects.
	ListCandidateObjectIDs(ctx context.Context, objectType string) ([]string, error)

	// ListDirectSubjects returns the direct subjects (including userset
	// descriptors) stored on (objectType, objectID, relation), unexpanded.
	ListDirectSubjects(ctx context.Context, objectType, objectID, relation string) ([]Tuple, error)

	// FindRelationConfig looks up the schema for (objectType, relation).
	FindRelationConfig(ctx context.Context, objectType, relation string) (RelationConfig, bool, error)

	// FindConditionDefinition looks up a condition by name.
	FindConditionDefinition(ctx context.Context, name string) (ConditionDefinition, bool, error)

	// UpsertRelationConfig writes or replaces a relation's schema.
	UpsertRelationConfig(ctx context.Context, objectType, relation string, cfg RelationConfig) error

	// DeleteRelationConfig removes a relation's schema and reports whether
	// one existed.
	DeleteRelationConfig(ctx context.Context, objectType, relation string) (bool, error)

	// UpsertConditionDefinition writes or replaces a condition definition.
	UpsertConditionDefinition(ctx context.Context, def ConditionDefinition) error

	// DeleteConditionDefinition removes a condition definition and reports
	// whether one existed.
	DeleteConditionDefinition(ctx context.Context, name string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
