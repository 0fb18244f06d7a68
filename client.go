package coreauthz

import "context"

// Client is the thin public façade over a [Store]: it exposes Check,
// tuple writes/deletes, schema writes, and the list helpers, and
// performs write-time validation against the schema that Store
// implementations themselves do not enforce.
type Client struct {
	store   Store
	checker *Checker
}

// NewClient wraps store in a Client with a fresh [Checker].
func NewClient(store Store) *Client {
	return &Client{store: store, checker: NewChecker(store)}
}

// Check answers req against the current store and schema state.
func (c *Client) Check(ctx context.Context, req Request, opts Options) (bool, error) {
	return c.checker.Check(ctx, req, opts)
}

// AddTuple validates t against its relation's schema and writes it.
//
//  1. The relation must have a [RelationConfig] ([RelationConfigNotFoundError]).
//  2. A plain subject's type must be directly assignable ([InvalidSubjectTypeError]).
//  3. A wildcard subject ("*") instead requires a "type:*" entry.
//  4. A userset subject requires AllowsUsersetSubjects and a "type#relation" entry.
//  5. A conditional grant's condition must already be registered
//     ([ConditionNotFoundError]) and must compile ([ConditionEvaluationError]).
//
// Writing overwrites any existing tuple sharing t's identity key.
func (c *Client) AddTuple(ctx context.Context, t Tuple) error {
	if t.ObjectType == "" || t.ObjectID == "" || t.Relation == "" || t.SubjectType == "" || t.SubjectID == "" {
		return ErrMalformedRequest
	}

	cfg, ok, err := c.store.FindRelationConfig(ctx, t.ObjectType, t.Relation)
	if err != nil {
		return err
	}
	if !ok {
		return &RelationConfigNotFoundError{ObjectType: t.ObjectType, Relation: t.Relation}
	}

	switch {
	case t.IsUsersetSubject():
		if !cfg.AllowsUsersetSubjects {
			return &UsersetNotAllowedError{ObjectType: t.ObjectType, Relation: t.Relation}
		}
		if !cfg.usersetTypeAllowed(t.SubjectType, t.SubjectRelation) {
			return &InvalidSubjectTypeError{
				ObjectType: t.ObjectType, Relation: t.Relation,
				SubjectType: t.SubjectType + "#" + t.SubjectRelation,
				Allowed:     cfg.DirectlyAssignableTypes,
			}
		}
	case t.IsWildcardSubject():
		if !cfg.wildcardTypeAllowed(t.SubjectType) {
			return &InvalidSubjectTypeError{
				ObjectType: t.ObjectType, Relation: t.Relation,
				SubjectType: t.SubjectType + ":*",
				Allowed:     cfg.DirectlyAssignableTypes,
			}
		}
	default:
		if !cfg.directTypeAllowed(t.SubjectType) {
			return &InvalidSubjectTypeError{
				ObjectType: t.ObjectType, Relation: t.Relation,
				SubjectType: t.SubjectType,
				Allowed:     cfg.DirectlyAssignableTypes,
			}
		}
	}

	if t.IsConditional() {
		def, ok, err := c.store.FindConditionDefinition(ctx, t.ConditionName)
		if err != nil {
			return err
		}
		if !ok {
			return &ConditionNotFoundError{Name: t.ConditionName}
		}
		if _, err := c.checker.conditions.program(def); err != nil {
			return &ConditionEvaluationError{Name: t.ConditionName, Err: err}
		}
	}

	return c.store.InsertTuple(ctx, t)
}

// RemoveTuple deletes the tuple matching t's identity key and reports
// whether one existed.
func (c *Client) RemoveTuple(ctx context.Context, t Tuple) (bool, error) {
	return c.store.DeleteTuple(ctx, t)
}

// WriteRelationConfig upserts the schema for (objectType, relation).
func (c *Client) WriteRelationConfig(ctx context.Context, objectType, relation string, cfg RelationConfig) error {
	return c.store.UpsertRelationConfig(ctx, objectType, relation, cfg)
}

// DeleteRelationConfig removes the schema for (objectType, relation) and
// reports whether one existed.
func (c *Client) DeleteRelationConfig(ctx context.Context, objectType, relation string) (bool, error) {
	return c.store.DeleteRelationConfig(ctx, objectType, relation)
}

// WriteConditionDefinition upserts a condition definition.
func (c *Client) WriteConditionDefinition(ctx context.Context, def ConditionDefinition) error {
	return c.store.UpsertConditionDefinition(ctx, def)
}

// DeleteConditionDefinition removes a condition definition and reports
// whether one existed.
func (c *Client) DeleteConditionDefinition(ctx context.Context, name string) (bool, error) {
	return c.store.DeleteConditionDefinition(ctx, name)
}

// ListObjects returns the object ids of objectType the subject holds
// relation on.
func (c *Client) ListObjects(ctx context.Context, objectType, relation, subjectType, subjectID string, opts Options) ([]string, error) {
	return ListObjects(ctx, c.store, objectType, relation, subjectType, subjectID, opts)
}

// ListSubjects returns the direct subjects stored on (objectType,
// objectID, relation).
func (c *Client) ListSubjects(ctx context.Context, objectType, objectID, relation string) ([]Tuple, error) {
	return ListSubjects(ctx, c.store, objectType, objectID, relation)
}
