package coreauthz

import (
	"errors"
	"fmt"
)

// ErrNotFound is a not-found sentinel for callers that need one. The
// [Store] point lookups do not return it: they report absence through
// their bool result.
var ErrNotFound = errors.New("coreauthz: not found")

// ErrMalformedRequest is returned when a [Request] or [Tuple] is missing
// required fields. It signals a programmer mistake, not a decision.
var ErrMalformedRequest = errors.New("coreauthz: malformed request")

// RelationConfigNotFoundError is raised by [Client.AddTuple] when no
// [RelationConfig] exists for the tuple's (object_type, relation). On
// read, a missing config is not an error; it simply denies (see check.go).
type RelationConfigNotFoundError struct {
	ObjectType string
	Relation   string
}

func (e *RelationConfigNotFoundError) Error() string {
	return fmt.Sprintf("coreauthz: no relation config for %s#%s", e.ObjectType, e.Relation)
}

// InvalidSubjectTypeError is raised by [Client.AddTuple] when a tuple's
// subject type is not in the relation's DirectlyAssignableTypes.
type InvalidSubjectTypeError struct {
	ObjectType  string
	Relation    string
	SubjectType string
	Allowed     []string
}

func (e *InvalidSubjectTypeError) Error() string {
	return fmt.Sprintf("coreauthz: subject type %q not allowed for %s#%s (allowed: %v)", e.SubjectType, e.ObjectType, e.Relation, e.Allowed)
}

// UsersetNotAllowedError is raised by [Client.AddTuple] when a tuple
// carries a SubjectRelation but the relation's config does not set
// AllowsUsersetSubjects.
type UsersetNotAllowedError struct {
	ObjectType string
	Relation   string
}

func (e *UsersetNotAllowedError) Error() string {
	return fmt.Sprintf("coreauthz: %s#%s does not allow userset subjects", e.ObjectType, e.Relation)
}

// ConditionNotFoundError is raised by [Client.AddTuple] when a
// conditional tuple names a [ConditionDefinition] that is not registered.
// It is never returned to a Check caller — on read, a missing condition
// definition makes the affected tuple fail closed instead (see check.go).
type ConditionNotFoundError struct {
	Name string
}

func (e *ConditionNotFoundError) Error() string {
	return fmt.Sprintf("coreauthz: no condition definition named %q", e.Name)
}

// ConditionEvaluationError is raised by [Client.AddTuple] when a
// conditional tuple's condition definition fails to compile. Like
// ConditionNotFoundError, it is a write-time check only: on read, a
// condition that fails to evaluate simply fails the tuple closed instead
// of surfacing from Check.
type ConditionEvaluationError struct {
	Name string
	Err  error
}

func (e *ConditionEvaluationError) Error() string {
	return fmt.Sprintf("coreauthz: condition %q evaluation failed: %v", e.Name, e.Err)
}

func (e *ConditionEvaluationError) Unwrap() error {
	return e.Err
}
