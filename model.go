package coreauthz

// ParamType is the declared type of a [ConditionDefinition] parameter.
type ParamType string

const (
	ParamBool      ParamType = "bool"
	ParamString    ParamType = "string"
	ParamInt       ParamType = "int"
	ParamDouble    ParamType = "double"
	ParamTimestamp ParamType = "timestamp"
	ParamDuration  ParamType = "duration"
	ParamList      ParamType = "list"
	ParamMap       ParamType = "map"
)

// ConditionDefinition names a boolean expression gating conditional tuples.
// Parameters bind identifiers used by Expression to their declared type;
// values arriving from a tuple/request context are coerced to that type
// before evaluation.
type ConditionDefinition struct {
	Name       string
	Parameters map[string]ParamType
	Expression string
}

// OperandKind tags the variant of an [IntersectionOperand].
type OperandKind string

const (
	// OperandDirect checks for a direct tuple on the same object/relation
	// being intersected: an exact match, the type wildcard, and userset
	// expansion. DirectlyAssignableTypes gates only the wildcard lookup;
	// the subject types of other stored tuples are not re-checked here.
	OperandDirect OperandKind = "direct"
	// OperandComputedUserset checks a sibling relation on the same object.
	OperandComputedUserset OperandKind = "computedUserset"
	// OperandTupleToUserset follows a tupleset edge, then checks a relation
	// on each referenced object.
	OperandTupleToUserset OperandKind = "tupleToUserset"
)

// IntersectionOperand is one AND-operand of a RelationConfig.Intersection.
// Exactly the fields relevant to Kind are meaningful; this is a tagged
// variant, not an open-ended struct, and callers should switch on Kind
// exhaustively.
type IntersectionOperand struct {
	Kind OperandKind

	// Relation is set when Kind == OperandComputedUserset.
	Relation string

	// Tupleset and ComputedUserset are set when Kind == OperandTupleToUserset.
	Tupleset        string
	ComputedUserset string
}

// TupleToUsersetRule is one entry of RelationConfig.TupleToUserset: follow
// direct tuples of this object on Tupleset to reach other objects, then ask
// whether the subject holds ComputedUserset on any of them.
type TupleToUsersetRule struct {
	Tupleset        string
	ComputedUserset string
}

// RelationConfig defines how one (object_type, relation) pair is
// computed. The zero value has no directly-assignable types and no
// rewrites, so [Client.AddTuple] accepts no tuple for it; Check does not
// re-check plain or userset subject types at read time, so a direct tuple
// written straight to the [Store] still grants.
type RelationConfig struct {
	// DirectlyAssignableTypes lists which subjects may appear in a direct
	// tuple on this relation. Entries are "T" (plain subject of type T),
	// "T:*" (wildcard of type T), or "T#rel" (userset of T via relation rel).
	DirectlyAssignableTypes []string

	// AllowsUsersetSubjects gates acceptance of tuples whose subject
	// carries a SubjectRelation, in addition to a "T#rel" entry being
	// present in DirectlyAssignableTypes for that specific (T, rel) pair.
	AllowsUsersetSubjects bool

	// ImpliedBy lists sibling relations on the same object type whose
	// truth implies this one (union).
	ImpliedBy []string

	// ComputedUserset, when set, makes this relation a pure rewrite of a
	// sibling relation, and takes precedence over ImpliedBy,
	// TupleToUserset, and Intersection, which are then ignored.
	ComputedUserset string

	// TupleToUserset lists tuple-to-userset rewrites (unioned together).
	TupleToUserset []TupleToUsersetRule

	// Intersection, when non-empty, makes this relation an AND-composition
	// of its operands, evaluated left to right with short-circuit on the
	// first false.
	Intersection []IntersectionOperand

	// ExcludedBy names a sibling relation whose truth denies this relation.
	// Exclusion is applied last, after any positive result from the rules
	// above, and defeats it unconditionally.
	ExcludedBy string
}

// directTypeAllowed reports whether a plain (non-userset, non-wildcard)
// subject of subjectType may be directly assigned this relation.
func (c RelationConfig) directTypeAllowed(subjectType string) bool {
	for _, t := range c.DirectlyAssignableTypes {
		if t == subjectType {
			return true
		}
	}
	return false
}

// wildcardTypeAllowed reports whether a "subjectType:*" wildcard subject
// may be directly assigned this relation.
func (c RelationConfig) wildcardTypeAllowed(subjectType string) bool {
	for _, t := range c.DirectlyAssignableTypes {
		if t == subjectType+":*" {
			return true
		}
	}
	return false
}

// usersetTypeAllowed reports whether a "subjectType#subjectRelation"
// userset subject may be directly assigned this relation.
func (c RelationConfig) usersetTypeAllowed(subjectType, subjectRelation string) bool {
	want := subjectType + "#" + subjectRelation
	for _, t := range c.DirectlyAssignableTypes {
		if t == want {
			return true
		}
	}
	return false
}
