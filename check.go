package coreauthz

import "context"

// DefaultMaxDepth bounds the recursion depth of Check when Options.MaxDepth
// is zero.
const DefaultMaxDepth = 25

// Request describes one authorization question: is Subject in Relation to
// Object, under Context?
type Request struct {
	ObjectType string
	ObjectID   string
	Relation   string

	SubjectType     string
	SubjectID       string
	SubjectRelation string // set only to ask "does the subject hold this userset"

	Context map[string]any
}

func (r Request) valid() bool {
	return r.ObjectType != "" && r.ObjectID != "" && r.Relation != "" &&
		r.SubjectType != "" && r.SubjectID != ""
}

// Options tunes a Check call.
type Options struct {
	// MaxDepth bounds recursion; zero means DefaultMaxDepth.
	MaxDepth int
}

func (o Options) maxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// Checker is the recursive, graph-walking decision procedure that
// interprets a schema of [RelationConfig] rules over a [Store],
// including userset expansion, computed-userset and tuple-to-userset
// rewrites, conditional-tuple evaluation, cycle detection, and depth
// bounding. A Checker is stateless between calls and safe for concurrent
// use.
type Checker struct {
	store      Store
	conditions *ConditionEvaluator
}

// NewChecker returns a Checker backed by store, using a fresh
// [ConditionEvaluator].
func NewChecker(store Store) *Checker {
	return &Checker{store: store, conditions: NewConditionEvaluator()}
}

// visitKey identifies one (object, relation) node in the schema graph for
// cycle detection. It is scoped to a single Check call.
type visitKey struct {
	ObjectType string
	ObjectID   string
	Relation   string
}

// checkState carries the per-call state of a single Check: the visited
// set, the request's context, and the resources it borrows from
// the Checker. It is not safe to share across goroutines belonging to
// different Check calls.
type checkState struct {
	store      Store
	conditions *ConditionEvaluator
	maxDepth   int
	reqContext map[string]any
	visited    map[visitKey]bool
}

// Check reports whether req's subject holds req's relation on req's
// object, under req.Context. It returns false — never an error — for
// evaluation outcomes: missing schema, exceeded depth, a cycle, or a
// missing/failing condition. Errors are reserved for malformed requests
// and store I/O failures.
func (c *Checker) Check(ctx context.Context, req Request, opts Options) (bool, error) {
	if !req.valid() {
		return false, ErrMalformedRequest
	}
	s := &checkState{
		store:      c.store,
		conditions: c.conditions,
		maxDepth:   opts.maxDepth(),
		reqContext: req.Context,
		visited:    map[visitKey]bool{},
	}
	return s.check(ctx, req.ObjectType, req.ObjectID, req.Relation, req.SubjectType, req.SubjectID, req.SubjectRelation, 0)
}

// check decides one (object, relation) node: the depth/cycle guards, the
// union of direct/computed/implied/TTU rules (or the standalone
// computed_userset rewrite), and the trailing exclusion.
func (s *checkState) check(ctx context.Context, objectType, objectID, relation, subjectType, subjectID, subjectRelation string, depth int) (bool, error) {
	if depth >= s.maxDepth {
		return false, nil
	}
	key := visitKey{objectType, objectID, relation}
	if s.visited[key] {
		return false, nil
	}
	s.visited[key] = true
	defer delete(s.visited, key)

	cfg, ok, err := s.store.FindRelationConfig(ctx, objectType, relation)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	granted, err := s.evalConfig(ctx, cfg, objectType, objectID, relation, subjectType, subjectID, subjectRelation, depth)
	if err != nil {
		return false, err
	}
	if !granted {
		return false, nil
	}

	if cfg.ExcludedBy != "" {
		excluded, err := s.check(ctx, objectType, objectID, cfg.ExcludedBy, subjectType, subjectID, subjectRelation, depth+1)
		if err != nil {
			return false, err
		}
		if excluded {
			return false, nil
		}
	}
	return true, nil
}

// evalConfig checks direct tuples first, then either the standalone
// computed_userset rewrite, or the implied_by union, tuple-to-userset
// union, and intersection, in that order. When the config has an
// intersection and no computed_userset, direct tuples grant only through
// the intersection's "direct" operand, never on their own.
func (s *checkState) evalConfig(ctx context.Context, cfg RelationConfig, objectType, objectID, relation, subjectType, subjectID, subjectRelation string, depth int) (bool, error) {
	if cfg.ComputedUserset != "" || len(cfg.Intersection) == 0 {
		direct, err := s.evalDirect(ctx, cfg, objectType, objectID, relation, subjectType, subjectID, subjectRelation, depth)
		if err != nil || direct {
			return direct, err
		}
	}

	if cfg.ComputedUserset != "" {
		return s.check(ctx, objectType, objectID, cfg.ComputedUserset, subjectType, subjectID, subjectRelation, depth+1)
	}

	for _, sibling := range cfg.ImpliedBy {
		ok, err := s.check(ctx, objectType, objectID, sibling, subjectType, subjectID, subjectRelation, depth+1)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	for _, ttu := range cfg.TupleToUserset {
		ok, err := s.evalTupleToUserset(ctx, ttu, objectType, objectID, subjectType, subjectID, subjectRelation, depth)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	if len(cfg.Intersection) > 0 {
		return s.evalIntersection(ctx, cfg, cfg.Intersection, objectType, objectID, relation, subjectType, subjectID, subjectRelation, depth)
	}

	return false, nil
}

// evalDirect checks, in order: a trivial direct-tuple hit, the
// type-wildcard direct hit, and userset-subject membership expansion.
// cfg gates the wildcard step against the live schema: invariants are
// enforced on write but defensively re-checked here, so a wildcard
// tuple written under an older, more permissive schema is denied once
// the schema no longer lists that wildcard type.
func (s *checkState) evalDirect(ctx context.Context, cfg RelationConfig, objectType, objectID, relation, subjectType, subjectID, subjectRelation string, depth int) (bool, error) {
	// Step 1: trivial hit (exact identity match, including a userset
	// descriptor when the request subject itself carries subjectRelation).
	if t, found, err := s.store.FindDirectTuple(ctx, objectType, objectID, relation, subjectType, subjectID, subjectRelation); err != nil {
		return false, err
	} else if found {
		ok, err := s.conditionHolds(ctx, t)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	// Step 2: type-wildcard direct hit, only for plain (non-userset)
	// subjects that are not themselves the wildcard, and only if the
	// schema still lists this subject type's wildcard as assignable.
	if subjectRelation == "" && subjectID != WildcardSubjectID && cfg.wildcardTypeAllowed(subjectType) {
		if t, found, err := s.store.FindDirectTuple(ctx, objectType, objectID, relation, subjectType, WildcardSubjectID, ""); err != nil {
			return false, err
		} else if found {
			ok, err := s.conditionHolds(ctx, t)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}

	// Step 3: userset-subject membership. Every stored tuple on this
	// object/relation whose subject is a userset is a promise to expand
	// recursively, independent of whether the request's own subject
	// carries a subjectRelation.
	usersets, err := s.store.FindUsersetTuples(ctx, objectType, objectID, relation)
	if err != nil {
		return false, err
	}
	for _, ut := range usersets {
		ok, err := s.conditionHolds(ctx, ut)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		granted, err := s.check(ctx, ut.SubjectType, ut.SubjectID, ut.SubjectRelation, subjectType, subjectID, subjectRelation, depth+1)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}

// evalTupleToUserset follows direct tuples on ttu.Tupleset to reach
// other objects, then checks ttu.ComputedUserset on each.
func (s *checkState) evalTupleToUserset(ctx context.Context, ttu TupleToUsersetRule, objectType, objectID, subjectType, subjectID, subjectRelation string, depth int) (bool, error) {
	referenced, err := s.store.FindTuplesByRelation(ctx, objectType, objectID, ttu.Tupleset)
	if err != nil {
		return false, err
	}
	for _, t := range referenced {
		ok, err := s.conditionHolds(ctx, t)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		granted, err := s.check(ctx, t.SubjectType, t.SubjectID, ttu.ComputedUserset, subjectType, subjectID, subjectRelation, depth+1)
		if err != nil {
			return false, err
		}
		if granted {
			return true, nil
		}
	}
	return false, nil
}

// evalIntersection requires every operand to hold, evaluated left to
// right with short-circuit on the first false.
func (s *checkState) evalIntersection(ctx context.Context, cfg RelationConfig, operands []IntersectionOperand, objectType, objectID, relation, subjectType, subjectID, subjectRelation string, depth int) (bool, error) {
	for _, op := range operands {
		var (
			ok  bool
			err error
		)
		switch op.Kind {
		case OperandDirect:
			ok, err = s.evalDirect(ctx, cfg, objectType, objectID, relation, subjectType, subjectID, subjectRelation, depth+1)
		case OperandComputedUserset:
			ok, err = s.check(ctx, objectType, objectID, op.Relation, subjectType, subjectID, subjectRelation, depth+1)
		case OperandTupleToUserset:
			ok, err = s.evalTupleToUserset(ctx, TupleToUsersetRule{Tupleset: op.Tupleset, ComputedUserset: op.ComputedUserset}, objectType, objectID, subjectType, subjectID, subjectRelation, depth)
		default:
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// conditionHolds reports whether t's grant is live under the merged
// context: unconditional tuples always hold; a missing condition
// definition or an evaluation error fails the tuple closed without
// propagating as a Check error. Only Store I/O failures propagate.
func (s *checkState) conditionHolds(ctx context.Context, t Tuple) (bool, error) {
	if !t.IsConditional() {
		return true, nil
	}
	def, ok, err := s.store.FindConditionDefinition(ctx, t.ConditionName)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	merged := mergeContext(t.ConditionContext, s.reqContext)
	result, err := s.conditions.Evaluate(def, merged)
	if err != nil {
		return false, nil
	}
	return result, nil
}

// mergeContext merges a tuple's bound condition context with the
// request's ambient context; the request wins on key conflict.
func mergeContext(tupleContext, requestContext map[string]any) map[string]any {
	merged := make(map[string]any, len(tupleContext)+len(requestContext))
	for k, v := range tupleContext {
		merged[k] = v
	}
	for k, v := range requestContext {
		merged[k] = v
	}
	return merged
}
