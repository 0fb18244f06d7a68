package coreauthz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreauthz/coreauthz"
	"github.com/coreauthz/coreauthz/storage/memory"
)

func newTestStore(t *testing.T) *memory.Storage {
	t.Helper()
	return memory.New()
}

func writeTuples(t *testing.T, store *memory.Storage, tuples ...string) {
	t.Helper()
	ctx := context.Background()
	for _, s := range tuples {
		require.NoError(t, store.InsertTuple(ctx, coreauthz.TupleString(s)))
	}
}

func TestCheckDirectTuple(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	writeTuples(t, store, "doc:readme#viewer@user:alice")

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "bob"}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckWildcardSubject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user", "user:*"},
	}))
	writeTuples(t, store, "doc:readme#viewer@user:*")

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "anyone"}, coreauthz.Options{})
	require.NoError(t, err)
	require.True(t, ok)

	// the wildcard tuple itself is never a match for the wildcard subject id
	ok, err = checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: coreauthz.WildcardSubjectID}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckWildcardTupleDeniedOnceSchemaNarrows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user", "user:*"},
	}))
	writeTuples(t, store, "doc:readme#viewer@user:*")

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "anyone"}, coreauthz.Options{})
	require.NoError(t, err)
	require.True(t, ok)

	// the schema is narrowed to drop the wildcard grant, but the old tuple
	// is left in the store; Check must re-validate against the live schema
	// and deny it, rather than trusting write-time validation alone.
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	ok, err = checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "anyone"}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok, "wildcard grant must be denied once the schema no longer allows user:* on this relation")
}

func TestCheckUsersetExpansion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
		AllowsUsersetSubjects:   true,
	}))
	require.NoError(t, store.UpsertRelationConfig(ctx, "group", "member", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	writeTuples(t, store,
		"doc:readme#viewer@group:eng#member",
		"group:eng#member@user:alice",
	)

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "bob"}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckImpliedByUnion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "editor", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
		ImpliedBy:               []string{"editor"},
	}))
	writeTuples(t, store, "doc:readme#editor@user:alice")

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckTupleToUsersetParentCascade(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "folder", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "parent", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"folder"},
	}))
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
		TupleToUserset: []coreauthz.TupleToUsersetRule{
			{Tupleset: "parent", ComputedUserset: "viewer"},
		},
	}))
	writeTuples(t, store,
		"doc:readme#parent@folder:root",
		"folder:root#viewer@user:alice",
	)

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckComputedUsersetIsStandaloneRewrite(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "owner", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	// viewer sets BOTH computed_userset and implied_by; per the resolved
	// open question, implied_by is ignored once computed_userset is set.
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "editor", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		ComputedUserset: "owner",
		ImpliedBy:       []string{"editor"},
	}))
	writeTuples(t, store, "doc:readme#editor@user:alice")

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok, "implied_by must be ignored once computed_userset is set")

	writeTuples(t, store, "doc:readme#owner@user:alice")
	ok, err = checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckIntersection(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "approver", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "publish", coreauthz.RelationConfig{
		Intersection: []coreauthz.IntersectionOperand{
			{Kind: coreauthz.OperandDirect},
			{Kind: coreauthz.OperandComputedUserset, Relation: "approver"},
		},
	}))
	writeTuples(t, store, "doc:readme#publish@user:alice")

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "publish", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok, "missing approver operand should fail the intersection")

	writeTuples(t, store, "doc:readme#approver@user:alice")
	ok, err = checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "publish", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckExclusion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "banned", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
		ExcludedBy:              "banned",
	}))
	writeTuples(t, store,
		"doc:readme#viewer@user:alice",
		"doc:readme#banned@user:alice",
	)

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckConditionalGrant(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	require.NoError(t, store.UpsertConditionDefinition(ctx, coreauthz.ConditionDefinition{
		Name:       "in_region",
		Parameters: map[string]coreauthz.ParamType{"region": coreauthz.ParamString},
		Expression: `region == "us"`,
	}))
	require.NoError(t, store.InsertTuple(ctx, coreauthz.Tuple{
		ObjectType: "doc", ObjectID: "readme", Relation: "viewer",
		SubjectType: "user", SubjectID: "alice",
		ConditionName:    "in_region",
		ConditionContext: map[string]any{"region": "us"},
	}))

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.Check(ctx, coreauthz.Request{
		ObjectType: "doc", ObjectID: "readme", Relation: "viewer",
		SubjectType: "user", SubjectID: "alice",
		Context: map[string]any{"region": "eu"},
	}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok, "request context overrides the tuple's bound context")
}

func TestCheckMissingConditionDefinitionFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	require.NoError(t, store.InsertTuple(ctx, coreauthz.Tuple{
		ObjectType: "doc", ObjectID: "readme", Relation: "viewer",
		SubjectType: "user", SubjectID: "alice",
		ConditionName: "does_not_exist",
	}))

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckMissingRelationConfigDeniesSilently(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	writeTuples(t, store, "doc:readme#viewer@user:alice")

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckCycleIsDenied(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		ImpliedBy: []string{"viewer"},
	}))

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckMaxDepthIsEnforced(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "a", coreauthz.RelationConfig{ImpliedBy: []string{"b"}}))
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "b", coreauthz.RelationConfig{ImpliedBy: []string{"c"}}))
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "c", coreauthz.RelationConfig{DirectlyAssignableTypes: []string{"user"}}))
	writeTuples(t, store, "doc:readme#c@user:alice")

	checker := coreauthz.NewChecker(store)
	ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "a", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{MaxDepth: 1})
	require.NoError(t, err)
	require.False(t, ok, "chain is 2 hops deep but max depth only allows 1")

	ok, err = checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "a", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{MaxDepth: 5})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckRejectsMalformedRequest(t *testing.T) {
	checker := coreauthz.NewChecker(newTestStore(t))
	_, err := checker.Check(context.Background(), coreauthz.Request{}, coreauthz.Options{})
	require.ErrorIs(t, err, coreauthz.ErrMalformedRequest)
}
