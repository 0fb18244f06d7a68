package conformance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreauthz/coreauthz"
)

// RunAll runs every scenario against store, which must already have been
// seeded by [Load]: one shared battery of checks any storage backend
// must pass.
func RunAll(t *testing.T, store coreauthz.Store) {
	checker := coreauthz.NewChecker(store)
	ctx := context.Background()

	t.Run("direct_grant", func(t *testing.T) {
		ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "folder", ObjectID: "root", Relation: "owner", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("implied_by_cascades_within_object", func(t *testing.T) {
		ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "folder", ObjectID: "root", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
		require.NoError(t, err)
		require.True(t, ok, "alice is owner, which implies editor, which implies viewer")
	})

	t.Run("tuple_to_userset_parent_cascade", func(t *testing.T) {
		ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
		require.NoError(t, err)
		require.True(t, ok, "doc:readme's parent is folder:root, and alice can view the folder")
	})

	t.Run("userset_subject_membership", func(t *testing.T) {
		ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "bob"}, coreauthz.Options{})
		require.NoError(t, err)
		require.True(t, ok, "bob is a member of group:eng, which doc:readme grants viewer to")
	})

	t.Run("wildcard_subject", func(t *testing.T) {
		ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "public", Relation: "viewer", SubjectType: "user", SubjectID: "anyone-at-all"}, coreauthz.Options{})
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("conditional_grant_holds_when_condition_true", func(t *testing.T) {
		ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "budget", Relation: "viewer", SubjectType: "user", SubjectID: "carol"}, coreauthz.Options{})
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("conditional_grant_denied_when_condition_false", func(t *testing.T) {
		ok, err := checker.Check(ctx, coreauthz.Request{
			ObjectType: "doc", ObjectID: "budget", Relation: "viewer",
			SubjectType: "user", SubjectID: "carol",
			Context: map[string]any{"day": "saturday"},
		}, coreauthz.Options{})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("intersection_requires_every_operand", func(t *testing.T) {
		ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "publish", SubjectType: "user", SubjectID: "dave"}, coreauthz.Options{})
		require.NoError(t, err)
		require.False(t, ok, "dave has a direct publish tuple but is not an approver")
	})

	t.Run("exclusion_overrides_positive_grant", func(t *testing.T) {
		ok, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "erin"}, coreauthz.Options{})
		require.NoError(t, err)
		require.False(t, ok, "erin holds viewer directly but is also banned")
	})

	t.Run("check_is_deterministic", func(t *testing.T) {
		req := coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}
		first, err := checker.Check(ctx, req, coreauthz.Options{})
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := checker.Check(ctx, req, coreauthz.Options{})
			require.NoError(t, err)
			require.Equal(t, first, again)
		}
	})

	t.Run("check_is_monotonic_in_added_tuples", func(t *testing.T) {
		req := coreauthz.Request{ObjectType: "folder", ObjectID: "root", Relation: "viewer", SubjectType: "user", SubjectID: "frank"}
		before, err := checker.Check(ctx, req, coreauthz.Options{})
		require.NoError(t, err)
		require.False(t, before)

		require.NoError(t, store.InsertTuple(ctx, coreauthz.TupleString("folder:root#owner@user:frank")))
		t.Cleanup(func() { store.DeleteTuple(ctx, coreauthz.TupleString("folder:root#owner@user:frank")) })

		after, err := checker.Check(ctx, req, coreauthz.Options{})
		require.NoError(t, err)
		require.True(t, after, "granting owner must never revoke an implied relation")
	})
}

// RunBenchmarkAll runs the check-heavy scenarios as benchmarks, so
// storage backends can be compared on the same workload.
func RunBenchmarkAll(b *testing.B, store coreauthz.Store) {
	checker := coreauthz.NewChecker(store)
	ctx := context.Background()

	b.Run("direct", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := checker.Check(ctx, coreauthz.Request{ObjectType: "folder", ObjectID: "root", Relation: "owner", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
			require.NoError(b, err)
		}
	})

	b.Run("tuple_to_userset_cascade", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "alice"}, coreauthz.Options{})
			require.NoError(b, err)
		}
	})

	b.Run("userset_expansion", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, err := checker.Check(ctx, coreauthz.Request{ObjectType: "doc", ObjectID: "readme", Relation: "viewer", SubjectType: "user", SubjectID: "bob"}, coreauthz.Options{})
			require.NoError(b, err)
		}
	})
}
