package coreauthz_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreauthz/coreauthz"
	"github.com/coreauthz/coreauthz/storage/memory"
)

func TestListObjectsFiltersToGrantedCandidates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.UpsertRelationConfig(ctx, "doc", "viewer", coreauthz.RelationConfig{
		DirectlyAssignableTypes: []string{"user"},
	}))
	require.NoError(t, store.InsertTuple(ctx, coreauthz.TupleString("doc:a#viewer@user:alice")))
	require.NoError(t, store.InsertTuple(ctx, coreauthz.TupleString("doc:b#viewer@user:bob")))
	require.NoError(t, store.InsertTuple(ctx, coreauthz.TupleString("doc:c#viewer@user:alice")))

	ids, err := coreauthz.ListObjects(ctx, store, "doc", "viewer", "user", "alice", coreauthz.Options{})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, ids)
}

func TestListObjectsWithNoCandidates(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ids, err := coreauthz.ListObjects(ctx, store, "doc", "viewer", "user", "alice", coreauthz.Options{})
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestListSubjectsReturnsStoredTuplesVerbatim(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.InsertTuple(ctx, coreauthz.TupleString("doc:readme#viewer@user:alice")))
	require.NoError(t, store.InsertTuple(ctx, coreauthz.TupleString("doc:readme#viewer@group:eng#member")))

	subjects, err := coreauthz.ListSubjects(ctx, store, "doc", "readme", "viewer")
	require.NoError(t, err)
	require.Len(t, subjects, 2)
}
