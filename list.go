package coreauthz

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// listObjectsConcurrency bounds how many Check calls ListObjects issues at
// once. Check is a pure function of (store, schema, request, context), so
// fanning it out is safe; the store's own concurrency limits are its
// problem.
const listObjectsConcurrency = 8

// ListObjects fetches every candidate object id of objectType from store
// and returns the subset for which subject holds relation. Checks are
// issued concurrently (bounded) since Check is pure;
// order of the result follows the store's iteration order, not check
// completion order.
func ListObjects(ctx context.Context, store Store, objectType, relation, subjectType, subjectID string, opts Options) ([]string, error) {
	candidates, err := store.ListCandidateObjectIDs(ctx, objectType)
	if err != nil {
		return nil, err
	}

	checker := NewChecker(store)
	granted := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listObjectsConcurrency)
	for i, id := range candidates {
		i, id := i, id
		g.Go(func() error {
			ok, err := checker.Check(gctx, Request{
				ObjectType:  objectType,
				ObjectID:    id,
				Relation:    relation,
				SubjectType: subjectType,
				SubjectID:   subjectID,
			}, opts)
			if err != nil {
				return err
			}
			granted[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make([]string, 0, len(candidates))
	for i, id := range candidates {
		if granted[i] {
			result = append(result, id)
		}
	}
	return result, nil
}

// ListSubjects returns the direct subjects stored on (objectType,
// objectID, relation), including userset descriptors, exactly as stored.
// It does not expand through rewrites or usersets — a deliberately
// lower-power operation than Check.
func ListSubjects(ctx context.Context, store Store, objectType, objectID, relation string) ([]Tuple, error) {
	return store.ListDirectSubjects(ctx, objectType, objectID, relation)
}
