// Package coreauthz implements the decision core of a Zanzibar-style
// relationship-based access-control system: given a set of relationship
// [Tuple]s and a schema of [RelationConfig] rules, it answers whether a
// subject holds a relation on an object.
//
// You start by describing the schema as a set of [RelationConfig] records,
// keyed by object type and relation, and register them in a [Store]:
//
//	_ = store.UpsertRelationConfig(ctx, "document", "owner", coreauthz.RelationConfig{
//		DirectlyAssignableTypes: []string{"user"},
//	})
//	_ = store.UpsertRelationConfig(ctx, "document", "editor", coreauthz.RelationConfig{
//		DirectlyAssignableTypes: []string{"user"},
//		ImpliedBy:               []string{"owner"},
//	})
//
// Tuples are written through the [Client] façade, which performs the
// write-time validation described by [RelationConfig.DirectlyAssignableTypes]
// and [RelationConfig.AllowsUsersetSubjects]:
//
//	client := coreauthz.NewClient(store)
//	_ = client.AddTuple(ctx, coreauthz.Tuple{
//		ObjectType: "document", ObjectID: "d1", Relation: "owner",
//		SubjectType: "user", SubjectID: "alice",
//	})
//
// A [Checker] (or the [Client] façade, which wraps one) then answers the
// authorization question by recursively walking the schema over the store:
//
//	ok, err := client.Check(ctx, coreauthz.Request{
//		ObjectType: "document", ObjectID: "d1", Relation: "editor",
//		SubjectType: "user", SubjectID: "alice",
//	}, coreauthz.Options{})
//
// [ListObjects] and [ListSubjects] layer simple enumeration on top of Check
// and the store's direct-subject index, respectively.
//
// [Zanzibar]: https://research.google/pubs/pub48190/
package coreauthz
