// Package conformance is a fixture-based test harness that exercises the
// same set of authorization scenarios against every [coreauthz.Store]
// backend, using one shared fixture and scenario battery. It is ambient
// test tooling, not the external conformance harness a full ReBAC
// service ships to its operators.
package conformance

import (
	"context"
	"fmt"

	"github.com/coreauthz/coreauthz"
)

// Load seeds store with a small folder/doc/group hierarchy:
//
//   - folder:root has owner alice, editor (implied by owner) and viewer
//     (implied by editor)
//   - doc:readme has parent folder:root, so its viewer/editor/owner cascade
//     from the folder via tuple-to-userset
//   - group:eng has member bob; doc:readme grants viewer to group:eng#member
//   - doc:budget grants viewer to carol conditionally on business_hours
//   - doc:public grants viewer to the user:* wildcard
//   - doc:readme grants publish to dave, gated by an intersection with an
//     "approver" relation dave does not hold
//   - doc:readme#banned holds erin, excluding her from viewer
func Load(ctx context.Context, store coreauthz.Store) error {
	relationConfigs := []struct {
		objectType, relation string
		cfg                  coreauthz.RelationConfig
	}{
		{"user", "self", coreauthz.RelationConfig{}},
		{"group", "member", coreauthz.RelationConfig{DirectlyAssignableTypes: []string{"user"}}},
		{"folder", "owner", coreauthz.RelationConfig{DirectlyAssignableTypes: []string{"user"}}},
		{"folder", "editor", coreauthz.RelationConfig{DirectlyAssignableTypes: []string{"user"}, ImpliedBy: []string{"owner"}}},
		{"folder", "viewer", coreauthz.RelationConfig{DirectlyAssignableTypes: []string{"user"}, ImpliedBy: []string{"editor"}}},
		{"doc", "parent", coreauthz.RelationConfig{DirectlyAssignableTypes: []string{"folder"}}},
		{"doc", "approver", coreauthz.RelationConfig{DirectlyAssignableTypes: []string{"user"}}},
		{"doc", "banned", coreauthz.RelationConfig{DirectlyAssignableTypes: []string{"user"}}},
		{"doc", "owner", coreauthz.RelationConfig{
			DirectlyAssignableTypes: []string{"user"},
			TupleToUserset:          []coreauthz.TupleToUsersetRule{{Tupleset: "parent", ComputedUserset: "owner"}},
		}},
		{"doc", "editor", coreauthz.RelationConfig{
			DirectlyAssignableTypes: []string{"user"},
			ImpliedBy:               []string{"owner"},
			TupleToUserset:          []coreauthz.TupleToUsersetRule{{Tupleset: "parent", ComputedUserset: "editor"}},
		}},
		{"doc", "viewer", coreauthz.RelationConfig{
			DirectlyAssignableTypes: []string{"user", "user:*"},
			AllowsUsersetSubjects:   true,
			ImpliedBy:               []string{"editor"},
			TupleToUserset:          []coreauthz.TupleToUsersetRule{{Tupleset: "parent", ComputedUserset: "viewer"}},
			ExcludedBy:              "banned",
		}},
		{"doc", "publish", coreauthz.RelationConfig{
			Intersection: []coreauthz.IntersectionOperand{
				{Kind: coreauthz.OperandDirect},
				{Kind: coreauthz.OperandComputedUserset, Relation: "approver"},
			},
		}},
	}
	for _, rc := range relationConfigs {
		if err := store.UpsertRelationConfig(ctx, rc.objectType, rc.relation, rc.cfg); err != nil {
			return fmt.Errorf("seeding relation config %s#%s: %w", rc.objectType, rc.relation, err)
		}
	}

	if err := store.UpsertConditionDefinition(ctx, coreauthz.ConditionDefinition{
		Name:       "business_hours",
		Parameters: map[string]coreauthz.ParamType{"day": coreauthz.ParamString},
		Expression: `day in ["monday", "tuesday", "wednesday", "thursday", "friday"]`,
	}); err != nil {
		return fmt.Errorf("seeding condition definition: %w", err)
	}

	tuples := []coreauthz.Tuple{
		coreauthz.TupleString("folder:root#owner@user:alice"),
		coreauthz.TupleString("doc:readme#parent@folder:root"),
		coreauthz.TupleString("group:eng#member@user:bob"),
		coreauthz.TupleString("doc:readme#viewer@group:eng#member"),
		coreauthz.TupleString("doc:public#viewer@user:*"),
		coreauthz.TupleString("doc:readme#publish@user:dave"),
		coreauthz.TupleString("doc:readme#banned@user:erin"),
		coreauthz.TupleString("doc:readme#viewer@user:erin"),
		{
			ObjectType: "doc", ObjectID: "budget", Relation: "viewer",
			SubjectType: "user", SubjectID: "carol",
			ConditionName:    "business_hours",
			ConditionContext: map[string]any{"day": "monday"},
		},
	}
	for _, tup := range tuples {
		if err := store.InsertTuple(ctx, tup); err != nil {
			return fmt.Errorf("seeding tuple %s: %w", tup, err)
		}
	}
	return nil
}
