// Package memory provides the in-memory reference implementation of
// [coreauthz.Store]: a small set of indexed maps, safe for concurrent use,
// with stable (sorted) iteration order within any one call. It is the
// implementation the conformance test suite runs against first, since it
// has no external dependencies and no I/O latency to mask bugs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/coreauthz/coreauthz"
)

type relationKey struct {
	ObjectType string
	Relation   string
}

// Storage is an in-memory [coreauthz.Store].
type Storage struct {
	mu sync.RWMutex

	// tuples indexes every tuple by identity key for point lookups.
	tuples map[tupleIdentity]coreauthz.Tuple

	// byObjectRelation indexes tuple identities by (object_type, object_id,
	// relation) for range scans (FindUsersetTuples, FindTuplesByRelation,
	// ListDirectSubjects).
	byObjectRelation map[objectRelationKey][]tupleIdentity

	// byObjectType indexes known object ids per type for
	// ListCandidateObjectIDs.
	byObjectType map[string]map[string]struct{}

	relationConfigs     map[relationKey]coreauthz.RelationConfig
	conditionDefinition map[string]coreauthz.ConditionDefinition
}

type tupleIdentity struct {
	ObjectType      string
	ObjectID        string
	Relation        string
	SubjectType     string
	SubjectID       string
	SubjectRelation string
}

type objectRelationKey struct {
	ObjectType string
	ObjectID   string
	Relation   string
}

// New returns an empty in-memory store.
func New() *Storage {
	return &Storage{
		tuples:              map[tupleIdentity]coreauthz.Tuple{},
		byObjectRelation:    map[objectRelationKey][]tupleIdentity{},
		byObjectType:        map[string]map[string]struct{}{},
		relationConfigs:     map[relationKey]coreauthz.RelationConfig{},
		conditionDefinition: map[string]coreauthz.ConditionDefinition{},
	}
}

func identityOf(t coreauthz.Tuple) tupleIdentity {
	return tupleIdentity{t.ObjectType, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID, t.SubjectRelation}
}

func relationKeyOf(t coreauthz.Tuple) objectRelationKey {
	return objectRelationKey{t.ObjectType, t.ObjectID, t.Relation}
}

func (s *Storage) FindDirectTuple(_ context.Context, objectType, objectID, relation, subjectType, subjectID, subjectRelation string) (coreauthz.Tuple, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tuples[tupleIdentity{objectType, objectID, relation, subjectType, subjectID, subjectRelation}]
	return t, ok, nil
}

func (s *Storage) FindUsersetTuples(_ context.Context, objectType, objectID, relation string) ([]coreauthz.Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []coreauthz.Tuple
	for _, id := range s.sortedIdentities(objectRelationKey{objectType, objectID, relation}) {
		t := s.tuples[id]
		if t.IsUsersetSubject() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Storage) FindTuplesByRelation(_ context.Context, objectType, objectID, relation string) ([]coreauthz.Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []coreauthz.Tuple
	for _, id := range s.sortedIdentities(objectRelationKey{objectType, objectID, relation}) {
		out = append(out, s.tuples[id])
	}
	return out, nil
}

func (s *Storage) ListDirectSubjects(_ context.Context, objectType, objectID, relation string) ([]coreauthz.Tuple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []coreauthz.Tuple
	for _, id := range s.sortedIdentities(objectRelationKey{objectType, objectID, relation}) {
		out = append(out, s.tuples[id])
	}
	return out, nil
}

// sortedIdentities must be called with s.mu held.
func (s *Storage) sortedIdentities(key objectRelationKey) []tupleIdentity {
	ids := append([]tupleIdentity(nil), s.byObjectRelation[key]...)
	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if a.SubjectType != b.SubjectType {
			return a.SubjectType < b.SubjectType
		}
		if a.SubjectID != b.SubjectID {
			return a.SubjectID < b.SubjectID
		}
		return a.SubjectRelation < b.SubjectRelation
	})
	return ids
}

func (s *Storage) InsertTuple(_ context.Context, t coreauthz.Tuple) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := identityOf(t)
	if _, exists := s.tuples[id]; !exists {
		s.byObjectRelation[relationKeyOf(t)] = append(s.byObjectRelation[relationKeyOf(t)], id)
		if s.byObjectType[t.ObjectType] == nil {
			s.byObjectType[t.ObjectType] = map[string]struct{}{}
		}
		s.byObjectType[t.ObjectType][t.ObjectID] = struct{}{}
	}
	s.tuples[id] = t // last-write-wins on condition metadata
	return nil
}

func (s *Storage) DeleteTuple(_ context.Context, t coreauthz.Tuple) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := identityOf(t)
	if _, exists := s.tuples[id]; !exists {
		return false, nil
	}
	delete(s.tuples, id)

	rk := relationKeyOf(t)
	ids := s.byObjectRelation[rk]
	for i, other := range ids {
		if other == id {
			s.byObjectRelation[rk] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.byObjectRelation[rk]) == 0 {
		delete(s.byObjectRelation, rk)
	}
	return true, nil
}

func (s *Storage) ListCandidateObjectIDs(_ context.Context, objectType string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byObjectType[objectType]))
	for id := range s.byObjectType[objectType] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Storage) FindRelationConfig(_ context.Context, objectType, relation string) (coreauthz.RelationConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.relationConfigs[relationKey{objectType, relation}]
	return cfg, ok, nil
}

func (s *Storage) UpsertRelationConfig(_ context.Context, objectType, relation string, cfg coreauthz.RelationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationConfigs[relationKey{objectType, relation}] = cfg
	return nil
}

func (s *Storage) DeleteRelationConfig(_ context.Context, objectType, relation string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := relationKey{objectType, relation}
	_, ok := s.relationConfigs[key]
	delete(s.relationConfigs, key)
	return ok, nil
}

func (s *Storage) FindConditionDefinition(_ context.Context, name string) (coreauthz.ConditionDefinition, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.conditionDefinition[name]
	return def, ok, nil
}

func (s *Storage) UpsertConditionDefinition(_ context.Context, def coreauthz.ConditionDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conditionDefinition[def.Name] = def
	return nil
}

func (s *Storage) DeleteConditionDefinition(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conditionDefinition[name]
	delete(s.conditionDefinition, name)
	return ok, nil
}

func (s *Storage) Close() error { return nil }

var _ coreauthz.Store = (*Storage)(nil)
