// Package pebble implements [coreauthz.Store] on top of an embedded
// cockroachdb/pebble key-value store, encoding tuples as sorted keys so
// userset and relation scans are ordered prefix iterations rather than
// full-store scans.
package pebble

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"

	"github.com/coreauthz/coreauthz"
)

// Storage is a pebble-backed [coreauthz.Store].
type Storage struct {
	db *pebble.DB
}

// Open opens (or creates) a pebble store at dirname.
func Open(dirname string) (*Storage, error) {
	db, err := pebble.Open(dirname, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// tupleValue is the JSON payload stored under a tuple key: everything
// [coreauthz.Tuple] carries beyond its identity, which is already encoded
// in the key.
type tupleValue struct {
	ConditionName    string         `json:"condition_name,omitempty"`
	ConditionContext map[string]any `json:"condition_context,omitempty"`
}

// direct tuple keys look like "objectType:objectID#relation@subjectType:subjectID".
// Userset tuple keys insert a "!" marker before the subject so a single
// prefix scan of "...@" reaches both, while a scan of "...@!" reaches only
// usersets.
func tupleKey(objectType, objectID, relation, subjectType, subjectID, subjectRelation string) []byte {
	if subjectRelation != "" {
		return []byte(fmt.Sprintf("%s:%s#%s@!%s:%s#%s", objectType, objectID, relation, subjectType, subjectID, subjectRelation))
	}
	return []byte(fmt.Sprintf("%s:%s#%s@%s:%s", objectType, objectID, relation, subjectType, subjectID))
}

func relationPrefix(objectType, objectID, relation string) []byte {
	return []byte(fmt.Sprintf("%s:%s#%s@", objectType, objectID, relation))
}

func usersetPrefix(objectType, objectID, relation string) []byte {
	return []byte(fmt.Sprintf("%s:%s#%s@!", objectType, objectID, relation))
}

// object-id index keys are namespaced under a byte no tuple key can start
// with, so a scan for one never crosses into the other.
const objectIndexPrefix = "\x00obj\x00"

func objectIndexKey(objectType, objectID string) []byte {
	return []byte(objectIndexPrefix + objectType + "\x00" + objectID)
}

func objectIndexTypePrefix(objectType string) []byte {
	return []byte(objectIndexPrefix + objectType + "\x00")
}

const relationConfigPrefix = "\x01cfg\x00"

func relationConfigKey(objectType, relation string) []byte {
	return []byte(relationConfigPrefix + objectType + "\x00" + relation)
}

const conditionDefinitionPrefix = "\x02cond\x00"

func conditionDefinitionKey(name string) []byte {
	return []byte(conditionDefinitionPrefix + name)
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func prefixIterOptions(prefix []byte) *pebble.IterOptions {
	return &pebble.IterOptions{LowerBound: prefix, UpperBound: keyUpperBound(prefix)}
}

// parseTupleKey recovers a key's identity fields; it is the inverse of
// tupleKey.
func parseTupleKey(key []byte) (objectType, objectID, relation, subjectType, subjectID, subjectRelation string, err error) {
	s := string(key)
	object, subject, ok := strings.Cut(s, "@")
	if !ok {
		return "", "", "", "", "", "", fmt.Errorf("pebble: malformed tuple key %q", s)
	}
	objectRef, relation, ok := strings.Cut(object, "#")
	if !ok {
		return "", "", "", "", "", "", fmt.Errorf("pebble: malformed tuple key %q", s)
	}
	objectType, objectID, ok = strings.Cut(objectRef, ":")
	if !ok {
		return "", "", "", "", "", "", fmt.Errorf("pebble: malformed tuple key %q", s)
	}
	subject = strings.TrimPrefix(subject, "!")
	subjectRef, subjectRelation, _ := strings.Cut(subject, "#")
	subjectType, subjectID, ok = strings.Cut(subjectRef, ":")
	if !ok {
		return "", "", "", "", "", "", fmt.Errorf("pebble: malformed tuple key %q", s)
	}
	return objectType, objectID, relation, subjectType, subjectID, subjectRelation, nil
}

func decodeTuple(key, value []byte) (coreauthz.Tuple, error) {
	objectType, objectID, relation, subjectType, subjectID, subjectRelation, err := parseTupleKey(key)
	if err != nil {
		return coreauthz.Tuple{}, err
	}
	t := coreauthz.Tuple{
		ObjectType: objectType, ObjectID: objectID, Relation: relation,
		SubjectType: subjectType, SubjectID: subjectID, SubjectRelation: subjectRelation,
	}
	if len(value) > 0 {
		var tv tupleValue
		if err := json.Unmarshal(value, &tv); err != nil {
			return coreauthz.Tuple{}, err
		}
		t.ConditionName = tv.ConditionName
		t.ConditionContext = tv.ConditionContext
	}
	return t, nil
}

func (s *Storage) FindDirectTuple(_ context.Context, objectType, objectID, relation, subjectType, subjectID, subjectRelation string) (coreauthz.Tuple, bool, error) {
	key := tupleKey(objectType, objectID, relation, subjectType, subjectID, subjectRelation)
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return coreauthz.Tuple{}, false, nil
	}
	if err != nil {
		return coreauthz.Tuple{}, false, err
	}
	defer closer.Close()
	t, err := decodeTuple(key, value)
	return t, err == nil, err
}

func (s *Storage) scan(prefix []byte) ([]coreauthz.Tuple, error) {
	iter, err := s.db.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []coreauthz.Tuple
	for iter.First(); iter.Valid(); iter.Next() {
		t, err := decodeTuple(iter.Key(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, iter.Error()
}

func (s *Storage) FindUsersetTuples(_ context.Context, objectType, objectID, relation string) ([]coreauthz.Tuple, error) {
	return s.scan(usersetPrefix(objectType, objectID, relation))
}

func (s *Storage) FindTuplesByRelation(_ context.Context, objectType, objectID, relation string) ([]coreauthz.Tuple, error) {
	return s.scan(relationPrefix(objectType, objectID, relation))
}

func (s *Storage) ListDirectSubjects(ctx context.Context, objectType, objectID, relation string) ([]coreauthz.Tuple, error) {
	return s.FindTuplesByRelation(ctx, objectType, objectID, relation)
}

func (s *Storage) InsertTuple(_ context.Context, t coreauthz.Tuple) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	var value []byte
	if t.IsConditional() || t.ConditionContext != nil {
		encoded, err := json.Marshal(tupleValue{ConditionName: t.ConditionName, ConditionContext: t.ConditionContext})
		if err != nil {
			return err
		}
		value = encoded
	}
	key := tupleKey(t.ObjectType, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID, t.SubjectRelation)
	if err := batch.Set(key, value, nil); err != nil {
		return err
	}
	if err := batch.Set(objectIndexKey(t.ObjectType, t.ObjectID), nil, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *Storage) DeleteTuple(_ context.Context, t coreauthz.Tuple) (bool, error) {
	key := tupleKey(t.ObjectType, t.ObjectID, t.Relation, t.SubjectType, t.SubjectID, t.SubjectRelation)
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) ListCandidateObjectIDs(_ context.Context, objectType string) ([]string, error) {
	iter, err := s.db.NewIter(prefixIterOptions(objectIndexTypePrefix(objectType)))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []string
	prefix := objectIndexTypePrefix(objectType)
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, string(iter.Key()[len(prefix):]))
	}
	return ids, iter.Error()
}

func (s *Storage) FindRelationConfig(_ context.Context, objectType, relation string) (coreauthz.RelationConfig, bool, error) {
	value, closer, err := s.db.Get(relationConfigKey(objectType, relation))
	if err == pebble.ErrNotFound {
		return coreauthz.RelationConfig{}, false, nil
	}
	if err != nil {
		return coreauthz.RelationConfig{}, false, err
	}
	defer closer.Close()
	var cfg coreauthz.RelationConfig
	if err := json.Unmarshal(value, &cfg); err != nil {
		return coreauthz.RelationConfig{}, false, err
	}
	return cfg, true, nil
}

func (s *Storage) UpsertRelationConfig(_ context.Context, objectType, relation string, cfg coreauthz.RelationConfig) error {
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.Set(relationConfigKey(objectType, relation), encoded, pebble.Sync)
}

func (s *Storage) DeleteRelationConfig(_ context.Context, objectType, relation string) (bool, error) {
	key := relationConfigKey(objectType, relation)
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) FindConditionDefinition(_ context.Context, name string) (coreauthz.ConditionDefinition, bool, error) {
	value, closer, err := s.db.Get(conditionDefinitionKey(name))
	if err == pebble.ErrNotFound {
		return coreauthz.ConditionDefinition{}, false, nil
	}
	if err != nil {
		return coreauthz.ConditionDefinition{}, false, err
	}
	defer closer.Close()
	var def coreauthz.ConditionDefinition
	if err := json.Unmarshal(value, &def); err != nil {
		return coreauthz.ConditionDefinition{}, false, err
	}
	return def, true, nil
}

func (s *Storage) UpsertConditionDefinition(_ context.Context, def coreauthz.ConditionDefinition) error {
	encoded, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return s.db.Set(conditionDefinitionKey(def.Name), encoded, pebble.Sync)
}

func (s *Storage) DeleteConditionDefinition(_ context.Context, name string) (bool, error) {
	key := conditionDefinitionKey(name)
	_, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}

var _ coreauthz.Store = (*Storage)(nil)
