package coreauthz

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
)

// ConditionEvaluator compiles and evaluates [ConditionDefinition]
// expressions written in a small CEL-based language: literals,
// identifiers bound by Parameters, equality/ordering, logical
// operators, "in" for list membership, and timestamp+duration arithmetic.
//
// Compiled programs are cached by (name, expression) so repeated checks
// against the same condition don't re-parse it every time; the cache is
// safe for concurrent use across Check calls.
type ConditionEvaluator struct {
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewConditionEvaluator returns a ready-to-use evaluator with an empty
// compile cache.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{programs: map[string]cel.Program{}}
}

// Evaluate compiles def.Expression (if not already cached) against an
// environment declaring def.Parameters, coerces the values in context to
// their declared parameter types, and runs it. It returns an error for
// undefined identifiers, unsupported operators, or type mismatches; the
// caller (check.go) treats any error as "this tuple does not grant",
// never as a decision error.
func (e *ConditionEvaluator) Evaluate(def ConditionDefinition, context map[string]any) (bool, error) {
	prg, err := e.program(def)
	if err != nil {
		return false, err
	}

	vars := make(map[string]any, len(def.Parameters))
	for name, pt := range def.Parameters {
		raw, ok := context[name]
		if !ok {
			continue // unbound parameter: CEL raises "no such attribute" if referenced
		}
		coerced, err := coerceParam(pt, raw)
		if err != nil {
			return false, fmt.Errorf("condition %q: parameter %q: %w", def.Name, name, err)
		}
		vars[name] = coerced
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", def.Name, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q: expression did not evaluate to bool, got %T", def.Name, out.Value())
	}
	return result, nil
}

func (e *ConditionEvaluator) program(def ConditionDefinition) (cel.Program, error) {
	cacheKey := def.Name + "\x00" + def.Expression

	e.mu.RLock()
	prg, ok := e.programs[cacheKey]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.programs[cacheKey]; ok {
		return prg, nil
	}

	opts := make([]cel.EnvOption, 0, len(def.Parameters))
	for name, pt := range def.Parameters {
		celType, err := celTypeFor(pt)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", def.Name, err)
		}
		opts = append(opts, cel.Variable(name, celType))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("condition %q: building environment: %w", def.Name, err)
	}
	ast, issues := env.Compile(def.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition %q: compiling expression: %w", def.Name, issues.Err())
	}
	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition %q: building program: %w", def.Name, err)
	}
	e.programs[cacheKey] = prg
	return prg, nil
}

func celTypeFor(pt ParamType) (*cel.Type, error) {
	switch pt {
	case ParamBool:
		return cel.BoolType, nil
	case ParamString:
		return cel.StringType, nil
	case ParamInt:
		return cel.IntType, nil
	case ParamDouble:
		return cel.DoubleType, nil
	case ParamTimestamp:
		return cel.TimestampType, nil
	case ParamDuration:
		return cel.DurationType, nil
	case ParamList:
		return cel.ListType(cel.DynType), nil
	case ParamMap:
		return cel.MapType(cel.StringType, cel.DynType), nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", pt)
	}
}

// coerceParam converts a raw context value (typically decoded from JSON:
// bool, string, float64, []any, map[string]any) into the Go-native value
// CEL's default type adapter expects for pt.
func coerceParam(pt ParamType, raw any) (any, error) {
	switch pt {
	case ParamBool:
		v, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", raw)
		}
		return v, nil
	case ParamString:
		v, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		return v, nil
	case ParamInt:
		return coerceInt(raw)
	case ParamDouble:
		return coerceDouble(raw)
	case ParamTimestamp:
		return coerceTimestamp(raw)
	case ParamDuration:
		return coerceDuration(raw)
	case ParamList:
		v, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("expected list, got %T", raw)
		}
		return v, nil
	case ParamMap:
		v, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected map, got %T", raw)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", pt)
	}
}

func coerceInt(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("expected int, got %T", raw)
	}
}

func coerceDouble(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected double, got %T", raw)
	}
}

func coerceTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("expected ISO-8601 timestamp: %w", err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("expected timestamp, got %T", raw)
	}
}

func coerceDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("expected duration (e.g. \"5s\", \"1h2m3s\"): %w", err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", raw)
	}
}
