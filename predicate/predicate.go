package predicate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/funnelkit/journey/model"
	"github.com/oliveagle/jsonpath"
)

// EvalGroup evaluates one predicate group against the data. Field
// predicates and the optional scripted expression are combined under the
// group's combinator (AND unless OR is configured).
func EvalGroup(group model.PredicateGroup, data map[string]any) (bool, error) {
	results := make([]bool, 0, len(group.Predicates)+1)
	for _, p := range group.Predicates {
		ok, err := evalPredicate(p, data)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	if len(group.Expression) > 0 {
		ok, err := evalExpression(group.Expression, data)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	if len(results) == 0 {
		return true, nil
	}
	if group.Combinator == model.COMBINE_OR {
		for _, r := range results {
			if r {
				return true, nil
			}
		}
		return false, nil
	}
	for _, r := range results {
		if !r {
			return false, nil
		}
	}
	return true, nil
}

// EvalGroups reports whether any group matches. An empty group list
// matches everything.
func EvalGroups(groups []model.PredicateGroup, data map[string]any) (bool, error) {
	if len(groups) == 0 {
		return true, nil
	}
	for _, g := range groups {
		ok, err := EvalGroup(g, data)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// SelectBranch returns the index of the first matching group in configured
// order, or -1 when none matches.
func SelectBranch(groups []model.PredicateGroup, data map[string]any) (int, error) {
	for i, g := range groups {
		ok, err := EvalGroup(g, data)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

func lookupField(field string, data map[string]any) (any, bool) {
	if strings.HasPrefix(field, "$") {
		value, err := jsonpath.JsonPathLookup(data, field)
		if err != nil {
			return nil, false
		}
		return value, true
	}
	value, ok := data[field]
	return value, ok
}

func evalPredicate(p model.Predicate, data map[string]any) (bool, error) {
	value, found := lookupField(p.Field, data)
	switch p.Operator {
	case model.OP_IS_EMPTY:
		return !found || isEmpty(value), nil
	case model.OP_IS_NOT_EMPTY:
		return found && !isEmpty(value), nil
	}
	if !found {
		return false, nil
	}
	switch p.Operator {
	case model.OP_EQUALS:
		return equals(value, p.Value), nil
	case model.OP_NOT_EQUALS:
		return !equals(value, p.Value), nil
	case model.OP_CONTAINS:
		return contains(value, p.Value), nil
	case model.OP_GREATER_THAN:
		a, b, ok := asNumbers(value, p.Value)
		return ok && a > b, nil
	case model.OP_LESS_THAN:
		a, b, ok := asNumbers(value, p.Value)
		return ok && a < b, nil
	}
	return false, fmt.Errorf("unknown predicate operator %q", p.Operator)
}

func evalExpression(expression string, data map[string]any) (bool, error) {
	vm := goja.New()
	if err := vm.Set("$", data); err != nil {
		return false, err
	}
	value, err := vm.RunString(expression)
	if err != nil {
		return false, fmt.Errorf("error evaluating expression: %w", err)
	}
	return value.ToBoolean(), nil
}

func isEmpty(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	}
	return false
}

func equals(a any, b any) bool {
	if fa, fb, ok := asNumbers(a, b); ok {
		return fa == fb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func contains(value any, needle any) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", needle))
	case []any:
		for _, item := range v {
			if equals(item, needle) {
				return true
			}
		}
	}
	return false
}

func asNumbers(a any, b any) (float64, float64, bool) {
	fa, oka := asFloat(a)
	fb, okb := asFloat(b)
	return fa, fb, oka && okb
}

func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
