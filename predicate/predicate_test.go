package predicate

import (
	"testing"

	"github.com/funnelkit/journey/model"
	"github.com/stretchr/testify/require"
)

func TestPredicates(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"test operators":           testOperators,
		"test jsonpath fields":     testJsonpathFields,
		"test combinators":         testCombinators,
		"test scripted expression": testScriptedExpression,
		"test group matching":      testGroupMatching,
		"test branch selection":    testBranchSelection,
	} {
		t.Run(scenario, fn)
	}
}

func testOperators(t *testing.T) {
	data := map[string]any{
		"plan":      "pro",
		"leadScore": float64(42),
		"tags":      []any{"beta", "newsletter"},
		"company":   "",
	}
	cases := []struct {
		predicate model.Predicate
		want      bool
	}{
		{model.Predicate{Field: "plan", Operator: model.OP_EQUALS, Value: "pro"}, true},
		{model.Predicate{Field: "plan", Operator: model.OP_EQUALS, Value: "free"}, false},
		{model.Predicate{Field: "plan", Operator: model.OP_NOT_EQUALS, Value: "free"}, true},
		{model.Predicate{Field: "leadScore", Operator: model.OP_EQUALS, Value: 42}, true},
		{model.Predicate{Field: "leadScore", Operator: model.OP_GREATER_THAN, Value: 40}, true},
		{model.Predicate{Field: "leadScore", Operator: model.OP_GREATER_THAN, Value: 42}, false},
		{model.Predicate{Field: "leadScore", Operator: model.OP_LESS_THAN, Value: 100}, true},
		{model.Predicate{Field: "tags", Operator: model.OP_CONTAINS, Value: "beta"}, true},
		{model.Predicate{Field: "tags", Operator: model.OP_CONTAINS, Value: "vip"}, false},
		{model.Predicate{Field: "plan", Operator: model.OP_CONTAINS, Value: "pr"}, true},
		{model.Predicate{Field: "company", Operator: model.OP_IS_EMPTY}, true},
		{model.Predicate{Field: "missing", Operator: model.OP_IS_EMPTY}, true},
		{model.Predicate{Field: "plan", Operator: model.OP_IS_NOT_EMPTY}, true},
		{model.Predicate{Field: "missing", Operator: model.OP_EQUALS, Value: "x"}, false},
	}
	for _, c := range cases {
		got, err := evalPredicate(c.predicate, data)
		require.NoError(t, err)
		require.Equal(t, c.want, got, "field=%s op=%s", c.predicate.Field, c.predicate.Operator)
	}
}

func testJsonpathFields(t *testing.T) {
	data := map[string]any{
		"address": map[string]any{
			"country": "DE",
		},
	}
	ok, err := evalPredicate(model.Predicate{
		Field:    "$.address.country",
		Operator: model.OP_EQUALS,
		Value:    "DE",
	}, data)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = evalPredicate(model.Predicate{
		Field:    "$.address.zip",
		Operator: model.OP_IS_EMPTY,
	}, data)
	require.NoError(t, err)
	require.True(t, ok)
}

func testCombinators(t *testing.T) {
	data := map[string]any{"plan": "pro", "leadScore": float64(10)}

	and := model.PredicateGroup{
		Predicates: []model.Predicate{
			{Field: "plan", Operator: model.OP_EQUALS, Value: "pro"},
			{Field: "leadScore", Operator: model.OP_GREATER_THAN, Value: 50},
		},
	}
	ok, err := EvalGroup(and, data)
	require.NoError(t, err)
	require.False(t, ok)

	or := and
	or.Combinator = model.COMBINE_OR
	ok, err = EvalGroup(or, data)
	require.NoError(t, err)
	require.True(t, ok)

	empty := model.PredicateGroup{}
	ok, err = EvalGroup(empty, data)
	require.NoError(t, err)
	require.True(t, ok)
}

func testScriptedExpression(t *testing.T) {
	data := map[string]any{"leadScore": float64(80), "plan": "pro"}

	ok, err := EvalGroup(model.PredicateGroup{
		Expression: "$.leadScore > 50 && $.plan === 'pro'",
	}, data)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = EvalGroup(model.PredicateGroup{
		Expression: "$.leadScore > 100",
	}, data)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = EvalGroup(model.PredicateGroup{
		Expression: "this is not javascript",
	}, data)
	require.Error(t, err)
}

func testGroupMatching(t *testing.T) {
	data := map[string]any{"plan": "free"}
	groups := []model.PredicateGroup{
		{Predicates: []model.Predicate{{Field: "plan", Operator: model.OP_EQUALS, Value: "pro"}}},
		{Predicates: []model.Predicate{{Field: "plan", Operator: model.OP_EQUALS, Value: "free"}}},
	}

	ok, err := EvalGroups(groups, data)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = EvalGroups(nil, data)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = EvalGroups(groups[:1], data)
	require.NoError(t, err)
	require.False(t, ok)
}

func testBranchSelection(t *testing.T) {
	groups := []model.PredicateGroup{
		{Predicates: []model.Predicate{{Field: "leadScore", Operator: model.OP_GREATER_THAN, Value: 80}}},
		{Predicates: []model.Predicate{{Field: "leadScore", Operator: model.OP_GREATER_THAN, Value: 40}}},
	}

	branch, err := SelectBranch(groups, map[string]any{"leadScore": float64(90)})
	require.NoError(t, err)
	require.Equal(t, 0, branch)

	branch, err = SelectBranch(groups, map[string]any{"leadScore": float64(60)})
	require.NoError(t, err)
	require.Equal(t, 1, branch)

	branch, err = SelectBranch(groups, map[string]any{"leadScore": float64(10)})
	require.NoError(t, err)
	require.Equal(t, -1, branch)
}
