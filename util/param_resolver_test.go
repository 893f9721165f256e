package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveParams(t *testing.T) {
	data := map[string]any{
		"email":     "ana@example.com",
		"firstName": "Ana",
		"address": map[string]any{
			"city": "Berlin",
		},
	}
	params := map[string]any{
		"to":       "$.email",
		"subject":  "Welcome, {$.firstName}!",
		"greeting": "Hi {$.firstName} from {$.address.city}",
		"literal":  "no references here",
		"count":    3,
		"nested": map[string]any{
			"city": "$.address.city",
		},
		"list":    []any{"$.email", "plain", map[string]any{"name": "$.firstName"}},
		"missing": "$.does.not.exist",
	}

	out := ResolveParams(data, params)
	require.Equal(t, "ana@example.com", out["to"])
	require.Equal(t, "Welcome, Ana!", out["subject"])
	require.Equal(t, "Hi Ana from Berlin", out["greeting"])
	require.Equal(t, "no references here", out["literal"])
	require.Equal(t, 3, out["count"])
	require.Equal(t, map[string]any{"city": "Berlin"}, out["nested"])
	require.Equal(t, []any{"ana@example.com", "plain", map[string]any{"name": "Ana"}}, out["list"])
	require.Nil(t, out["missing"])
}
