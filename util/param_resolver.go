package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRe = regexp.MustCompile(`{(.*?)}`)

// ResolveParams substitutes data references in a parameter map against the
// given data. A string value that is exactly a "$..." jsonpath resolves to
// the referenced value; "{$...}" tokens embedded in strings are replaced
// inline. Nested maps and lists are resolved recursively.
func ResolveParams(data map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any)
	resolveParams(data, params, output)
	return output
}

func resolveParams(data map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		switch v := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			output[k] = out
			resolveParams(data, v, out)
		case []any:
			output[k] = resolveList(data, v)
		case string:
			output[k] = resolveString(data, v)
		default:
			output[k] = v
		}
	}
}

func resolveList(data map[string]any, list []any) []any {
	output := make([]any, 0, len(list))
	for _, v := range list {
		switch v := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			resolveParams(data, v, out)
			output = append(output, out)
		case string:
			output = append(output, resolveString(data, v))
		default:
			output = append(output, v)
		}
	}
	return output
}

func resolveString(data map[string]any, s string) any {
	if strings.HasPrefix(s, "$") {
		value, err := jsonpath.JsonPathLookup(data, s)
		if err != nil {
			return nil
		}
		return value
	}
	tokens := tokenRe.FindAllString(s, -1)
	for _, token := range tokens {
		ref := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		if !strings.HasPrefix(ref, "$") {
			continue
		}
		value, _ := jsonpath.JsonPathLookup(data, ref)
		s = strings.ReplaceAll(s, token, fmt.Sprintf("%v", value))
	}
	return s
}
