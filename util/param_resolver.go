package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRegex = regexp.MustCompile("{(.*?)}")

// ResolveParams replaces every {$.path} token found in string values of params
// with the value looked up in data. A string made of a single token keeps the
// looked up value's type.
func ResolveParams(data map[string]any, params map[string]any) map[string]any {
	output := make(map[string]any, len(params))
	resolveParams(data, params, output)
	return output
}

func resolveParams(data map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		output[k] = resolveValue(data, v)
	}
}

func resolveValue(data map[string]any, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		resolveParams(data, val, out)
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, resolveValue(data, item))
		}
		return out
	case string:
		return resolveString(data, val)
	default:
		return v
	}
}

func resolveString(data map[string]any, s string) any {
	tokens := tokenRegex.FindAllString(s, -1)
	if len(tokens) == 1 && tokens[0] == s {
		if value, ok := lookupToken(data, s); ok {
			return value
		}
		return s
	}
	for _, token := range tokens {
		if value, ok := lookupToken(data, token); ok {
			s = strings.ReplaceAll(s, token, fmt.Sprintf("%v", value))
		}
	}
	return s
}

func lookupToken(data map[string]any, token string) (any, bool) {
	path := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
	if !strings.HasPrefix(path, "$") {
		return nil, false
	}
	value, err := jsonpath.JsonPathLookup(data, path)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Lookup evaluates a single jsonpath expression, with or without the
// surrounding braces.
func Lookup(data map[string]any, expression string) (any, error) {
	path := strings.TrimSuffix(strings.TrimPrefix(expression, "{"), "}")
	return jsonpath.JsonPathLookup(data, path)
}
