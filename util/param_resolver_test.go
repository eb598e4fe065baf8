package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveParams(t *testing.T) {
	data := map[string]any{
		"context": map[string]any{
			"env": map[string]any{"name": "qa", "replicas": float64(3)},
		},
	}
	for scenario, tc := range map[string]struct {
		params   map[string]any
		expected map[string]any
	}{
		"single token keeps type": {
			params:   map[string]any{"replicas": "{$.context.env.replicas}"},
			expected: map[string]any{"replicas": float64(3)},
		},
		"tokens inside text": {
			params:   map[string]any{"msg": "deploying to {$.context.env.name} now"},
			expected: map[string]any{"msg": "deploying to qa now"},
		},
		"nested map and list": {
			params: map[string]any{
				"target": map[string]any{"env": "{$.context.env.name}"},
				"list":   []any{"{$.context.env.name}", 1},
			},
			expected: map[string]any{
				"target": map[string]any{"env": "qa"},
				"list":   []any{"qa", 1},
			},
		},
		"unknown path left untouched": {
			params:   map[string]any{"x": "{$.context.missing.value}"},
			expected: map[string]any{"x": "{$.context.missing.value}"},
		},
		"plain values": {
			params:   map[string]any{"a": true, "b": "text"},
			expected: map[string]any{"a": true, "b": "text"},
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			require.Equal(t, tc.expected, ResolveParams(data, tc.params))
		})
	}
}

func TestReplace(t *testing.T) {
	require.Equal(t, []string{"a", "x", "y", "c"}, Replace([]string{"a", "b", "c"}, "b", "x", "y"))
	require.Equal(t, []string{"a", "c"}, Replace([]string{"a", "b", "c"}, "b"))
	require.Equal(t, []string{"a", "c", "x"}, Replace([]string{"a", "c"}, "b", "x"))
	require.Equal(t, []string{"a", "c"}, Remove([]string{"a", "b", "c"}, "b"))
	require.Equal(t, []string{"a", "b"}, AppendUnique([]string{"a"}, "b", "a"))
}
