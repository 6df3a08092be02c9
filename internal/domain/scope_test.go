package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseScopes(t *testing.T) {
	cases := map[string][]string{
		"identify":        {"identify"},
		"identify extra":  {"identify", "extra"},
		"identify,extra":  {"identify", "extra"},
		"identify, extra": {"identify", "extra"},
		"identify+extra":  {"identify", "extra"},
		"  identify  ":    {"identify"},
		"":                {},
	}
	for raw, want := range cases {
		require.Equal(t, want, ParseScopes(raw), "raw=%q", raw)
	}
}

func TestScopeSetsEqual(t *testing.T) {
	require.True(t, ScopeSetsEqual([]string{"a", "b"}, []string{"b", "a"}))
	require.True(t, ScopeSetsEqual([]string{"a"}, []string{"a", "a"}))
	require.False(t, ScopeSetsEqual([]string{"a", "b"}, []string{"a"}))
	require.False(t, ScopeSetsEqual([]string{"a"}, []string{"a", "b"}))
	require.False(t, ScopeSetsEqual([]string{"a"}, []string{"b"}))
	require.True(t, ScopeSetsEqual(nil, nil))
}

func TestValidScope(t *testing.T) {
	require.True(t, ValidScope(ScopeIdentify))
	require.False(t, ValidScope("admin"))
	require.False(t, ValidScope(""))
}
