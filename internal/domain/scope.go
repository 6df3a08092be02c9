package domain

import "strings"

// ScopeIdentify grants read access to the user's basic identity.
const ScopeIdentify = "identify"

// Scopes is the full scope vocabulary.
var Scopes = []string{ScopeIdentify}

// ValidScope reports whether s belongs to the vocabulary.
func ValidScope(s string) bool {
	for _, known := range Scopes {
		if s == known {
			return true
		}
	}
	return false
}

// ParseScopes splits a raw scope string on spaces, commas, and plus
// signs, dropping empty entries. "identify", "a b", "a,b", "a, b" and
// "a+b" all parse the same way.
func ParseScopes(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ',' || r == '+'
	})
	scopes := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			scopes = append(scopes, f)
		}
	}
	return scopes
}

// JoinScopes renders scopes in their storage form.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopeSetsEqual compares two scope lists as sets: order-insensitive,
// duplicates ignored. A strict subset or superset is not equal.
func ScopeSetsEqual(a, b []string) bool {
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	matched := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			return false
		}
		matched[s] = struct{}{}
	}
	return len(matched) == len(seen)
}

// ContainsScope reports whether scopes includes want.
func ContainsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
