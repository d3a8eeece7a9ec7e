package scope

import "strings"

type Scope string

const (
	// API grants access to the Hyperion API itself.
	API Scope = "API"
	// Auth is the scope of third-party OAuth consumers.
	Auth    Scope = "auth"
	Profile Scope = "profile"
	OpenID  Scope = "openid"
)

var allScopes = []Scope{API, Auth, Profile, OpenID}

func All() []string {
	values := make([]string, len(allScopes))
	for i, s := range allScopes {
		values[i] = string(s)
	}
	return values
}

// Parse splits a space separated scope parameter, dropping duplicates and
// keeping the request order. Scope values are case sensitive.
func Parse(raw string) []Scope {
	fields := strings.Fields(raw)
	seen := make(map[string]struct{}, len(fields))
	out := make([]Scope, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, Scope(f))
	}
	return out
}

func Join(scopes []Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}

func Has(scopes []Scope, required Scope) bool {
	for _, s := range scopes {
		if s == required {
			return true
		}
	}
	return false
}

// Strings converts scopes for JSON claims.
func Strings(scopes []Scope) []string {
	out := make([]string, len(scopes))
	for i, s := range scopes {
		out[i] = string(s)
	}
	return out
}

func FromStrings(values []string) []Scope {
	out := make([]Scope, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, Scope(v))
		}
	}
	return out
}
