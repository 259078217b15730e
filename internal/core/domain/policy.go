package domain

import "strings"

// RouteRule maps a path pattern to the kinds allowed through it.
//
// A pattern ending in "/*" matches its prefix and anything below it;
// any other pattern matches only itself.
type RouteRule struct {
	Pattern      string          `json:"pattern" koanf:"pattern"`
	AllowedKinds []PrincipalKind `json:"allowed_kinds" koanf:"allowed_kinds"`
}

// IsWildcard reports whether the rule is a trailing-wildcard rule.
func (r RouteRule) IsWildcard() bool {
	return strings.HasSuffix(r.Pattern, "/*")
}

// Matches reports whether path falls under the rule.
func (r RouteRule) Matches(path string) bool {
	return MatchPattern(r.Pattern, path)
}

// Allows reports whether kind is listed in the rule.
func (r RouteRule) Allows(kind PrincipalKind) bool {
	for _, k := range r.AllowedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// RoutePolicy is an ordered rule list.
type RoutePolicy []RouteRule

// DefaultRoutePolicy gates the customer, seller and admin areas.
var DefaultRoutePolicy = RoutePolicy{
	{Pattern: "/customer", AllowedKinds: []PrincipalKind{KindBuyer}},
	{Pattern: "/customer/*", AllowedKinds: []PrincipalKind{KindBuyer}},
	{Pattern: "/seller", AllowedKinds: []PrincipalKind{KindMerchant}},
	{Pattern: "/seller/*", AllowedKinds: []PrincipalKind{KindMerchant}},
	{Pattern: "/admin", AllowedKinds: []PrincipalKind{KindAdministrator}},
	{Pattern: "/admin/*", AllowedKinds: []PrincipalKind{KindAdministrator}},
}

// DefaultPublicRoutes are reachable without a session.
var DefaultPublicRoutes = []string{"/", "/login", "/access-denied"}

// Lookup returns the first exact rule for path, else the first wildcard rule.
func (p RoutePolicy) Lookup(path string) (RouteRule, bool) {
	for _, r := range p {
		if !r.IsWildcard() && r.Pattern == path {
			return r, true
		}
	}
	for _, r := range p {
		if r.IsWildcard() && r.Matches(path) {
			return r, true
		}
	}
	return RouteRule{}, false
}

// MatchPattern matches path against an exact or trailing-wildcard pattern.
// "/seller/*" matches "/seller", "/seller/" and "/seller/orders/7" but not
// "/sellers".
func MatchPattern(pattern, path string) bool {
	prefix, ok := strings.CutSuffix(pattern, "/*")
	if !ok {
		return pattern == path
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// NormalizePath strips the query and any trailing slash (except for "/").
func NormalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}
