package middleware

import (
	"path"
	"strings"
)

// PathMatcher matches request paths against exact entries and prefix
// entries. A prefix entry matches the prefix itself and anything below it,
// never a longer sibling: "/admin" matches "/admin/x" but not "/administrator".
type PathMatcher struct {
	exact    map[string]struct{}
	prefixes []string
}

// NewPathMatcher builds a matcher where entries ending in "/**" are prefixes
// and all others are exact.
func NewPathMatcher(patterns []string) *PathMatcher {
	m := &PathMatcher{exact: make(map[string]struct{})}
	for _, p := range patterns {
		if base, ok := strings.CutSuffix(p, "/**"); ok {
			m.addPrefix(base)
			continue
		}
		if p != "" {
			m.exact[p] = struct{}{}
		}
	}
	return m
}

// NewPrefixMatcher builds a matcher where every entry is a prefix.
func NewPrefixMatcher(prefixes []string) *PathMatcher {
	m := &PathMatcher{exact: make(map[string]struct{})}
	for _, p := range prefixes {
		m.addPrefix(strings.TrimSuffix(p, "/**"))
	}
	return m
}

func (m *PathMatcher) addPrefix(base string) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = "/"
	}
	m.prefixes = append(m.prefixes, base)
}

// Match reports whether p matches any entry. p is cleaned first so that
// "/api/./admin" and "/api//admin" are not treated differently from "/api/admin".
func (m *PathMatcher) Match(p string) bool {
	if m == nil {
		return false
	}
	p = cleanPath(p)
	if _, ok := m.exact[p]; ok {
		return true
	}
	for _, prefix := range m.prefixes {
		if prefix == "/" || p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
