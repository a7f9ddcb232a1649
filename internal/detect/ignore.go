package detect

import (
	"path/filepath"
	"strings"
)

// Matcher decides which paths are left out of a backup.
type Matcher struct {
	patterns [][]string
}

// NewMatcher compiles glob patterns. Segments support *, ?, [...] and
// **. An absolute pattern must match the whole path; a relative one
// matches any trailing run of segments, so "*.tmp" hides every .tmp
// file and "cache/**" every tree below a dir named cache.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(filepath.ToSlash(p))
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		p = strings.TrimSuffix(p, "/")
		if strings.HasPrefix(p, "/") {
			m.patterns = append(m.patterns, split(p))
			continue
		}
		m.patterns = append(m.patterns, append([]string{"**"}, strings.Split(p, "/")...))
	}
	return m
}

func split(p string) []string {
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// Match reports whether the absolute path is ignored.
func (m *Matcher) Match(path string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	parts := split(filepath.ToSlash(filepath.Clean(path)))
	for _, pat := range m.patterns {
		if matchSegments(pat, parts) {
			return true
		}
	}
	return false
}

// matchSegments matches pattern segments recursively
func matchSegments(pats, parts []string) bool {
	for len(pats) > 0 {
		p := pats[0]
		pats = pats[1:]

		if p == "**" {
			if len(pats) == 0 {
				return true // trailing ** matches anything
			}
			for i := 0; i <= len(parts); i++ {
				if matchSegments(pats, parts[i:]) {
					return true
				}
			}
			return false
		}

		if len(parts) == 0 {
			return false
		}

		ok, _ := filepath.Match(p, parts[0])
		if !ok {
			return false
		}

		parts = parts[1:]
	}

	return len(parts) == 0
}
