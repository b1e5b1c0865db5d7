package wildcard

import (
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

const defaultCacheSize = 256

// HasWildcard reports whether the string contains unescaped pattern syntax, so it may match more than one name.
func HasWildcard(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

// Pattern matches names.
type Pattern interface {
	Match(name string) bool
}

// NewMatcher creates new matcher caching up to cacheSize compiled patterns.
func NewMatcher(cacheSize int) (*Matcher, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, glob.Glob](cacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Matcher{
		cache: cache,
	}, nil
}

// Matcher compiles patterns and keeps most recently used ones.
type Matcher struct {
	cache *lru.Cache[string, glob.Glob]
}

// Compile returns compiled pattern.
func (m *Matcher) Compile(pattern string) (Pattern, error) {
	if g, ok := m.cache.Get(pattern); ok {
		return g, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern %q", pattern)
	}
	m.cache.Add(pattern, g)
	return g, nil
}

// Match matches name against the pattern. Invalid pattern never matches.
func (m *Matcher) Match(pattern, name string) bool {
	if !HasWildcard(pattern) {
		return pattern == name
	}
	p, err := m.Compile(pattern)
	if err != nil {
		return false
	}
	return p.Match(name)
}

// MatchPath matches slash-separated path against slash-separated pattern segment by segment.
// Both must have the same number of segments, leading slash is ignored.
func (m *Matcher) MatchPath(pattern, path string) bool {
	pattern = strings.TrimPrefix(pattern, "/")
	path = strings.TrimPrefix(path, "/")
	if pattern == "" || path == "" {
		return pattern == path
	}

	for {
		patternSegment, patternRest, patternMore := strings.Cut(pattern, "/")
		pathSegment, pathRest, pathMore := strings.Cut(path, "/")

		if !m.Match(patternSegment, pathSegment) {
			return false
		}
		if patternMore != pathMore {
			return false
		}
		if !patternMore {
			return true
		}

		pattern = patternRest
		path = pathRest
	}
}
