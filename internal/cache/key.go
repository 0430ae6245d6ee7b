package cache

import (
	"net/url"
	"sort"
	"strings"

	"github.com/ryanuber/go-glob"
)

// BuildKey derives the cache key for a request. Query parameters are
// sorted by name and value so equivalent queries share a key.
func BuildKey(method, path string, query url.Values) string {
	var b strings.Builder
	b.Grow(len(method) + len(path) + 32)
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(':')
	b.WriteString(path)

	if len(query) > 0 {
		names := make([]string, 0, len(query))
		for name := range query {
			names = append(names, name)
		}
		sort.Strings(names)

		sep := byte('?')
		for _, name := range names {
			values := append([]string(nil), query[name]...)
			sort.Strings(values)
			for _, v := range values {
				b.WriteByte(sep)
				sep = '&'
				b.WriteString(url.QueryEscape(name))
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(v))
			}
		}
	}
	return b.String()
}

// MatchPattern reports whether key matches an invalidation pattern. A
// pattern containing '*' is a glob; any other pattern is a key prefix.
func MatchPattern(pattern, key string) bool {
	if pattern == "" {
		return false
	}
	if strings.Contains(pattern, glob.GLOB) {
		return glob.Glob(pattern, key)
	}
	return strings.HasPrefix(key, pattern)
}

// CollectionPattern returns the pattern that invalidates every cached
// method and query under a resource collection path.
func CollectionPattern(collectionPath string) string {
	return glob.GLOB + ":" + strings.TrimSuffix(collectionPath, "/") + glob.GLOB
}
