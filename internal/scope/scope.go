// Package scope implements file-glob + tag scope matching shared by the
// indexer's exclude-list handling and the learning store's recall queries
// (spec.md §4.6, §9 "Scope matching").
//
// Grounded on standardbeagle-lci's internal/indexing/watcher.go, which uses
// bmatcuk/doublestar for the same leading-`**`/segment-wildcard glob
// semantics spec.md calls for.
package scope

import (
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/codegraph/internal/types"
)

// normalize lower-cases path and pattern on Windows, where matching is
// case-insensitive; Unix matching stays case-sensitive (spec.md §9).
func normalize(s string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(s)
	}
	return s
}

// MatchGlob reports whether path matches glob pattern, honoring the
// leading-`**` and segment-wildcard semantics of doublestar, case-sensitive
// on Unix and case-insensitive on Windows.
func MatchGlob(pattern, path string) bool {
	ok, err := doublestar.Match(normalize(pattern), normalize(path))
	if err != nil {
		return false
	}
	return ok
}

// Matches reports whether candidate matches scope s: the caller must supply
// at least one glob that matches one of s's globs, or at least one shared
// tag. A scope query with no globs and no tags matches nothing (spec.md
// §4.6 "bare empty queries match nothing").
func Matches(s types.Scope, query types.Scope) bool {
	if len(query.Globs) == 0 && len(query.Tags) == 0 {
		return false
	}

	for _, qg := range query.Globs {
		for _, sg := range s.Globs {
			if MatchGlob(sg, qg) || MatchGlob(qg, sg) || sg == qg {
				return true
			}
		}
	}

	tagSet := make(map[string]bool, len(s.Tags))
	for _, t := range s.Tags {
		tagSet[t] = true
	}
	for _, t := range query.Tags {
		if tagSet[t] {
			return true
		}
	}

	return false
}

// MatchesAnyExclude reports whether name (a single path segment, e.g. a
// directory name) is present in the exclude list, used by the indexer's
// enumeration step (spec.md §4.4).
func MatchesAnyExclude(name string, excludes []string) bool {
	for _, ex := range excludes {
		if name == ex {
			return true
		}
	}
	return false
}
