package watch

import (
	"path"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultIgnore contains default patterns to ignore.
var DefaultIgnore = []string{
	".git",
	"node_modules",
	".DS_Store",
	"*.tmp",
	"*.swp",
	"*~",
}

// shouldIgnore checks if a path matches any ignore pattern. A pattern
// without a separator or glob matches a whole path segment; a glob without
// a separator matches the base name.
func shouldIgnore(patterns []string, fullPath string) bool {
	name := filepath.Base(fullPath)
	normalized := filepath.ToSlash(fullPath)

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if name == pattern {
			return true
		}

		hasPathSep := strings.ContainsAny(pattern, `/\`)
		hasGlob := strings.ContainsAny(pattern, "*?[")

		switch {
		case hasGlob && hasPathSep:
			if matched, _ := path.Match(filepath.ToSlash(pattern), normalized); matched {
				return true
			}
		case hasGlob:
			if matched, _ := filepath.Match(pattern, name); matched {
				return true
			}
		case hasPathSep:
			if containsSegments(splitSegments(normalized), splitSegments(filepath.ToSlash(pattern))) {
				return true
			}
		default:
			if slices.Contains(splitSegments(normalized), pattern) {
				return true
			}
		}
	}
	return false
}

// containsSegments reports whether want appears as a contiguous run in
// parts.
func containsSegments(parts, want []string) bool {
	if len(want) == 0 || len(want) > len(parts) {
		return false
	}
	for i := 0; i <= len(parts)-len(want); i++ {
		if slices.Equal(parts[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func splitSegments(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part != "" && part != "." {
			out = append(out, part)
		}
	}
	return out
}
