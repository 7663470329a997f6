// Package tmplexpand expands youtube-dl-style "%(key)s" output templates
// against a flat string map. It is the Go replacement for the teacher's
// Python "fname_format % info.format_info.get_info()" idiom, which relies on
// Python's % string formatting and has no direct Go equivalent.
package tmplexpand

import (
	"fmt"
	"regexp"
	"sort"
)

var keyPattern = regexp.MustCompile(`%\(([a-zA-Z_]+)\)s`)

// Blacklist holds keys that are never allowed inside a filename template
// because they can contain path separators or excessive length (the
// teacher's FilenameFormatBlacklist).
var Blacklist = map[string]bool{
	"description": true,
}

// Expand substitutes every "%(key)s" occurrence in format with fields[key].
// It returns an error naming the first unknown or blacklisted key, mirroring
// the teacher's KeyError handling in main().
func Expand(format string, fields map[string]string) (string, error) {
	var firstErr error
	result := keyPattern.ReplaceAllStringFunc(format, func(m string) string {
		key := keyPattern.FindStringSubmatch(m)[1]
		if Blacklist[key] {
			if firstErr == nil {
				firstErr = fmt.Errorf("format key %q is not allowed in a filename template", key)
			}
			return m
		}
		val, ok := fields[key]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("unknown output format key: %s", key)
			}
			return m
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Keys returns the sorted set of keys referenced by format, for --help-style
// introspection.
func Keys(format string) []string {
	matches := keyPattern.FindAllStringSubmatch(format, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	sort.Strings(out)
	return out
}
