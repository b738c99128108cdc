// Package template implements the closed single-brace placeholder grammar
// of spec.md §4.3. No ecosystem templating library fits this grammar
// exactly: text/template and the teacher's own osteele/liquid both support
// conditionals, pipelines, and filters that spec.md requires to be absent
// ("no escaping is performed"), so accepting either engine's syntax would
// silently accept input the spec requires to reject. Hand-rolled scanner,
// matching the teacher's own hand-rolled-helper style for grammars it must
// enforce exactly (see internal/segmentation/query_builder.go).
package template

import (
	"errors"
	"strings"
)

// ErrMissingVariables names the failure where one or more placeholders
// have no non-empty value in the attribute bag. Render does not return it;
// Render reports the missing names through its second return value.
var ErrMissingVariables = errors.New("template: missing or empty variables")

// Render substitutes every `{name}` placeholder in tmpl with the
// corresponding value from attrs. A placeholder is "missing" if the
// attribute bag lacks the key or holds an empty string; all missing names
// are collected and rendering fails (content is returned empty) rather than
// partially substituted.
func Render(tmpl string, attrs map[string]string) (content string, missing []string) {
	var b strings.Builder
	seen := make(map[string]bool)
	i := 0
	for i < len(tmpl) {
		if tmpl[i] != '{' {
			b.WriteByte(tmpl[i])
			i++
			continue
		}
		end := indexPlaceholderEnd(tmpl, i)
		if end < 0 {
			// Unterminated or invalid brace content: treat literally.
			b.WriteByte(tmpl[i])
			i++
			continue
		}
		name := tmpl[i+1 : end]
		val, ok := attrs[name]
		if !ok || val == "" {
			if !seen[name] {
				missing = append(missing, name)
				seen[name] = true
			}
		} else {
			b.WriteString(val)
		}
		i = end + 1
	}

	if len(missing) > 0 {
		return "", missing
	}
	return b.String(), nil
}

// indexPlaceholderEnd returns the index of the closing '}' for a
// placeholder starting at tmpl[start] == '{', provided the enclosed name is
// alphanumeric-or-underscore and non-empty; otherwise -1.
func indexPlaceholderEnd(tmpl string, start int) int {
	j := start + 1
	for j < len(tmpl) && isNameByte(tmpl[j]) {
		j++
	}
	if j == start+1 || j >= len(tmpl) || tmpl[j] != '}' {
		return -1
	}
	return j
}

func isNameByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		return true
	default:
		return false
	}
}

// Placeholders returns the set of distinct `{name}` placeholder names
// appearing in tmpl, in order of first appearance. The Store does not call
// it.
func Placeholders(tmpl string) []string {
	var names []string
	seen := make(map[string]bool)
	i := 0
	for i < len(tmpl) {
		if tmpl[i] != '{' {
			i++
			continue
		}
		end := indexPlaceholderEnd(tmpl, i)
		if end < 0 {
			i++
			continue
		}
		name := tmpl[i+1 : end]
		if !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
		i = end + 1
	}
	return names
}
