package util

import (
	"regexp"
	"strings"
)

// placeholderRe matches {{var}} markers with optional inner whitespace.
// Variable names follow identifier rules (letter/underscore first).
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Placeholders returns the unique placeholder names referenced by text in
// first-occurrence order.
func Placeholders(text string) []string {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return nil
	}

	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Substitute replaces every {{var}} marker with its value from vars.
// Placeholders without a corresponding entry are left untouched; callers are
// expected to validate the variable set beforehand.
func Substitute(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}

	return placeholderRe.ReplaceAllStringFunc(text, func(marker string) string {
		name := placeholderRe.FindStringSubmatch(marker)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return marker
	})
}

// SameStringSet reports whether a and b contain exactly the same names,
// ignoring order and duplicates.
func SameStringSet(a, b []string) bool {
	as := map[string]bool{}
	for _, s := range a {
		as[s] = true
	}
	bs := map[string]bool{}
	for _, s := range b {
		bs[s] = true
	}
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if !bs[s] {
			return false
		}
	}
	return true
}
