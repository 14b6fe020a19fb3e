// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
	"unicode"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
//
// Example:
//
//	DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// Slugify lowercases text and collapses runs of non-alphanumeric characters
// into single hyphens, then drops any word present in stopWords. The stop-word
// set is injected rather than read from process-wide state so callers control
// which words are reserved.
//
// Example:
//
//	Slugify("My Test Registry", map[string]struct{}{"test": {}})
//	// Returns: "my-registry"
func Slugify(text string, stopWords map[string]struct{}) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(stopWords) == 0 {
		return slug
	}
	words := strings.Split(slug, "-")
	kept := words[:0]
	for _, word := range words {
		if _, stop := stopWords[word]; !stop && word != "" {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, "-")
}
