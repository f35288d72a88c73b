// Package versionhint detects a Java release number in a user query and
// derives a boosted query plus a retrieval filter hint for it.
package versionhint

import (
	"fmt"
	"regexp"
	"strings"
)

// versionPattern matches "java 25", "Java SE 25", "javase25", "jdk-25"
// and similar forms. The rightmost match wins so a trailing version
// qualifier overrides earlier mentions.
var versionPattern = regexp.MustCompile(`(?i)\b(?:java\s*se|javase|java|jdk)[\s-]*(\d{1,2})\b`)

// Filter is a retrieval restriction for a detected version. The
// server-side field match is preferred; the URL and text substrings are
// the client-side fallback when the store cannot filter on the field.
type Filter struct {
	// Field is the payload field to match server-side.
	Field string
	// Value is the exact keyword value for Field.
	Value string
	// URLSubstrings accept a document when its URL contains any entry.
	URLSubstrings []string
	// TextSubstrings accept a document when its title or text contains
	// any entry (case-insensitive).
	TextSubstrings []string
}

// Matches reports whether a document identified by url, title, and
// text passes the client-side fallback filter.
func (f *Filter) Matches(url, title, text string) bool {
	lowerURL := strings.ToLower(url)
	for _, sub := range f.URLSubstrings {
		if strings.Contains(lowerURL, sub) {
			return true
		}
	}
	lowerTitle := strings.ToLower(title)
	lowerText := strings.ToLower(text)
	for _, sub := range f.TextSubstrings {
		if strings.Contains(lowerTitle, sub) || strings.Contains(lowerText, sub) {
			return true
		}
	}
	return false
}

// Hint is the outcome of version detection. When Version is empty, the
// boosted query equals the original and Filter is nil.
type Hint struct {
	Version      string
	BoostedQuery string
	Filter       *Filter
}

// Detected reports whether a version token was found.
func (h Hint) Detected() bool {
	return h.Version != ""
}

// Extract analyzes a query for a trailing Java version token.
func Extract(query string) Hint {
	matches := versionPattern.FindAllStringSubmatch(query, -1)
	if len(matches) == 0 {
		return Hint{BoostedQuery: query}
	}

	v := matches[len(matches)-1][1]

	return Hint{
		Version:      v,
		BoostedQuery: boostPrefix(v) + query,
		Filter: &Filter{
			Field: "docVersion",
			Value: v,
			URLSubstrings: []string{
				"java" + v,
				"jdk" + v,
				"java-" + v,
				"jdk-" + v,
				"/javase/" + v,
			},
			TextSubstrings: []string{
				"java se " + v,
				"jdk " + v,
			},
		},
	}
}

// boostPrefix is a synonym preamble that pulls version-specific chunks
// up in both dense and sparse rankings.
func boostPrefix(v string) string {
	return fmt.Sprintf("JDK %s Java SE %s Java %s release features documentation: ", v, v, v)
}
