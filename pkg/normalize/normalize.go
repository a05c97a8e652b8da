// Package normalize holds the text normalization shared by the event
// classifier and the discrepancy reconciler.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Text folds compatibility forms such as ligatures and full-width letters
// with NFKC, lower-cases the result and collapses every run of whitespace
// to a single space, trimming both ends. Two strings are considered the
// same value when their normalized forms are equal.
func Text(s string) string {
	if s == "" {
		return ""
	}
	// Casers carry state and must not be shared between goroutines.
	lower := cases.Lower(language.Und).String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(lower), " ")
}

// Equal reports whether a and b normalize to the same text.
func Equal(a, b string) bool {
	return Text(a) == Text(b)
}

// Contains reports whether needle occurs in haystack after both are
// normalized. An empty needle never matches.
func Contains(haystack, needle string) bool {
	n := Text(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Text(haystack), n)
}

// IsBlank reports whether s is empty after normalization.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
