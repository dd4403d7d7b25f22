package extraction

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// qualityGate accepts strategy output only if, after whitespace
// normalization and NUL stripping, it is longer than minChars and is not
// merely an echo of the uploaded filename. PDF libraries fall back to
// document metadata when no text layer exists, which surfaces as exactly
// the filename stem; that is a known false positive, not extracted text.
//
// Returns the cleaned text and whether it passed.
func qualityGate(raw, filename string, minChars int) (string, bool) {
	cleaned := strings.TrimSpace(stripNuls(raw))
	collapsed := collapseWhitespace(cleaned)

	if utf8.RuneCountInString(collapsed) <= minChars {
		return "", false
	}
	if strings.EqualFold(collapsed, filenameStem(filename)) {
		return "", false
	}
	return cleaned, true
}

// filenameStem returns the filename with directory and extension removed.
func filenameStem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// stripNuls removes NUL bytes, which PDF text extraction leaves behind
// for unmapped glyphs.
func stripNuls(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// collapseWhitespace folds all whitespace runs into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
