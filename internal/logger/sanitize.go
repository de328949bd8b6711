package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxQueryLogLength caps user query text in logs
	MaxQueryLogLength = 500
	// MaxErrorLogLength caps error messages in logs
	MaxErrorLogLength = 1000
	// MaxPathLogLength caps URL paths in logs
	MaxPathLogLength = 200
)

// SanitizePath sanitizes a request path for logging. Paths embed session
// ids, so the same control-character stripping applies.
func SanitizePath(path string) string {
	return SanitizeText(path, MaxPathLogLength)
}

// SanitizeText strips control characters, repairs invalid UTF-8 and
// truncates to maxLength so user-supplied text is safe to log.
func SanitizeText(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxQueryLogLength
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if len(s) > maxLength {
		s = s[:maxLength] + "..."
	}
	return s
}

// SanitizeError sanitizes an error message for safe logging
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeText(err.Error(), MaxErrorLogLength)
}
