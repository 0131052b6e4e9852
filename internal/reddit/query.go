package reddit

import (
	"strings"
	"unicode/utf16"

	apperrors "github.com/onlyscans/scanproxy/internal/errors"
)

// MaxQueryLength is the longest ticker accepted by Search.
const MaxQueryLength = 6

// ValidateQuery rejects empty queries and anything longer than a ticker.
// Length is counted in UTF-16 code units, the unit browsers use for
// string length, so a character outside the BMP counts twice.
func ValidateQuery(q string) error {
	if q == "" {
		return &apperrors.ErrInvalidQuery{Query: q, Reason: "query is required"}
	}
	if len(utf16.Encode([]rune(q))) > MaxQueryLength {
		return &apperrors.ErrInvalidQuery{Query: q, Reason: "query exceeds 6 characters"}
	}
	return nil
}

// ParseSubreddits splits a comma-separated list, dropping blanks.
// It returns nil when nothing remains.
func ParseSubreddits(raw string) []string {
	var subs []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			subs = append(subs, part)
		}
	}
	return subs
}
