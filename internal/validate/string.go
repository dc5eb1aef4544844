// Package validate provides input validation and sanitization for free-text
// fields accepted by the PanditSeva API: review comments, location names and
// account emails.
package validate

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrSQLKeyword        = errors.New("string contains SQL keywords")
	ErrEmpty             = errors.New("string is empty")
)

// SQL keywords flagged when they appear as standalone words. Matching on word
// boundaries keeps names like "Executive Enclave" or "Selectpur" valid.
var sqlKeywords = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "EXEC", "EXECUTE", "UNION",
}

// SQL fragments flagged anywhere in the string.
var sqlFragments = []string{"--", "/*", "*/", ";--"}

// Stored procedure prefixes flagged at the start of a word.
var sqlPrefixes = []string{"XP_", "SP_"}

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength        int            // Minimum length (0 = no minimum)
	MaxLength        int            // Maximum length (0 = no maximum)
	AllowedPattern   *regexp.Regexp // Optional regex pattern for allowed characters
	DisallowedWords  []string       // Optional list of disallowed words (case-insensitive)
	CheckSQLKeywords bool           // Whether to check for SQL keywords
	AllowEmpty       bool           // Whether empty strings are allowed
	TrimSpace        bool           // Whether to trim whitespace before validation
}

// String validates a string against the given constraints.
// Returns the validated (and optionally trimmed) string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	// Optionally trim whitespace
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	// Check if empty
	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	// Get actual character count (not byte count)
	length := utf8.RuneCountInString(s)

	// Check minimum length
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}

	// Check maximum length
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	// Check allowed pattern
	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	// Check SQL keywords if enabled
	if constraints.CheckSQLKeywords {
		if err := checkSQLKeywords(s); err != nil {
			return "", err
		}
	}

	// Check disallowed words
	if len(constraints.DisallowedWords) > 0 {
		upper := strings.ToUpper(s)
		for _, word := range constraints.DisallowedWords {
			if strings.Contains(upper, strings.ToUpper(word)) {
				return "", fmt.Errorf("string contains disallowed word: %q", word)
			}
		}
	}

	return s, nil
}

// checkSQLKeywords checks for SQL keywords as whole words, comment fragments and
// stored procedure prefixes. Parameterized queries remain the real defense.
func checkSQLKeywords(s string) error {
	upper := strings.ToUpper(s)
	for _, frag := range sqlFragments {
		if strings.Contains(upper, frag) {
			return fmt.Errorf("%w: contains %q", ErrSQLKeyword, frag)
		}
	}

	words := strings.FieldsFunc(upper, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, word := range words {
		for _, keyword := range sqlKeywords {
			if word == keyword {
				return fmt.Errorf("%w: contains %q", ErrSQLKeyword, keyword)
			}
		}
		for _, prefix := range sqlPrefixes {
			if strings.HasPrefix(word, prefix) {
				return fmt.Errorf("%w: contains %q", ErrSQLKeyword, prefix)
			}
		}
	}
	return nil
}

// SanitizeHTML escapes HTML special characters to prevent XSS attacks.
// This should be called on all user-generated text that will be displayed in HTML.
func SanitizeHTML(s string) string {
	return html.EscapeString(s)
}

// SanitizeString performs both validation and HTML sanitization.
// Returns the sanitized string and an error if validation fails.
func SanitizeString(s string, constraints StringConstraints) (string, error) {
	validated, err := String(s, constraints)
	if err != nil {
		return "", err
	}
	return SanitizeHTML(validated), nil
}

// Field limits.
const (
	MaxReviewCommentLength = 1000
	MaxLocationNameLength  = 200
)

// locationNamePattern admits letters and marks from any script (Devanagari
// place names included), digits and common address punctuation.
var locationNamePattern = regexp.MustCompile(`^[\p{L}\p{M}0-9 ,.'()/\-]+$`)

// ReviewComment validates a review comment:
// - Optional (can be empty)
// - Max 1000 characters
// - HTML escaped on the way in
func ReviewComment(comment string) (string, error) {
	return SanitizeString(comment, StringConstraints{
		MaxLength:  MaxReviewCommentLength,
		AllowEmpty: true,
		TrimSpace:  true,
	})
}

// LocationName validates the human readable label attached to a coordinate.
// It is optional; when present it must be at most 200 characters of place name
// text with no SQL keywords.
func LocationName(name string) (string, error) {
	return SanitizeString(name, StringConstraints{
		MaxLength:        MaxLocationNameLength,
		AllowedPattern:   locationNamePattern,
		CheckSQLKeywords: true,
		AllowEmpty:       true,
		TrimSpace:        true,
	})
}
