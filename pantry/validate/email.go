// pantry/validate/email.go
package validate

import "regexp"

// emailPattern requires a local part, an '@', a domain and a dot-separated
// final segment, none of which may contain whitespace or another '@'.
//
// Whitespace here is the Unicode set (space separators, line and paragraph
// separators, vertical tab and BOM included), not only RE2's ASCII \s.
var emailPattern = regexp.MustCompile(
	`^[^@\s\v\p{Z}\x{FEFF}]+@[^@\s\v\p{Z}\x{FEFF}]+\.[^@\s\v\p{Z}\x{FEFF}]+$`,
)

// EmailFormatValid reports whether s has the minimal local@domain.tld shape.
//
// It is a structural guardrail, not an RFC 5322 parser: it does not check
// domain existence, length limits or normalization, and it does not trim
// surrounding whitespace (" a@b.co" is invalid).
func EmailFormatValid(s string) bool {
	return emailPattern.MatchString(s)
}
