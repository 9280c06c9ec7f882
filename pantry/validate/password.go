// pantry/validate/password.go
package validate

import "unicode/utf8"

// MinPasswordLength is the minimum number of characters (runes) a password
// must contain.
const MinPasswordLength = 8

// PasswordClasses records which character classes appear in a password.
type PasswordClasses struct {
	Lower   bool
	Upper   bool
	Digit   bool
	Special bool
}

// Complete reports whether all four classes are present.
func (c PasswordClasses) Complete() bool {
	return c.Lower && c.Upper && c.Digit && c.Special
}

// ClassifyPassword scans s once and reports which classes it contains.
//
// Lower, Upper and Digit are ASCII-only. Special is residual: any rune that
// is not one of those three counts, including spaces, control characters,
// non-ASCII letters and the replacement rune produced by invalid UTF-8.
func ClassifyPassword(s string) PasswordClasses {
	var c PasswordClasses
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			c.Lower = true
		case r >= 'A' && r <= 'Z':
			c.Upper = true
		case r >= '0' && r <= '9':
			c.Digit = true
		default:
			c.Special = true
		}
	}
	return c
}

// PasswordPolicyValid reports whether s is at least MinPasswordLength runes
// long and contains a lowercase letter, an uppercase letter, a digit and a
// special character. Character order does not matter.
func PasswordPolicyValid(s string) bool {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return false
	}
	return ClassifyPassword(s).Complete()
}
