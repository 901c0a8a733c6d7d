// Package validation provides input validation utilities
package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// PasswordSymbols is the set of characters accepted as the required symbol.
const PasswordSymbols = `!@#$%^&*(),.?":{}|<>`

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 8

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

// Password rule messages, reported in this order.
const (
	MsgPasswordLength    = "Password must be at least 8 characters long"
	MsgPasswordTooLong   = "Password must be at most 72 bytes long"
	MsgPasswordLowercase = "Password must contain at least one lowercase letter"
	MsgPasswordUppercase = "Password must contain at least one uppercase letter"
	MsgPasswordDigit     = "Password must contain at least one number"
	MsgPasswordSymbol    = `Password must contain at least one special character (!@#$%^&*(),.?":{}|<>)`
)

// PasswordStrength is the outcome of ValidatePasswordStrength.
type PasswordStrength struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// ValidatePasswordStrength checks every rule and reports all violations.
func ValidatePasswordStrength(password string) PasswordStrength {
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(PasswordSymbols, r):
			hasSymbol = true
		}
	}

	errs := make([]string, 0, 5)
	if utf8.RuneCountInString(password) < MinPasswordLength {
		errs = append(errs, MsgPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		errs = append(errs, MsgPasswordTooLong)
	}
	if !hasLower {
		errs = append(errs, MsgPasswordLowercase)
	}
	if !hasUpper {
		errs = append(errs, MsgPasswordUppercase)
	}
	if !hasDigit {
		errs = append(errs, MsgPasswordDigit)
	}
	if !hasSymbol {
		errs = append(errs, MsgPasswordSymbol)
	}

	return PasswordStrength{IsValid: len(errs) == 0, Errors: errs}
}
