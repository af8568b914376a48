package auth

import (
	"net/mail"
	"strings"
	"unicode"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt truncates beyond this
)

// ValidateEmail reports whether the address is acceptable as an account
// email. RFC 5322 parsing alone admits local-only addresses, so a dotted
// domain is required on top of it.
func ValidateEmail(email string) bool {
	if email == "" || len(email) >= 255 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	domain := email[strings.LastIndex(email, "@")+1:]
	return strings.Contains(domain, ".")
}

const (
	classUpper = 1 << iota
	classLower
	classDigit
	classSymbol
)

// ValidatePassword enforces the password policy: between 8 and 72
// characters, drawing on at least three of the four character classes
// (upper, lower, digit, symbol).
func ValidatePassword(password string) bool {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return false
	}

	classes := 0
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			classes |= classUpper
		case unicode.IsLower(r):
			classes |= classLower
		case unicode.IsDigit(r):
			classes |= classDigit
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			classes |= classSymbol
		}
	}

	distinct := 0
	for mask := classes; mask != 0; mask &= mask - 1 {
		distinct++
	}
	return distinct >= 3
}
