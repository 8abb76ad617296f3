// Package email holds small, dependency-free helpers for working with email
// addresses: normalization, domain extraction, and deriving display names
// from the local part at signup.
package email

import (
	"strings"
	"unicode"
)

// Normalize lowercases and trims an address. All comparisons in the engine
// run on normalized addresses.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Domain returns the part after the last '@', normalized, or "" when the
// address has no domain.
func Domain(address string) string {
	normalized := Normalize(address)
	at := strings.LastIndexByte(normalized, '@')
	if at < 0 || at == len(normalized)-1 {
		return ""
	}
	return normalized[at+1:]
}

// DeriveName splits the local part into first/last name candidates for new
// identity records. Falls back to "User" when the local part is unusable.
func DeriveName(address string) (string, string) {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
