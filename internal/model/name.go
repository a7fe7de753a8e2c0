package model

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	nameNoiseRe  = regexp.MustCompile(`[^A-Z0-9 '\-]`)
	digitsRe     = regexp.MustCompile(`\D`)
)

// SplitName splits a display name into first name and the remainder.
func SplitName(displayName string) (first, last string) {
	parts := strings.Fields(displayName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// NormalizeName upper-cases a person or place name, folds accents, drops
// punctuation other than apostrophes and hyphens and collapses whitespace.
//
//	"  José  O'Neil " -> "JOSE O'NEIL"
func NormalizeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err == nil {
		s = folded
	}
	s = strings.ToUpper(s)
	s = nameNoiseRe.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TitleName renders a name in title case for outbound payloads.
func TitleName(s string) string {
	return cases.Title(language.AmericanEnglish).String(strings.ToLower(strings.TrimSpace(s)))
}

// PhoneDigits strips everything but digits from a phone number.
func PhoneDigits(s string) string {
	return digitsRe.ReplaceAllString(s, "")
}
