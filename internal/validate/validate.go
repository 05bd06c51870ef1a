// Package validate holds the syntactic predicates applied to request
// parameters before any business logic runs. All checks are pure regex or
// length tests; semantic checks (uniqueness, friendship, …) live in the
// service layer.
package validate

import (
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/language"
)

var (
	// usernameRE: leading word char, 2–16 total, word chars plus '.' and '-'.
	usernameRE = regexp.MustCompile(`(?i)^\w[\w.-]{1,15}$`)

	// emailRE is deliberately pragmatic: local part, one '@', dotted domain
	// with a 2–4 letter TLD.
	emailRE = regexp.MustCompile(`(?i)^[\w.%+-]+@[a-z0-9.-]+\.[a-z]{2,4}$`)

	// passwordRE: 8–32 of word chars and a fixed punctuation set.
	passwordRE = regexp.MustCompile(`(?i)^[\w!?$%&=+~#*:;,.-]{8,32}$`)
)

// Username reports whether s is a well-formed username.
func Username(s string) bool { return usernameRE.MatchString(s) }

// Email reports whether s looks like a deliverable address.
func Email(s string) bool { return emailRE.MatchString(s) }

// Password reports whether s is an acceptable password.
func Password(s string) bool { return passwordRE.MatchString(s) }

// Name reports whether s is a valid first or last name: any runes, at most 32.
func Name(s string) bool { return utf8.RuneCountInString(s) <= 32 }

// Gender reports whether s is one of the accepted values. The empty string
// stands for "not stated" (wire value "null").
func Gender(s string) bool { return s == "" || s == "m" || s == "f" }

// Language reports whether s parses as a BCP-47 tag and is one of the
// languages the deployment serves templates for.
func Language(s string, allowed []string) bool {
	if _, err := language.Parse(s); err != nil {
		return false
	}
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}
