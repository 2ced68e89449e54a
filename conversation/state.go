// Package conversation runs the per-user chat state machine: onboarding,
// the main menu, hand-off to the chip console and the operator commands.
package conversation

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	StateStart                  = "start"
	StateAwaitingName           = "awaiting_name"
	StateCreatingAccount        = "creating_account"
	StateMenu                   = "menu"
	StateConfirmAmount          = "confirm_amount"
	StateAwaitingCreditAccount  = "awaiting_account_name_for_credit"
	StateConfirmWithdrawal      = "confirm_withdrawal"
	StateAwaitingWithdrawAmount = "awaiting_withdrawal_amount"
	StateAwaitingWithdrawCBU    = "awaiting_cbu_for_withdrawal"
)

// MaxNameRunes bounds the name a new user picks.
const MaxNameRunes = 12

var menuKeywords = map[string]bool{
	"menu":           true,
	"back":           true,
	"back to menu":   true,
	"volver":         true,
	"volver al menu": true,
}

// StripDiacritics decomposes s and drops combining marks, so "Pérez" becomes
// "Perez".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize folds user input for keyword matching.
func Normalize(s string) string {
	s = strings.ToLower(StripDiacritics(s))
	return strings.Join(strings.Fields(s), " ")
}

func IsMenuKeyword(s string) bool {
	return menuKeywords[Normalize(s)]
}

// ValidName reports whether s is acceptable as a chosen name: non-empty, no
// whitespace, at most MaxNameRunes runes.
func ValidName(s string) bool {
	if s == "" || len([]rune(s)) > MaxNameRunes {
		return false
	}
	return !strings.ContainsFunc(s, unicode.IsSpace)
}

// CandidateUsername strips diacritics and anything that is not an ASCII
// letter or digit from name, then appends digits. It returns "" when nothing
// of name survives.
func CandidateUsername(name, digits string) string {
	var b strings.Builder
	for _, r := range StripDiacritics(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + digits
}
