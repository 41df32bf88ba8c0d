// Package classify decides whether free text names a customer.
//
// The rules mirror how operators actually type: an explicit prefix
// ("Mijoz: Aziz") always wins, logistics boilerplate (incoterm codes,
// city markers) is never a customer, and bare names are accepted only
// when they look like names.
package classify

import (
	"strings"
	"unicode"
)

const (
	minLen   = 2
	maxLen   = 80
	minWords = 1
	maxWords = 4
)

// prefixes are matched case-insensitively at the start of the text.
var prefixes = []string{"mijoz:", "m:", "client:", "customer:"}

// logisticsMarkers flag shipping text: incoterm codes, Russian city
// markers, and the comma/dash patterns of route descriptions.
var logisticsMarkers = []string{"dap", "fca", "cpt", "cip", "cif", "ddp", "г.", "город", ",", " - "}

// extraLetters are the non-ASCII Latin letters seen in customer names
// beyond what the Cyrillic block covers.
const extraLetters = "ÄÖÜäöüİıŞşÇçĞğ"

// Classify maps raw text to a validated customer name. ok is false when
// the text is not a customer label; that is a normal outcome, not an error.
func Classify(text string) (name string, ok bool) {
	if text == "" {
		return "", false
	}

	raw := strings.TrimSpace(text)
	low := strings.ToLower(raw)

	// 1) Prefixed form: trust the prefix, validate only the length.
	for _, p := range prefixes {
		if strings.HasPrefix(low, p) {
			n := clean(raw[len(p):])
			if len([]rune(n)) >= minLen && len([]rune(n)) <= maxLen {
				return n, true
			}
			return "", false
		}
	}

	// 2) Unprefixed text containing logistics markers is never a customer.
	if looksLikeLogistics(low) {
		return "", false
	}

	// 3) Digits disqualify bare text.
	for _, r := range raw {
		if unicode.IsDigit(r) {
			return "", false
		}
	}

	// 4) Keep only name characters, then validate shape.
	var b strings.Builder
	for _, r := range raw {
		if allowedRune(r) {
			b.WriteRune(r)
		}
	}
	cand := clean(b.String())

	rl := len([]rune(cand))
	if rl < minLen || rl > maxLen {
		return "", false
	}
	words := len(strings.Fields(cand))
	if words < minWords || words > maxWords {
		return "", false
	}

	return cand, true
}

// looksLikeLogistics reports whether lowered text contains any shipping
// marker.
func looksLikeLogistics(low string) bool {
	for _, m := range logisticsMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// allowedRune reports whether r may appear in a customer name: Latin and
// Cyrillic letters (including the Uzbek Cyrillic additions), a few Turkic
// Latin letters, spaces, hyphen, and apostrophes.
func allowedRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		return true
	case r >= 'А' && r <= 'я': // Cyrillic А-Я а-я
		return true
	case r == 'Ё' || r == 'ё':
		return true
	case r == 'Ў' || r == 'ў', r == 'Қ' || r == 'қ', r == 'Ғ' || r == 'ғ', r == 'Ҳ' || r == 'ҳ':
		return true
	case strings.ContainsRune(extraLetters, r):
		return true
	case r == '-' || r == '\'' || r == 'ʼ':
		return true
	case unicode.IsSpace(r):
		return true
	}
	return false
}

// clean normalizes separators: slashes and pipes become spaces, runs of
// whitespace collapse, and leading/trailing separator punctuation is
// trimmed.
func clean(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '/' || r == '|' || r == '\\' {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	collapsed := strings.Join(strings.Fields(b.String()), " ")
	return strings.Trim(collapsed, " -:–—")
}
