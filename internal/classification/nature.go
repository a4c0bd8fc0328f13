package classification

import (
	"strings"
	"unicode"
)

// Nature is a nature-of-expense code split into its positional parts.
type Nature struct {
	Code     string
	Category string
	Group    string
	Modality string
	Element  string
}

// ParseNature splits a nature code such as "33903900" (or "3.3.90.39.00")
// into category, group, modality and element. Missing positions are empty.
func ParseNature(code string) Nature {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, code)

	n := Nature{Code: digits}
	n.Category = slice(digits, 0, 1)
	n.Group = slice(digits, 1, 2)
	n.Modality = slice(digits, 2, 4)
	n.Element = slice(digits, 4, 6)
	return n
}

func slice(s string, from, to int) string {
	if len(s) < to {
		if len(s) <= from {
			return ""
		}
		return s[from:]
	}
	return s[from:to]
}
