package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts user or spreadsheet text to a decimal amount.
//
// Currency symbols and whitespace are ignored. Either ',' or '.' may be the
// decimal separator: when both appear the last one wins and the other is
// treated as grouping, and a separator repeated more than once is always
// grouping. The sign is preserved so callers decide whether negatives are
// acceptable.
//
// Examples:
//
//	ParseAmount("350")        -> 350
//	ParseAmount("12,50")      -> 12.5
//	ParseAmount("$ 1.234,56") -> 1234.56
//	ParseAmount("1,234.56")   -> 1234.56
func ParseAmount(s string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',', r == '-', r == '+', r == 'e', r == 'E':
			b.WriteRune(r)
		case unicode.IsSpace(r), unicode.Is(unicode.Sc, r):
			// currency symbols and grouping spaces
		default:
			return decimal.Zero, ErrInvalidAmount
		}
	}
	clean := b.String()
	if clean == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	clean = normalizeSeparators(clean)
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func normalizeSeparators(s string) string {
	commas := strings.Count(s, ",")
	dots := strings.Count(s, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case commas > 1:
		return strings.ReplaceAll(s, ",", "")
	case dots > 1:
		return strings.ReplaceAll(s, ".", "")
	case commas == 1:
		return strings.Replace(s, ",", ".", 1)
	default:
		return s
	}
}

// FormatAmount renders an amount with two decimals for plain-text output.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
