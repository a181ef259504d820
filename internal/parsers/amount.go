// Package parsers turns bank statement files (CSV, PDF) into raw
// transaction records. Format detection is content-driven: headers and
// delimiters are sniffed rather than configured.
package parsers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = []string{"$", "€", "£", "¥", "₹", "₽", "₩", "₿"}

var (
	parensNegativePattern = regexp.MustCompile(`^\s*\(\s*([^)]+)\s*\)\s*$`)
	drCrPattern           = regexp.MustCompile(`(?i)\s*(DR|CR|D|C)\s*$`)
	euDecimalTail         = regexp.MustCompile(`,\d{1,4}$`)
	euOnlyCommaTail       = regexp.MustCompile(`,\d{1,2}$`)
	euLocaleCommaTail     = regexp.MustCompile(`,\d{3,4}$`)
)

// Locale hints for ambiguous separator handling.
const (
	LocaleUS = "US"
	LocaleEU = "EU"
)

// ParseAmount parses a statement amount string into its absolute value and
// a negative flag. Handled forms: plain and signed numbers, currency
// symbols, thousands separators, parenthesized negatives, trailing DR/CR
// indicators and European decimal commas.
//
// Ambiguous single-comma values like "1,234" follow the locale hint: US
// reads a thousands separator, EU a decimal comma.
func ParseAmount(raw string, locale string) (decimal.Decimal, bool, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, false, fmt.Errorf("empty amount string")
	}

	s := strings.TrimSpace(raw)
	negative := false

	if m := parensNegativePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
		negative = true
	}

	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(s[1:])
	}

	if m := drCrPattern.FindStringSubmatch(s); m != nil {
		indicator := strings.ToUpper(m[1])
		if indicator == "DR" || indicator == "D" {
			negative = true
		}
		s = strings.TrimSpace(drCrPattern.ReplaceAllString(s, ""))
	}

	for _, symbol := range currencySymbols {
		s = strings.ReplaceAll(s, symbol, "")
	}
	s = strings.TrimSpace(s)

	s = normalizeSeparators(s, locale)
	s = strings.ReplaceAll(s, " ", "")

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("cannot parse amount %q: %w", raw, err)
	}

	return amount.Abs(), negative, nil
}

// ParseSignedAmount parses an amount string into a signed decimal.
func ParseSignedAmount(raw string, locale string) (decimal.Decimal, error) {
	abs, negative, err := ParseAmount(raw, locale)
	if err != nil {
		return decimal.Zero, err
	}
	if negative {
		return abs.Neg(), nil
	}
	return abs, nil
}

// normalizeSeparators rewrites thousands and decimal separators into plain
// decimal-point notation.
func normalizeSeparators(s, locale string) string {
	hasComma := strings.Contains(s, ",")
	hasPeriod := strings.Contains(s, ".")

	switch {
	case hasComma && hasPeriod:
		// European 1.234,56 has a trailing decimal comma and periods before
		// it; otherwise treat commas as US thousands separators.
		if euDecimalTail.MatchString(s) && len(s) > 3 && strings.Contains(s[:len(s)-3], ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		switch {
		case euOnlyCommaTail.MatchString(s):
			// 1-2 digits after the comma reads as a decimal comma.
			s = strings.ReplaceAll(s, ",", ".")
		case euLocaleCommaTail.MatchString(s) && locale == LocaleEU:
			s = strings.ReplaceAll(s, ",", ".")
		default:
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	return s
}
