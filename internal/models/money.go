package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

var priceRe = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?|-?\.\d+`)

// ParsePrice extracts a currency-free decimal from vendor price text such as
// "$1,234.50", "USD 12.00 / box" or "12". Text without a number is an error,
// never a zero price.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty price", ErrTranslation)
	}

	match := priceRe.FindString(s)
	if match == "" {
		return decimal.Zero, fmt.Errorf("%w: no price in %q", ErrTranslation, s)
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad price %q: %v", ErrTranslation, s, err)
	}
	return d.Round(2), nil
}

// ParseQuantity extracts a non-negative integer quantity from vendor text
func ParseQuantity(s string) (int, error) {
	d, err := ParsePrice(s)
	if err != nil {
		return 0, err
	}
	if d.IsNegative() || !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: bad quantity %q", ErrTranslation, s)
	}
	return int(d.IntPart()), nil
}

// NormalizeText collapses whitespace and applies NFC normalization to vendor
// supplied text. Vendors mix non-breaking spaces, decomposed accents and
// stray newlines into product names.
func NormalizeText(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
