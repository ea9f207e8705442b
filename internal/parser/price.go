package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ParseError reports price text that could not be turned into a
// non-negative amount.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable price %q: %s", e.Input, e.Reason)
}

var pricePattern = regexp.MustCompile(`^\d+(?:\.\d+)?$`)

// Longer labels first so "ر.س." wins over "ر.س" and "sar" over "sr".
var currencyStripper = strings.NewReplacer(
	"ر.س.", "",
	"ر.س", "",
	"ريال", "",
	"sar", "",
	"sr", "",
	",", "",
)

// ParsePrice converts storefront price text such as "18.50 ر.س",
// "SAR 1,299.00" or "١٨٫٥٠ ر.س" into a decimal amount.
func ParsePrice(text string) (decimal.Decimal, error) {
	cleaned, err := normalize(text)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Input: text, Reason: err.Error()}
	}

	cleaned = currencyStripper.Replace(strings.ToLower(cleaned))
	cleaned = strings.Join(strings.Fields(cleaned), "")

	if cleaned == "" {
		return decimal.Decimal{}, &ParseError{Input: text, Reason: "no digits"}
	}
	if !pricePattern.MatchString(cleaned) {
		return decimal.Decimal{}, &ParseError{Input: text, Reason: fmt.Sprintf("residue %q is not a number", cleaned)}
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Input: text, Reason: err.Error()}
	}
	return amount, nil
}

// normalize folds compatibility forms, drops bidi and other format marks
// and maps Arabic-Indic digits and separators to ASCII. Transformers keep
// state, so a fresh chain is built per call.
func normalize(s string) (string, error) {
	t := transform.Chain(
		norm.NFKC,
		runes.Remove(runes.In(unicode.Cf)),
		runes.Map(mapArabicNumerals),
	)
	out, _, err := transform.String(t, s)
	return out, err
}

func mapArabicNumerals(r rune) rune {
	switch {
	case r >= '٠' && r <= '٩':
		return '0' + (r - '٠')
	case r >= '۰' && r <= '۹':
		return '0' + (r - '۰')
	case r == '٫':
		return '.'
	case r == '٬', r == '،':
		return ','
	}
	return r
}
