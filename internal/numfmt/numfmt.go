// Package numfmt converts locale-ambiguous numeric strings into exact
// decimal values.
//
// Two conventions appear among the upstream sources: Vietnamese, where '.'
// groups thousands and ',' marks the decimal (80.000.000 or 1.234,56), and
// international, where the roles are swapped (2,029.81). The rightmost
// separator is treated as the decimal mark only when it is followed by one
// or two digits; a lone separator followed by exactly three digits is read
// as a thousands group. That last rule is ambiguous for values below 1000
// with three fractional digits and is resolved in favor of grouping.
package numfmt

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatError reports a string that contains no extractable number, or
// separators in a mutually inconsistent pattern.
type FormatError struct {
	Raw    string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("numfmt: %q: %s", e.Raw, e.Reason)
}

// Parse converts a Vietnamese- or international-formatted numeric string
// into an exact decimal. Currency comparisons need exact equality and
// ordering, so binary floating point is never involved.
func Parse(raw string) (decimal.Decimal, error) {
	cleaned := keepNumeric(raw)
	if !strings.ContainsAny(cleaned, "0123456789") {
		return decimal.Decimal{}, &FormatError{Raw: raw, Reason: "no digits"}
	}

	dots := strings.Count(cleaned, ".")
	commas := strings.Count(cleaned, ",")

	switch {
	case dots == 0 && commas == 0:
		return parseFinal(raw, cleaned)

	case dots >= 2 && commas == 0:
		// Vietnamese thousands groups: 80.000.000
		return parseFinal(raw, strings.ReplaceAll(cleaned, ".", ""))

	case commas >= 2 && dots == 0:
		// International thousands groups: 1,234,567
		return parseFinal(raw, strings.ReplaceAll(cleaned, ",", ""))

	case dots >= 1 && commas >= 1:
		return parseMixed(raw, cleaned)

	case dots == 1:
		return parseSingle(raw, cleaned, ".")

	default:
		return parseSingle(raw, cleaned, ",")
	}
}

// parseMixed handles strings carrying both separator characters. The
// rightmost one is the decimal mark; it must occur once, after every
// occurrence of the other, and carry a 1-2 digit fraction.
func parseMixed(raw, cleaned string) (decimal.Decimal, error) {
	dec, group := ",", "."
	if strings.LastIndex(cleaned, ".") > strings.LastIndex(cleaned, ",") {
		dec, group = ".", ","
	}
	if strings.Count(cleaned, dec) > 1 {
		return decimal.Decimal{}, &FormatError{Raw: raw, Reason: "inconsistent separators"}
	}
	frac := cleaned[strings.Index(cleaned, dec)+1:]
	if len(frac) < 1 || len(frac) > 2 {
		return decimal.Decimal{}, &FormatError{Raw: raw, Reason: "inconsistent separators"}
	}
	whole := strings.ReplaceAll(cleaned[:strings.Index(cleaned, dec)], group, "")
	return parseFinal(raw, whole+"."+frac)
}

// parseSingle handles a single occurrence of one separator character.
func parseSingle(raw, cleaned, sep string) (decimal.Decimal, error) {
	i := strings.Index(cleaned, sep)
	frac := cleaned[i+1:]
	switch {
	case len(frac) == 0:
		return decimal.Decimal{}, &FormatError{Raw: raw, Reason: "trailing separator"}
	case len(frac) == 3:
		// 26.495 reads as a thousands group, not 26.495ths.
		return parseFinal(raw, cleaned[:i]+frac)
	default:
		return parseFinal(raw, cleaned[:i]+"."+frac)
	}
}

func parseFinal(raw, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &FormatError{Raw: raw, Reason: "unparseable number"}
	}
	return d, nil
}

// keepNumeric strips everything but digits and the two separator
// characters, so currency symbols and surrounding text never matter.
func keepNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
