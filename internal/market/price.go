package market

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	// numericRunRegexp matches the first run of digits and separators.
	numericRunRegexp = regexp.MustCompile(`\d[\d.,]*`)
	// groupedThousandsRegexp matches runs like "1,200" or "1.200.000" where
	// the separator can only be a thousands separator.
	groupedThousandsRegexp = regexp.MustCompile(`^\d{1,3}([.,])\d{3}(?:[.,]\d{3})*$`)
)

// ParsePrice extracts a price from marketplace price text such as "45,50 €",
// "€ 1 200" or "$12.99". Whitespace and currency symbols are ignored, a comma
// is accepted as the decimal separator, and only the first numeric run is
// read. With a euro marker a single comma is always decimal, so "45,500 €"
// is 45.5. Unparseable text returns 0; callers drop non-positive prices.
func ParsePrice(text string) float64 {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)

	run := numericRunRegexp.FindString(compact)
	run = strings.TrimRight(run, ".,")
	if run == "" {
		return 0
	}

	euro := DetectCurrency(text, "") == "EUR"
	value, err := strconv.ParseFloat(normalizeSeparators(run, euro), 64)
	if err != nil {
		return 0
	}
	return value
}

// normalizeSeparators rewrites a numeric run into a form strconv accepts,
// deciding which of "," and "." is the decimal separator. commaDecimal
// keeps a lone comma as the decimal mark even before three digits.
func normalizeSeparators(run string, commaDecimal bool) string {
	hasComma := strings.Contains(run, ",")
	hasDot := strings.Contains(run, ".")

	switch {
	case hasComma && hasDot:
		// Whichever separator comes last is the decimal one.
		if strings.LastIndex(run, ",") > strings.LastIndex(run, ".") {
			run = strings.ReplaceAll(run, ".", "")
			return strings.Replace(run, ",", ".", 1)
		}
		return strings.ReplaceAll(run, ",", "")
	case hasComma || hasDot:
		m := groupedThousandsRegexp.FindStringSubmatch(run)
		loneComma := m != nil && m[1] == "," && strings.Count(run, ",") == 1
		if m != nil && !(loneComma && commaDecimal) {
			return strings.ReplaceAll(run, m[1], "")
		}
		sep := ","
		if hasDot {
			sep = "."
		}
		last := strings.LastIndex(run, sep)
		return strings.ReplaceAll(run[:last], sep, "") + "." + run[last+1:]
	default:
		return run
	}
}

// DetectCurrency returns the ISO currency code implied by a price text, or
// fallback when the text carries no recognizable currency marker.
func DetectCurrency(text, fallback string) string {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(text, "€") || strings.Contains(upper, "EUR"):
		return "EUR"
	case strings.Contains(text, "£") || strings.Contains(upper, "GBP"):
		return "GBP"
	case strings.Contains(text, "$") || strings.Contains(upper, "USD"):
		return "USD"
	default:
		return fallback
	}
}

// ParseRating reads a seller rating such as "4,8 (123 avis)" or "4.9".
// It reports false when no positive rating is present.
func ParseRating(text string) (float64, bool) {
	run := strings.TrimRight(numericRunRegexp.FindString(text), ".,")
	if run == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(run, ",", "."), 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}
