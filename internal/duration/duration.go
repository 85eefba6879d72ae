// Package duration converts human-readable interval strings such as "1M 4d"
// to and from milliseconds, and applies multiplicative coefficients ("x1.3")
// to single-unit intervals.
package duration

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/conorfennell/memoryrefresh/internal/errs"
)

// Unit sizes in milliseconds. A month is a fixed 30 days.
const (
	Second int64 = 1000
	Minute       = 60 * Second
	Hour         = 60 * Minute
	Day          = 24 * Hour
	Month        = 30 * Day
)

// MaxTermAmount is the largest amount accepted in a single term.
const MaxTermAmount = 365

// MaxMillis is the longest delay Multiply produces.
const MaxMillis = MaxTermAmount * Month

// MaxDelay renders MaxMillis.
var MaxDelay = FormatLargestUnit(MaxMillis)

type unit struct {
	symbol string
	millis int64
}

// units is ordered from the largest to the smallest.
var units = []unit{
	{"M", Month},
	{"d", Day},
	{"h", Hour},
	{"m", Minute},
	{"s", Second},
}

var (
	termRe        = regexp.MustCompile(`^(\d+)([Mdhms])$`)
	coefficientRe = regexp.MustCompile(`^x(\d+)(?:\.(\d+))?$`)
)

func unitOf(symbol string) unit {
	for _, u := range units {
		if u.symbol == symbol {
			return u
		}
	}
	panic("duration: unknown unit " + symbol)
}

func parseTerm(term string) (int64, unit, error) {
	m := termRe.FindStringSubmatch(term)
	if m == nil {
		return 0, unit{}, fmt.Errorf("%w: duration term %q", errs.ErrInvalidFormat, term)
	}
	amount, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || amount > MaxTermAmount {
		return 0, unit{}, fmt.Errorf("%w: amount in %q exceeds %d", errs.ErrInvalidFormat, term, MaxTermAmount)
	}
	return amount, unitOf(m[2]), nil
}

// Parse sums space-separated "<int><unit>" terms into milliseconds.
func Parse(s string) (int64, error) {
	terms := strings.Fields(s)
	if len(terms) == 0 {
		return 0, fmt.Errorf("%w: empty duration", errs.ErrInvalidFormat)
	}
	var total int64
	for _, term := range terms {
		amount, u, err := parseTerm(term)
		if err != nil {
			return 0, err
		}
		total += amount * u.millis
	}
	return total, nil
}

// Format renders the two highest non-zero units of millis, e.g. "1M 4d".
// Sub-second remainders are dropped; negative values are prefixed with "- ".
func Format(millis int64) string {
	return format(millis, 2)
}

// FormatLargestUnit renders only the highest non-zero unit of millis, e.g. "9d".
func FormatLargestUnit(millis int64) string {
	return format(millis, 1)
}

func format(millis int64, maxParts int) string {
	if millis < 0 {
		if millis > -Second {
			return "0s"
		}
		if millis == math.MinInt64 {
			millis++
		}
		return "- " + format(-millis, maxParts)
	}
	parts := make([]string, 0, maxParts)
	rest := millis
	for _, u := range units {
		n := rest / u.millis
		rest %= u.millis
		if n == 0 {
			continue
		}
		parts = append(parts, strconv.FormatInt(n, 10)+u.symbol)
		if len(parts) == maxParts {
			break
		}
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}

// parseCoefficient returns the coefficient in tenths, rounded half-up on the
// second fraction digit, and whether the input carried a fraction.
func parseCoefficient(s string) (tenths int64, fraction bool, ok bool) {
	m := coefficientRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false, false
	}
	whole, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || whole > math.MaxInt64/10-10 {
		return 0, false, false
	}
	tenths = whole * 10
	if frac := m[2]; frac != "" {
		fraction = true
		tenths += int64(frac[0] - '0')
		if len(frac) > 1 && frac[1] >= '5' {
			tenths++
		}
	}
	return tenths, fraction, true
}

func formatCoefficient(tenths int64, fraction bool) string {
	s := "x" + strconv.FormatInt(tenths/10, 10)
	if fraction {
		s += "." + strconv.FormatInt(tenths%10, 10)
	}
	return s
}

// IsCoefficient reports whether s is a well-formed "x<int>[.<frac>]" coefficient.
func IsCoefficient(s string) bool {
	_, _, ok := parseCoefficient(strings.TrimSpace(s))
	return ok
}

// NormalizeCoefficient canonicalizes a coefficient to one fraction digit.
// A string that is not a coefficient but is a valid duration is returned as is;
// anything else normalizes to "".
func NormalizeCoefficient(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if tenths, fraction, ok := parseCoefficient(s); ok {
		return formatCoefficient(tenths, fraction)
	}
	if _, err := Parse(s); err == nil {
		return s
	}
	return ""
}

// Multiply scales a single-unit duration by a coefficient and renders the
// result with its largest unit only. The result differs from base: "0s"
// becomes "1s", and a result equal to base has its numeral bumped by one.
// Results longer than MaxMillis are capped to MaxDelay, so a base already
// at MaxDelay may come back unchanged.
func Multiply(base, coefficient string) (string, error) {
	amount, u, err := parseTerm(strings.TrimSpace(base))
	if err != nil {
		return "", err
	}
	tenths, _, ok := parseCoefficient(strings.TrimSpace(coefficient))
	if !ok {
		return "", fmt.Errorf("%w: coefficient %q", errs.ErrInvalidFormat, coefficient)
	}
	baseMillis := amount * u.millis
	if baseMillis > 0 && tenths > (math.MaxInt64-5)/baseMillis {
		return MaxDelay, nil
	}
	millis := (baseMillis*tenths + 5) / 10
	if millis > MaxMillis {
		return MaxDelay, nil
	}

	result := FormatLargestUnit(millis)
	if result == "0s" {
		result = "1s"
	}
	canonical := strconv.FormatInt(amount, 10) + u.symbol
	if result == canonical && result != MaxDelay {
		result = strconv.FormatInt(amount+1, 10) + u.symbol
	}
	return result, nil
}
