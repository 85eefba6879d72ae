package duration

import (
	"errors"
	"testing"

	"github.com/conorfennell/memoryrefresh/internal/errs"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected int64
		wantErr  bool
	}{
		{name: "seconds", input: "15s", expected: 15 * Second},
		{name: "month and days", input: "1M 4d", expected: Month + 4*Day},
		{name: "all units", input: "1M 1d 1h 1m 1s", expected: Month + Day + Hour + Minute + Second},
		{name: "extra whitespace", input: "  2h   30m ", expected: 2*Hour + 30*Minute},
		{name: "max amount", input: "365d", expected: 365 * Day},
		{name: "amount too large", input: "366d", wantErr: true},
		{name: "unknown unit", input: "3w", wantErr: true},
		{name: "missing amount", input: "d", wantErr: true},
		{name: "fraction", input: "1.5d", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "one bad term", input: "1d x", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.input)
			if tc.wantErr {
				if !errors.Is(err, errs.ErrInvalidFormat) {
					t.Fatalf("Parse(%q) expected ErrInvalidFormat, got %v", tc.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) returned an unexpected error: %v", tc.input, err)
			}
			if got != tc.expected {
				t.Errorf("Parse(%q) = %d, expected %d", tc.input, got, tc.expected)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	testCases := []struct {
		input    int64
		expected string
	}{
		{0, "0s"},
		{999, "0s"},
		{Second, "1s"},
		{Month + 4*Day, "1M 4d"},
		{Month + 4*Day + 3*Hour, "1M 4d"},
		{Month + 3*Hour, "1M 3h"},
		{2*Hour + 5*Second, "2h 5s"},
		{-(3*Day + 2*Hour), "- 3d 2h"},
		{-500, "0s"},
		{-Second, "- 1s"},
		{13 * Month, "13M"},
	}
	for _, tc := range testCases {
		if got := Format(tc.input); got != tc.expected {
			t.Errorf("Format(%d) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	inputs := []int64{
		Second,
		59 * Second,
		Minute + Second,
		5*Hour + 7*Minute,
		Day + Hour,
		20 * Day,
		Month + 29*Day,
		7*Month + 2*Day,
	}
	for _, x := range inputs {
		s := Format(x)
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(Format(%d)) = Parse(%q) returned error: %v", x, s, err)
		}
		if got != x {
			t.Errorf("Parse(Format(%d)) = %d via %q", x, got, s)
		}
	}
}

func TestNormalizeCoefficient(t *testing.T) {
	testCases := map[string]string{
		"":        "",
		"   ":     "",
		"x1":      "x1",
		"x1.3":    "x1.3",
		"x1.25":   "x1.3",
		"x1.249":  "x1.2",
		"x1.96":   "x2.0",
		"x0.05":   "x0.1",
		" x2.0 ":  "x2.0",
		"3d":      "3d",
		"1M 4d":   "1M 4d",
		"x":       "",
		"x1.":     "",
		"1.3":     "",
		"garbage": "",
	}
	for input, expected := range testCases {
		if got := NormalizeCoefficient(input); got != expected {
			t.Errorf("NormalizeCoefficient(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestMultiply(t *testing.T) {
	testCases := []struct {
		name     string
		base     string
		coef     string
		expected string
	}{
		{name: "grow days", base: "8d", coef: "x1.2", expected: "9d"},
		{name: "tie forces bump", base: "1s", coef: "x1.5", expected: "2s"},
		{name: "identity bumps", base: "8d", coef: "x1", expected: "9d"},
		{name: "shrink", base: "10d", coef: "x0.5", expected: "5d"},
		{name: "unit change up", base: "20d", coef: "x2", expected: "1M"},
		{name: "unit change down", base: "1d", coef: "x0.9", expected: "21h"},
		{name: "zero becomes one second", base: "0s", coef: "x2", expected: "1s"},
		{name: "half up rounding", base: "1m", coef: "x0.3", expected: "18s"},
		{name: "shrinking one second still moves", base: "1s", coef: "x0.9", expected: "2s"},
		{name: "growth past the longest delay is capped", base: "300M", coef: "x1.3", expected: "365M"},
		{name: "doubling months is capped", base: "256M", coef: "x2", expected: "365M"},
		{name: "the cap is not bumped", base: "365M", coef: "x1", expected: "365M"},
		{name: "huge coefficient is capped", base: "365M", coef: "x99999999999999", expected: "365M"},
		{name: "bump may reach the cap", base: "364M", coef: "x1", expected: "365M"},
		{name: "shrink from the cap", base: "365M", coef: "x0.5", expected: "182M"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Multiply(tc.base, tc.coef)
			if err != nil {
				t.Fatalf("Multiply(%q, %q) returned an unexpected error: %v", tc.base, tc.coef, err)
			}
			if got != tc.expected {
				t.Errorf("Multiply(%q, %q) = %q, expected %q", tc.base, tc.coef, got, tc.expected)
			}
		})
	}
}

func TestMultiplyNeverReturnsBase(t *testing.T) {
	bases := []string{"1s", "30s", "1m", "59m", "1h", "1d", "8d", "1M", "12M"}
	coefs := []string{"x0.9", "x1", "x1.0", "x1.05", "x1.1", "x1.3", "x2"}
	for _, base := range bases {
		for _, coef := range coefs {
			got, err := Multiply(base, coef)
			if err != nil {
				t.Fatalf("Multiply(%q, %q) returned an unexpected error: %v", base, coef, err)
			}
			if got == base {
				t.Errorf("Multiply(%q, %q) returned the base unchanged", base, coef)
			}
		}
	}
}

func TestMultiplyResultAlwaysParses(t *testing.T) {
	delay := "1d"
	for i := 0; i < 40; i++ {
		next, err := Multiply(delay, "x2")
		if err != nil {
			t.Fatalf("Multiply(%q, x2) returned an unexpected error: %v", delay, err)
		}
		if _, err := Parse(next); err != nil {
			t.Fatalf("Multiply(%q, x2) = %q, which does not parse: %v", delay, next, err)
		}
		delay = next
	}
	if delay != MaxDelay {
		t.Errorf("Expected repeated growth to settle at %s, got %s", MaxDelay, delay)
	}
}

func TestMultiplyRejectsBadInput(t *testing.T) {
	cases := [][2]string{
		{"1M 4d", "x1.2"},
		{"abc", "x1.2"},
		{"8d", "1.2"},
		{"8d", "3d"},
	}
	for _, c := range cases {
		if _, err := Multiply(c[0], c[1]); !errors.Is(err, errs.ErrInvalidFormat) {
			t.Errorf("Multiply(%q, %q) expected ErrInvalidFormat, got %v", c[0], c[1], err)
		}
	}
}
