package schedule

import (
	"errors"
	"math"
	"testing"

	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/duration"
	"github.com/conorfennell/memoryrefresh/internal/errs"
)

func TestInit(t *testing.T) {
	e := DefaultEngine()
	s, err := e.Init(7, 1000)
	if err != nil {
		t.Fatalf("Init returned an unexpected error: %v", err)
	}
	if s.CardID != 7 || s.OrigDelay != "1d" || s.Delay != "1d" {
		t.Errorf("unexpected schedule %+v", s)
	}
	if s.NextAccessInMillis != duration.Day {
		t.Errorf("Expected interval of one day, got %d", s.NextAccessInMillis)
	}
	if s.NextAccessAt != 1000+duration.Day || s.UpdatedAt != 1000 {
		t.Errorf("Expected due at %d, got %d", 1000+duration.Day, s.NextAccessAt)
	}
}

func TestNewEngineRejectsBadInitialDelay(t *testing.T) {
	if _, err := NewEngine("tomorrow", DefaultSpread, nil); !errors.Is(err, errs.ErrInvalidFormat) {
		t.Fatalf("Expected ErrInvalidFormat, got %v", err)
	}
	if _, err := NewEngine("1d", 2, nil); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("Expected ErrValidation for spread, got %v", err)
	}
}

func TestApply(t *testing.T) {
	e := DefaultEngine()
	start := domain.Schedule{
		CardID:             1,
		UpdatedAt:          0,
		OrigDelay:          "1d",
		Delay:              "8d",
		NextAccessInMillis: 8 * duration.Day,
		NextAccessAt:       8 * duration.Day,
	}
	now := int64(9 * duration.Day)

	t.Run("coefficient grows delay", func(t *testing.T) {
		s, err := e.Apply(start, "x1.2", now)
		if err != nil {
			t.Fatalf("Apply returned an unexpected error: %v", err)
		}
		if s.Delay != "9d" {
			t.Errorf("Expected delay 9d, got %s", s.Delay)
		}
		if s.OrigDelay != "1d" {
			t.Errorf("Expected original delay to be kept, got %s", s.OrigDelay)
		}
		if s.NextAccessAt != now+9*duration.Day || s.UpdatedAt != now {
			t.Errorf("Expected due at %d, got %d", now+9*duration.Day, s.NextAccessAt)
		}
	})

	t.Run("coefficient shrinks delay", func(t *testing.T) {
		s, err := e.Apply(start, "x0.5", now)
		if err != nil {
			t.Fatalf("Apply returned an unexpected error: %v", err)
		}
		if s.Delay != "4d" {
			t.Errorf("Expected delay 4d, got %s", s.Delay)
		}
	})

	t.Run("duration replaces delay", func(t *testing.T) {
		s, err := e.Apply(start, "3h", now)
		if err != nil {
			t.Fatalf("Apply returned an unexpected error: %v", err)
		}
		if s.Delay != "3h" || s.NextAccessInMillis != 3*duration.Hour {
			t.Errorf("unexpected schedule %+v", s)
		}
	})

	t.Run("multi unit delay is collapsed before multiplying", func(t *testing.T) {
		multi := start
		multi.Delay = "1M 4d"
		s, err := e.Apply(multi, "x2", now)
		if err != nil {
			t.Fatalf("Apply returned an unexpected error: %v", err)
		}
		if s.Delay != "2M" {
			t.Errorf("Expected delay 2M, got %s", s.Delay)
		}
	})

	t.Run("long multi unit delay is capped", func(t *testing.T) {
		long := start
		long.Delay = "365M 365d"
		s, err := e.Apply(long, "x1.1", now)
		if err != nil {
			t.Fatalf("Apply returned an unexpected error: %v", err)
		}
		if s.Delay != duration.MaxDelay || s.NextAccessInMillis != duration.MaxMillis {
			t.Errorf("Expected delay %s, got %+v", duration.MaxDelay, s)
		}
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		if _, err := e.Apply(start, "faster", now); !errors.Is(err, errs.ErrInvalidFormat) {
			t.Errorf("Expected ErrInvalidFormat, got %v", err)
		}
	})
}

func TestOverdue(t *testing.T) {
	s := domain.Schedule{CardID: 3, NextAccessInMillis: 1000, NextAccessAt: 10000}

	t.Run("without jitter", func(t *testing.T) {
		e := DefaultEngine()
		if got := e.Overdue(s, 9000); got != -1 {
			t.Errorf("Expected -1, got %v", got)
		}
		if got := e.Overdue(s, 10000); got != 0 {
			t.Errorf("Expected 0, got %v", got)
		}
		if got := e.Overdue(s, 12500); got != 2.5 {
			t.Errorf("Expected 2.5, got %v", got)
		}
	})

	t.Run("with full jitter", func(t *testing.T) {
		e, err := NewEngine("1d", 0.5, FixedJitter(1))
		if err != nil {
			t.Fatalf("NewEngine returned an unexpected error: %v", err)
		}
		// The due time is pulled forward by half an interval.
		if got := e.Overdue(s, 10000); math.Abs(got-0.5) > 1e-9 {
			t.Errorf("Expected 0.5, got %v", got)
		}
	})

	t.Run("zero interval does not divide by zero", func(t *testing.T) {
		e := DefaultEngine()
		zero := domain.Schedule{NextAccessAt: 10}
		if got := e.Overdue(zero, 20); got != 10 {
			t.Errorf("Expected 10, got %v", got)
		}
	})
}

func TestRandomJitter(t *testing.T) {
	j := NewRandomJitter(42)
	first := j.Factor(1)
	if first < 0 || first >= 1 {
		t.Fatalf("factor %v outside [0,1)", first)
	}
	if again := j.Factor(1); again != first {
		t.Errorf("Expected the factor to be stable per card, got %v then %v", first, again)
	}

	j.Reseed(42)
	if reseeded := j.Factor(1); reseeded != first {
		t.Errorf("Expected the same seed to replay the same factor, got %v and %v", first, reseeded)
	}
}

func TestActivatesIn(t *testing.T) {
	s := domain.Schedule{NextAccessAt: 2 * duration.Day}
	if got := ActivatesIn(s, 0); got != "2d" {
		t.Errorf("Expected 2d, got %s", got)
	}
	if got := ActivatesIn(s, 2*duration.Day+3*duration.Hour); got != "- 3h" {
		t.Errorf("Expected - 3h, got %s", got)
	}
}

func TestDueAt(t *testing.T) {
	s := domain.Schedule{CardID: 1, NextAccessInMillis: 1000, NextAccessAt: 5000}

	e := &Engine{Spread: 0.1, Jitter: NoJitter{}}
	if got := e.DueAt(s); got != 5000 {
		t.Errorf("Expected 5000, got %d", got)
	}

	e.Jitter = FixedJitter(1)
	if got := e.DueAt(s); got != 4900 {
		t.Errorf("Expected 4900, got %d", got)
	}
	if o := e.Overdue(s, e.DueAt(s)); o != 0 {
		t.Errorf("Expected zero overdue at the due time, got %v", o)
	}
}
