// Package schedule computes spaced-repetition timing for translate cards.
package schedule

import (
	"fmt"
	"math"
	"strings"

	"github.com/conorfennell/memoryrefresh/internal/domain"
	"github.com/conorfennell/memoryrefresh/internal/duration"
	"github.com/conorfennell/memoryrefresh/internal/errs"
)

// DefaultInitialDelay is the delay given to newly created cards.
const DefaultInitialDelay = "1d"

// DefaultSpread bounds how far the jitter factor pulls a due time forward,
// as a fraction of the card's interval.
const DefaultSpread = 0.1

// Engine holds the scheduling parameters.
type Engine struct {
	InitialDelay string
	Spread       float64
	Jitter       Jitter
}

// NewEngine validates the initial delay and returns an engine.
// A nil jitter disables jitter.
func NewEngine(initialDelay string, spread float64, jitter Jitter) (*Engine, error) {
	if _, err := duration.Parse(initialDelay); err != nil {
		return nil, fmt.Errorf("initial delay: %w", err)
	}
	if spread < 0 || spread > 1 {
		return nil, fmt.Errorf("%w: spread %v outside [0,1]", errs.ErrValidation, spread)
	}
	if jitter == nil {
		jitter = NoJitter{}
	}
	return &Engine{InitialDelay: initialDelay, Spread: spread, Jitter: jitter}, nil
}

// DefaultEngine returns an engine with the default parameters and no jitter.
func DefaultEngine() *Engine {
	return &Engine{InitialDelay: DefaultInitialDelay, Spread: DefaultSpread, Jitter: NoJitter{}}
}

// Init returns the schedule of a card created at now.
func (e *Engine) Init(cardID, now int64) (domain.Schedule, error) {
	return at(cardID, e.InitialDelay, e.InitialDelay, now)
}

// Apply reschedules s at now. delayOrCoefficient is either a coefficient
// ("x1.3") applied to the current delay, or a duration that replaces it.
// The original delay is kept.
func (e *Engine) Apply(s domain.Schedule, delayOrCoefficient string, now int64) (domain.Schedule, error) {
	normalized := duration.NormalizeCoefficient(delayOrCoefficient)
	if normalized == "" {
		return domain.Schedule{}, fmt.Errorf("%w: delay %q", errs.ErrInvalidFormat, delayOrCoefficient)
	}
	if !duration.IsCoefficient(normalized) {
		return at(s.CardID, s.OrigDelay, normalized, now)
	}

	base := s.Delay
	if len(strings.Fields(base)) != 1 {
		millis, err := duration.Parse(base)
		if err != nil {
			return domain.Schedule{}, err
		}
		base = duration.FormatLargestUnit(min(millis, duration.MaxMillis))
	}
	next, err := duration.Multiply(base, normalized)
	if err != nil {
		return domain.Schedule{}, err
	}
	return at(s.CardID, s.OrigDelay, next, now)
}

func at(cardID int64, origDelay, delay string, now int64) (domain.Schedule, error) {
	millis, err := duration.Parse(delay)
	if err != nil {
		return domain.Schedule{}, err
	}
	return domain.Schedule{
		CardID:             cardID,
		UpdatedAt:          now,
		OrigDelay:          origDelay,
		Delay:              delay,
		NextAccessInMillis: millis,
		NextAccessAt:       now + millis,
	}, nil
}

// Overdue returns how far past its due time the card is, relative to its
// interval. Positive means due.
func (e *Engine) Overdue(s domain.Schedule, now int64) float64 {
	interval := s.NextAccessInMillis
	if interval <= 0 {
		interval = 1
	}
	return (float64(now) - e.adjusted(s, interval)) / float64(interval)
}

// DueAt returns the jittered due time of s in epoch millis.
func (e *Engine) DueAt(s domain.Schedule) int64 {
	interval := s.NextAccessInMillis
	if interval <= 0 {
		interval = 1
	}
	return int64(math.Floor(e.adjusted(s, interval)))
}

func (e *Engine) adjusted(s domain.Schedule, interval int64) float64 {
	factor := e.Jitter.Factor(s.CardID)
	return float64(s.NextAccessAt) - factor*e.Spread*float64(interval)
}

// ActivatesIn renders the signed time until the card is due.
func ActivatesIn(s domain.Schedule, now int64) string {
	return duration.Format(s.NextAccessAt - now)
}
