package schedule

import (
	"math/rand/v2"
	"sync"
)

// Jitter yields a per-card factor in [0,1] that spreads due times so that
// cards created together do not all become due at the same moment.
type Jitter interface {
	Factor(cardID int64) float64
}

// NoJitter always returns 0.
type NoJitter struct{}

// Factor implements Jitter.
func (NoJitter) Factor(int64) float64 { return 0 }

// FixedJitter returns the same factor for every card.
type FixedJitter float64

// Factor implements Jitter.
func (f FixedJitter) Factor(int64) float64 { return float64(f) }

// RandomJitter draws a uniform factor per card and keeps it until Reseed.
type RandomJitter struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	factors map[int64]float64
}

// NewRandomJitter returns a RandomJitter seeded with seed.
func NewRandomJitter(seed uint64) *RandomJitter {
	return &RandomJitter{
		rnd:     rand.New(rand.NewPCG(seed, seed)),
		factors: make(map[int64]float64),
	}
}

// Factor implements Jitter.
func (j *RandomJitter) Factor(cardID int64) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	f, ok := j.factors[cardID]
	if !ok {
		f = j.rnd.Float64()
		j.factors[cardID] = f
	}
	return f
}

// Reseed forgets every drawn factor and restarts the generator.
func (j *RandomJitter) Reseed(seed uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.rnd = rand.New(rand.NewPCG(seed, seed))
	clear(j.factors)
}
