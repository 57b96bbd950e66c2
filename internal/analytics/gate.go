package analytics

// randFn is swappable in tests, per spec.md §9's design note that the
// sample gate's randomness source must be injectable rather than a bare
// math/rand call.
type randFn func() float64

// Gate decides, for a given sample_rate, whether one heartbeat point
// should be recorded. rate is returned unmodified on the recorded point
// (see Point.SampleRate) regardless of the trial's outcome, so a reader
// can always recover the configured rate.
type Gate struct {
	rand randFn
}

// NewGate builds a Gate that draws its trials from rand, which returns
// values in [0, 1).
func NewGate(rand func() float64) *Gate {
	return &Gate{rand: rand}
}

// Sample runs one Bernoulli trial: rate <= 0 never records, rate >= 1
// always records, otherwise records with probability rate.
func (g *Gate) Sample(rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	return g.rand() < rate
}
