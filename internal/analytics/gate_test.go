package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateZeroRateNeverSamples(t *testing.T) {
	g := NewGate(func() float64 { return 0 })
	assert.False(t, g.Sample(0))
}

func TestGateFullRateAlwaysSamples(t *testing.T) {
	g := NewGate(func() float64 { return 0.999999 })
	assert.True(t, g.Sample(1))
}

func TestGateMidRateUsesRandomSource(t *testing.T) {
	below := NewGate(func() float64 { return 0.1 })
	assert.True(t, below.Sample(0.5))

	above := NewGate(func() float64 { return 0.9 })
	assert.False(t, above.Sample(0.5))
}

func TestGateNegativeRateNeverSamples(t *testing.T) {
	g := NewGate(func() float64 { return 0 })
	assert.False(t, g.Sample(-1))
}
