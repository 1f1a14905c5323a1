package abr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleN(s State, n int, d time.Duration, bytes int64) State {
	for i := 0; i < n; i++ {
		s = Sample(s, d, bytes)
	}
	return s
}

func TestEstimate_fallbackUntilEnoughBytes(t *testing.T) {
	var s State

	assert.False(t, HasGoodEstimate(s))
	assert.InDelta(t, 3_000_000, Estimate(s, 3_000_000), 1e-9)

	// 100,000 bytes sampled: still below the threshold.
	s = Sample(s, time.Second, 100_000)
	assert.False(t, HasGoodEstimate(s))
	assert.InDelta(t, 3_000_000, Estimate(s, 3_000_000), 1e-9)

	// Past the threshold the measured ~800 kbps replaces the fallback.
	s = Sample(s, time.Second, 100_000)
	assert.True(t, HasGoodEstimate(s))
	assert.Less(t, Estimate(s, 3_000_000), 1_000_000.0)
}

func TestSample_filtersSmallAndInstantSamples(t *testing.T) {
	var s State

	s = Sample(s, time.Second, 1_000) // below size guard
	assert.Equal(t, int64(1_000), s.BytesSampled)
	assert.Zero(t, s.FastWeight)
	assert.Zero(t, s.SlowWeight)

	s = Sample(s, time.Millisecond, 50_000) // below duration guard
	assert.Equal(t, int64(51_000), s.BytesSampled)
	assert.Zero(t, s.FastWeight)

	s = Sample(s, time.Second, 50_000)
	assert.Equal(t, int64(101_000), s.BytesSampled)
	assert.Greater(t, s.FastWeight, 0.0)
	assert.Greater(t, s.SlowWeight, 0.0)
}

func TestSample_ignoresNonPositiveBytes(t *testing.T) {
	s := Sample(State{}, time.Second, 0)
	assert.Zero(t, s.BytesSampled)
}

func TestEstimate_convergesOnSteadyThroughput(t *testing.T) {
	// 100,000 bytes per second is 800,000 bits per second.
	s := sampleN(State{}, 20, time.Second, 100_000)

	assert.True(t, HasGoodEstimate(s))
	assert.InDelta(t, 800_000, Estimate(s, 0), 50_000)
}

func TestEstimate_dropsQuickly(t *testing.T) {
	s := sampleN(State{}, 10, time.Second, 100_000) // ~800 kbps
	before := Estimate(s, 0)

	// Throughput collapses: the same bytes now take eight seconds.
	s = sampleN(s, 3, 8*time.Second, 100_000)

	after := Estimate(s, 0)
	assert.Less(t, after, 0.6*before)
}

func TestEstimate_recoversConservatively(t *testing.T) {
	s := sampleN(State{}, 10, 8*time.Second, 100_000) // ~100 kbps
	low := Estimate(s, 0)

	s = sampleN(s, 3, time.Second, 100_000) // back to ~800 kbps

	after := Estimate(s, 0)
	assert.Greater(t, after, low)
	// The estimate trails the true throughput on the way up.
	assert.Less(t, after, 800_000.0)
}

func TestEstimate_isPure(t *testing.T) {
	s := sampleN(State{}, 5, time.Second, 100_000)
	a := Estimate(s, 0)
	b := Estimate(s, 0)
	assert.Equal(t, a, b)
}
