// Package abr holds the pure pieces of adaptive bitrate selection: a
// throughput estimator fed by fetch samples and a rendition selector that
// picks a candidate under the estimate.
package abr

import (
	"math"
	"time"
)

const (
	// Samples smaller or shorter than these guards are cache hits or
	// instant responses; they would skew the throughput estimate.
	minSampleBytes    = 16_000
	minSampleDuration = 5 * time.Millisecond

	// The estimator keeps reporting the caller's fallback until this many
	// bytes have been observed, filtered samples included.
	minEstimateBytes = 128_000

	// Half-lives, in seconds of accumulated sample weight. The fast average
	// tracks drops quickly; the slow one keeps recoveries conservative.
	fastHalfLife = 3.0
	slowHalfLife = 9.0
)

// State is an immutable snapshot of the bandwidth estimator. Sample returns
// an updated copy; the zero value is the correct starting point.
type State struct {
	FastEstimate float64
	FastWeight   float64
	SlowEstimate float64
	SlowWeight   float64
	BytesSampled int64
}

// Sample folds one fetch observation into the estimate. Samples below the
// size or duration guards still advance BytesSampled but leave both
// weighted averages untouched.
func Sample(s State, duration time.Duration, bytes int64) State {
	if bytes > 0 {
		s.BytesSampled += bytes
	}
	if bytes < minSampleBytes || duration < minSampleDuration {
		return s
	}

	weight := duration.Seconds()
	bitsPerSecond := float64(bytes) * 8 / weight
	s.FastEstimate, s.FastWeight = ewma(s.FastEstimate, s.FastWeight, bitsPerSecond, weight, fastHalfLife)
	s.SlowEstimate, s.SlowWeight = ewma(s.SlowEstimate, s.SlowWeight, bitsPerSecond, weight, slowHalfLife)
	return s
}

// ewma folds value (weighted by weight seconds) into a running average whose
// responsiveness is set by halfLife.
func ewma(estimate, totalWeight, value, weight, halfLife float64) (float64, float64) {
	alpha := math.Pow(0.5, weight/halfLife)
	return alpha*estimate + (1-alpha)*value, totalWeight + weight
}

// corrected removes the cold-start bias toward zero; the correction factor
// decays toward 1 as weight accumulates.
func corrected(estimate, totalWeight, halfLife float64) float64 {
	if totalWeight <= 0 {
		return 0
	}
	zeroFactor := 1 - math.Pow(0.5, totalWeight/halfLife)
	return estimate / zeroFactor
}

// HasGoodEstimate reports whether enough bytes have been observed for
// Estimate to return a measured value instead of the fallback.
func HasGoodEstimate(s State) bool {
	return s.BytesSampled >= minEstimateBytes
}

// Estimate returns the current throughput estimate in bits per second, or
// fallback verbatim before enough bytes have been sampled. Past the
// threshold it returns the minimum of the two corrected averages: drops are
// reflected quickly, recoveries conservatively.
func Estimate(s State, fallback float64) float64 {
	if !HasGoodEstimate(s) {
		return fallback
	}
	return math.Min(
		corrected(s.FastEstimate, s.FastWeight, fastHalfLife),
		corrected(s.SlowEstimate, s.SlowWeight, slowHalfLife),
	)
}
