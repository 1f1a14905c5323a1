package abr

import "strings"

// DefaultSafetyFactor is the fraction of the estimate a selected rendition
// may consume when the configuration does not set one.
const DefaultSafetyFactor = 0.8

// Candidate is one selectable rendition, reduced to the fields selection
// cares about.
type Candidate struct {
	TrackID  string
	Bitrate  int64 // bits per second
	Height   int
	Language string
	Default  bool
}

// SelectorConfig names the selection knobs; there are no magic constants in
// the selection path.
type SelectorConfig struct {
	// SafetyFactor scales the estimate before comparing against candidate
	// bitrates; <= 0 means DefaultSafetyFactor.
	SafetyFactor float64
	// MaxHeight caps the vertical resolution considered; 0 means no cap.
	// The cap is ignored if it would filter out every candidate.
	MaxHeight int
}

func (c SelectorConfig) withDefaults() SelectorConfig {
	if c.SafetyFactor <= 0 {
		c.SafetyFactor = DefaultSafetyFactor
	}
	return c
}

// SelectQuality picks the highest-bitrate candidate whose bitrate fits under
// estimate scaled by the safety factor. When nothing fits it falls back to
// the lowest-bitrate candidate, so for non-empty input a choice is always
// made.
func SelectQuality(candidates []Candidate, estimate float64, cfg SelectorConfig) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	cfg = cfg.withDefaults()
	budget := estimate * cfg.SafetyFactor

	var best, lowest *Candidate
	for i := range candidates {
		c := &candidates[i]
		if cfg.MaxHeight > 0 && c.Height > cfg.MaxHeight {
			continue
		}
		if lowest == nil || c.Bitrate < lowest.Bitrate {
			lowest = c
		}
		if float64(c.Bitrate) <= budget && (best == nil || c.Bitrate > best.Bitrate) {
			best = c
		}
	}
	if best == nil {
		best = lowest
	}
	if best == nil {
		// The height cap excluded everything; retry without it.
		return SelectQuality(candidates, estimate, SelectorConfig{SafetyFactor: cfg.SafetyFactor})
	}
	return *best, true
}

// SelectAudio picks the initial audio rendition: an exact (case-insensitive)
// language match wins, then the rendition flagged default, then the first.
func SelectAudio(candidates []Candidate, preferredLanguage string) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	if preferredLanguage != "" {
		for _, c := range candidates {
			if strings.EqualFold(c.Language, preferredLanguage) {
				return c, true
			}
		}
	}
	for _, c := range candidates {
		if c.Default {
			return c, true
		}
	}
	return candidates[0], true
}
