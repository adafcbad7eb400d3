// Package detector implements the reading validation and windowed
// statistics pipeline: outlier rejection, CPM to dose-rate conversion and
// rolling min/avg/max aggregation over the most recent accepted samples.
package detector

// Accept reports whether a candidate CPM reading passes validation.
//
// Rules, in order:
//  1. The candidate must be within [0, maxAbs].
//  2. If a previous accepted reading exists and is greater than zero, the
//     candidate must not exceed lastAccepted*maxJumpRatio (boundary
//     inclusive). Only upward spikes are filtered: detectors legitimately
//     drop to near zero but rarely spike except from noise.
//  3. With no prior accepted reading, or after a zero reading, the jump
//     rule is skipped so a legitimate zero never locks the validator out.
func Accept(candidate int, lastAccepted *int, maxAbs int, maxJumpRatio float64) bool {
	if candidate < 0 || candidate > maxAbs {
		return false
	}
	if lastAccepted != nil && *lastAccepted > 0 {
		if float64(candidate) > float64(*lastAccepted)*maxJumpRatio {
			return false
		}
	}
	return true
}
