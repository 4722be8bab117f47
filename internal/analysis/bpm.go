package analysis

import "math"

const (
	minPlausibleBPM = 40
	maxPlausibleBPM = 250
)

// CorrectBPM folds a raw tempo estimate into the plausible range. Values in
// [40,250] pass through, [20,40) are doubled, (250,500] are halved, anything
// else is rejected.
func CorrectBPM(bpm float64) (float64, bool) {
	switch {
	case math.IsNaN(bpm) || math.IsInf(bpm, 0):
		return 0, false
	case bpm >= minPlausibleBPM && bpm <= maxPlausibleBPM:
		return bpm, true
	case bpm >= 20 && bpm < minPlausibleBPM:
		return bpm * 2, true
	case bpm > maxPlausibleBPM && bpm <= 500:
		return bpm / 2, true
	default:
		return 0, false
	}
}

// TempoFromBeats inverts the mean inter-beat interval. ok is false with fewer
// than two beats.
func TempoFromBeats(beats []float64) (bpm float64, ok bool) {
	if len(beats) < 2 {
		return 0, false
	}
	span := beats[len(beats)-1] - beats[0]
	if span <= 0 {
		return 0, false
	}
	return 60 / (span / float64(len(beats)-1)), true
}

// EstimateBPM combines tracked beats with the detector's own tempo. The beat
// interval estimate is preferred; the detector tempo is the fallback and is
// only accepted inside [40,250] without correction.
func EstimateBPM(beats []float64, detectorTempo float64) (float64, bool) {
	if raw, ok := TempoFromBeats(beats); ok {
		if corrected, ok := CorrectBPM(raw); ok {
			return corrected, true
		}
	}
	if detectorTempo >= minPlausibleBPM && detectorTempo <= maxPlausibleBPM {
		return detectorTempo, true
	}
	return 0, false
}

// RoundBPM converts an estimate to the integer stored on items.
func RoundBPM(bpm float64) int {
	return int(math.Round(bpm))
}
