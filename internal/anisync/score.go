package anisync

import "math"

// NormalizeScore converts a score to the canonical 0-10 integer scale.
//
// AniList users may score on a 100-point scale; anything above 10 is
// treated as such and divided by 10. Rounding is half away from zero
// (math.Round), so 85 -> 8.5 -> 9. The same function is used both when
// comparing scores and when transmitting them to MyAnimeList, so a value
// judged unchanged can never round differently at send time.
//
// Normalizing an already-canonical integer score is a no-op.
func NormalizeScore(score *float64) (int, bool) {
	if score == nil {
		return 0, false
	}

	s := *score
	if s > 10 {
		s = s / 10.0
	}

	return int(math.Round(s)), true
}
