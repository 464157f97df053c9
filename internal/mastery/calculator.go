package mastery

const (
	// MaxLevel is the ceiling of a mastery level.
	MaxLevel = 100.0

	// StreakBonus is added when the last BonusWindow answers are all correct.
	StreakBonus = 10.0

	// BonusWindow is the number of most recent answers the bonus looks at.
	BonusWindow = 5
)

// Compute derives a 0-100 mastery level from attempt counts, the tier the
// answers were given at, and the most recent correctness flags
// (most-recent-last). Out-of-range counts are clamped, so the result is
// always within [0, MaxLevel].
func Compute(attempted, correct int, d Tier, recent []bool) float64 {
	if attempted <= 0 {
		return bonus(recent)
	}
	correct = max(0, min(correct, attempted))

	base := 100 * float64(correct) / float64(attempted)
	return min(MaxLevel, base*d.Multiplier()+bonus(recent))
}

func bonus(recent []bool) float64 {
	if len(recent) < BonusWindow {
		return 0
	}
	for _, ok := range recent[len(recent)-BonusWindow:] {
		if !ok {
			return 0
		}
	}
	return StreakBonus
}
