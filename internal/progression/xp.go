package progression

// xpRequired returns the cumulative experience needed to reach level. Each
// level costs 100*level more than the previous one, so the curve is strictly
// increasing: 0, 100, 300, 600, 1000, ...
func xpRequired(level int) int {
	if level <= 1 {
		return 0
	}
	n := level - 1
	return 50 * n * (n + 1)
}

// levelForXP returns the greatest level whose cumulative requirement fits
// inside xp. Minimum level is 1.
func levelForXP(xp int) int {
	level := 1
	for xpRequired(level+1) <= xp {
		level++
	}
	return level
}
