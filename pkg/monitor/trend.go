package monitor

// Decreasing reports whether at least share of the consecutive pairs in values go down.
func Decreasing(values []float64, share float64) bool {
	return pairShare(values, func(a, b float64) bool { return b < a }) >= share && len(values) >= 2
}

// Increasing reports whether at least share of the consecutive pairs in values go up.
func Increasing(values []float64, share float64) bool {
	return pairShare(values, func(a, b float64) bool { return b > a }) >= share && len(values) >= 2
}

func pairShare(values []float64, moves func(a, b float64) bool) float64 {
	if len(values) < 2 {
		return 0
	}
	n := 0
	for i := 1; i < len(values); i++ {
		if moves(values[i-1], values[i]) {
			n++
		}
	}
	return float64(n) / float64(len(values)-1)
}
