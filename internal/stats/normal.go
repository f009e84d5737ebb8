// Package stats holds the numeric primitives for significance testing.
// Pure functions, no I/O; callers guard against NaN and Inf inputs.
package stats

import "math"

// NormalCDF approximates the cumulative distribution function of the
// standard normal distribution using the Abramowitz and Stegun
// polynomial approximation of erf (Handbook of Mathematical Functions,
// formula 7.1.26). Tails beyond |z| = 6 are clamped to avoid numerical
// blow-up in exp.
func NormalCDF(z float64) float64 {
	if z < -6 {
		return 0
	}
	if z > 6 {
		return 1
	}

	a1 := 0.254829592
	a2 := -0.284496736
	a3 := 1.421413741
	a4 := -1.453152027
	a5 := 1.061405429
	p := 0.3275911

	sign := 1.0
	if z < 0 {
		sign = -1.0
	}
	x := math.Abs(z) / math.Sqrt(2)

	t := 1.0 / (1.0 + p*x)
	y := 1.0 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return 0.5 * (1.0 + sign*y)
}
