package stats

import "math"

// ChiSquareResult holds the outcome of a 2x2 independence test.
type ChiSquareResult struct {
	ChiSquare        float64
	DegreesOfFreedom int
	PValue           float64
}

// ChiSquareTest runs a 2x2 contingency-table test with Yates' continuity
// correction. a and b are the variant's successes and failures; c and d are
// the control's. Degenerate tables (empty, or any expected cell of zero)
// come back as {0, 1, 1}: no evidence rather than a division by zero.
func ChiSquareTest(a, b, c, d float64) ChiSquareResult {
	neutral := ChiSquareResult{ChiSquare: 0, DegreesOfFreedom: 1, PValue: 1}

	total := a + b + c + d
	if total == 0 {
		return neutral
	}

	row1 := a + b
	row2 := c + d
	col1 := a + c
	col2 := b + d

	observed := [4]float64{a, b, c, d}
	expected := [4]float64{
		row1 * col1 / total,
		row1 * col2 / total,
		row2 * col1 / total,
		row2 * col2 / total,
	}

	chi := 0.0
	for i := range observed {
		if expected[i] == 0 {
			return neutral
		}
		diff := math.Abs(observed[i]-expected[i]) - 0.5 // Yates correction
		chi += diff * diff / expected[i]
	}

	return ChiSquareResult{
		ChiSquare:        chi,
		DegreesOfFreedom: 1,
		PValue:           ChiSquarePValue(chi, 1),
	}
}

// ChiSquarePValue approximates the upper-tail p-value of a chi-square
// statistic. With one degree of freedom the statistic is the square of a
// standard normal, so the two-tailed normal CDF is exact up to the CDF
// approximation itself. Higher degrees of freedom go through the
// Wilson-Hilferty cube-root transform.
func ChiSquarePValue(chiSquare float64, df int) float64 {
	if chiSquare <= 0 || df <= 0 {
		return 1
	}

	if df == 1 {
		return 2 * (1 - NormalCDF(math.Sqrt(chiSquare)))
	}

	h := 2.0 / (9.0 * float64(df))
	z := (math.Cbrt(chiSquare/float64(df)) - (1 - h)) / math.Sqrt(h)
	return 1 - NormalCDF(z)
}
