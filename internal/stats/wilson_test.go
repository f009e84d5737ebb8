package stats_test

import (
	"math"
	"testing"

	"github.com/splitlab/splitlab/internal/stats"
)

func TestWilsonInterval_ZeroTrials(t *testing.T) {
	lower, upper := stats.WilsonInterval(0, 0, 0.95)

	if lower != 0 || upper != 0 {
		t.Errorf("expected [0, 0] for zero trials, got [%f, %f]", lower, upper)
	}
}

func TestWilsonInterval_HalfConversion(t *testing.T) {
	lower, upper := stats.WilsonInterval(50, 100, 0.95)

	if math.Abs(lower-0.404) > 0.01 {
		t.Errorf("expected lower ~0.404, got %f", lower)
	}
	if math.Abs(upper-0.596) > 0.01 {
		t.Errorf("expected upper ~0.596, got %f", upper)
	}
}

func TestWilsonInterval_Clamped(t *testing.T) {
	lower, _ := stats.WilsonInterval(0, 10, 0.95)
	_, upper := stats.WilsonInterval(10, 10, 0.95)

	if lower < 0 {
		t.Errorf("lower bound below 0: %f", lower)
	}
	if upper > 1 {
		t.Errorf("upper bound above 1: %f", upper)
	}
}

func TestWilsonInterval_NarrowsWithSamples(t *testing.T) {
	smallLower, smallUpper := stats.WilsonInterval(5, 10, 0.95)
	bigLower, bigUpper := stats.WilsonInterval(500, 1000, 0.95)

	if (bigUpper - bigLower) >= (smallUpper - smallLower) {
		t.Errorf("interval did not narrow: small width %f, big width %f",
			smallUpper-smallLower, bigUpper-bigLower)
	}
}
