// Package results aggregates per-variant metrics and computes significance
// against the control variant.
package results

import (
	"context"
	"fmt"
	"strings"

	"github.com/splitlab/splitlab/internal/stats"
	"github.com/splitlab/splitlab/internal/store"
)

// minPoweredAssignments is the assignment count below which a variant is
// flagged as under-powered in the recommendations.
const minPoweredAssignments = 100

type Engine struct {
	store store.Store

	// NormalizedScoring switches winner selection from the historical raw
	// sum of metric values, which mixes percentages with counts, to a
	// per-metric max-normalized sum.
	NormalizedScoring bool
}

func New(s store.Store) *Engine {
	return &Engine{store: s}
}

// Report is the full analysis of one experiment.
type Report struct {
	ExperimentID    string          `json:"experiment_id"`
	ExperimentName  string          `json:"experiment_name"`
	Status          string          `json:"status"`
	Variants        []VariantReport `json:"variants"`
	Winner          string          `json:"winner,omitempty"`
	Recommendations []string        `json:"recommendations"`
}

type VariantReport struct {
	Name         string        `json:"name"`
	Assignments  int64         `json:"assignments"`
	Metrics      []MetricValue `json:"metrics"`
	Significance *Significance `json:"significance,omitempty"` // nil for the control
	CILower      float64       `json:"ci_lower"`
	CIUpper      float64       `json:"ci_upper"`
}

type MetricValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Significance compares a variant to the control on the primary metric.
type Significance struct {
	ChiSquare   float64 `json:"chi_square"`
	PValue      float64 `json:"p_value"`
	Confidence  float64 `json:"confidence"` // 0-100
	Significant bool    `json:"significant"`
	Lift        float64 `json:"lift"` // percent change over control
}

// Analyze aggregates metrics for every variant, tests each non-control
// variant against the control on the primary metric, picks a winner, and
// produces recommendations. Degenerate data yields neutral results rather
// than errors.
func (e *Engine) Analyze(ctx context.Context, experimentID string) (*Report, error) {
	exp, err := e.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	variants, err := e.store.Variants(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ExperimentID:   exp.ID,
		ExperimentName: exp.Name,
		Status:         string(exp.Status),
	}

	var primary store.Metric
	if len(exp.Metrics) > 0 {
		primary = exp.Metrics[primaryIndex(exp)]
	}

	type variantData struct {
		variant      *store.Variant
		counts       map[string]int64
		primaryCount int64
	}

	data := make([]variantData, len(variants))
	for i, v := range variants {
		counts, err := e.store.EventCounts(ctx, v.ID)
		if err != nil {
			return nil, err
		}
		data[i] = variantData{variant: v, counts: counts, primaryCount: counts[primary.EventKey]}

		vr := VariantReport{Name: v.Name, Assignments: v.Assignments}
		for _, metric := range exp.Metrics {
			value, err := e.metricValue(ctx, metric, v, counts)
			if err != nil {
				return nil, err
			}
			vr.Metrics = append(vr.Metrics, MetricValue{Name: metric.Name, Value: value})
		}
		vr.CILower, vr.CIUpper = stats.WilsonInterval(data[i].primaryCount, v.Assignments, 0.95)
		report.Variants = append(report.Variants, vr)
	}

	control := controlIndex(variants)
	if control >= 0 {
		ctrl := data[control]
		controlRate := rate(ctrl.primaryCount, ctrl.variant.Assignments)

		for i := range report.Variants {
			if i == control {
				continue
			}
			d := data[i]
			test := stats.ChiSquareTest(
				float64(d.primaryCount), failures(d.primaryCount, d.variant.Assignments),
				float64(ctrl.primaryCount), failures(ctrl.primaryCount, ctrl.variant.Assignments),
			)

			variantRate := rate(d.primaryCount, d.variant.Assignments)
			lift := 0.0
			if controlRate != 0 {
				lift = (variantRate - controlRate) / controlRate * 100
			}

			report.Variants[i].Significance = &Significance{
				ChiSquare:   test.ChiSquare,
				PValue:      test.PValue,
				Confidence:  clamp((1-test.PValue)*100, 0, 100),
				Significant: test.PValue < 0.05,
				Lift:        lift,
			}
		}
	}

	report.Winner = e.winner(report.Variants)
	report.Recommendations = recommend(report)

	return report, nil
}

func primaryIndex(exp *store.Experiment) int {
	if exp.PrimaryMetric >= 0 && exp.PrimaryMetric < len(exp.Metrics) {
		return exp.PrimaryMetric
	}
	return 0
}

// controlIndex finds the baseline variant: the one named "control" or "A".
func controlIndex(variants []*store.Variant) int {
	for i, v := range variants {
		if strings.EqualFold(v.Name, "control") || v.Name == "A" {
			return i
		}
	}
	return -1
}

func (e *Engine) metricValue(ctx context.Context, metric store.Metric, v *store.Variant, counts map[string]int64) (float64, error) {
	count := counts[metric.EventKey]
	switch metric.Aggregation {
	case store.AggConversion:
		if v.Assignments == 0 {
			return 0, nil
		}
		return float64(count) / float64(v.Assignments) * 100, nil
	case store.AggAverage:
		samples, err := e.store.Samples(ctx, v.ID, metric.EventKey)
		if err != nil {
			return 0, err
		}
		sum, n := 0.0, 0
		for _, sample := range samples {
			if sample.Value != nil {
				sum += *sample.Value
				n++
			}
		}
		if n == 0 {
			return 0, nil
		}
		return sum / float64(n), nil
	default:
		return float64(count), nil
	}
}

// winner picks the variant with the highest additive metric score.
// The default raw sum reproduces the platform's historical behavior even
// though it mixes units; NormalizedScoring divides each metric by its
// cross-variant maximum first.
func (e *Engine) winner(variants []VariantReport) string {
	if len(variants) == 0 {
		return ""
	}

	nMetrics := len(variants[0].Metrics)
	scale := make([]float64, nMetrics)
	for i := range scale {
		scale[i] = 1
	}
	if e.NormalizedScoring {
		for i := 0; i < nMetrics; i++ {
			max := 0.0
			for _, v := range variants {
				if v.Metrics[i].Value > max {
					max = v.Metrics[i].Value
				}
			}
			if max > 0 {
				scale[i] = 1 / max
			}
		}
	}

	best := 0
	bestScore := -1.0
	for i, v := range variants {
		score := 0.0
		for j, m := range v.Metrics {
			score += m.Value * scale[j]
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return variants[best].Name
}

func recommend(report *Report) []string {
	var recs []string
	if len(report.Variants) < 2 {
		recs = append(recs, "Experiment has fewer than 2 variants; add a challenger to compare against.")
	}
	if report.Winner != "" && len(report.Variants) >= 2 {
		recs = append(recs, fmt.Sprintf("Variant %q leads on combined metric score.", report.Winner))
	}
	for _, v := range report.Variants {
		if v.Assignments < minPoweredAssignments {
			recs = append(recs, fmt.Sprintf("Variant %q has %d assignments (fewer than %d); results are under-powered.",
				v.Name, v.Assignments, minPoweredAssignments))
		}
	}
	return recs
}

func rate(count, assignments int64) float64 {
	if assignments == 0 {
		return 0
	}
	return float64(count) / float64(assignments) * 100
}

func failures(count, assignments int64) float64 {
	f := assignments - count
	if f < 0 {
		f = 0
	}
	return float64(f)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
