package results_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/splitlab/splitlab/internal/results"
	"github.com/splitlab/splitlab/internal/store"
	"github.com/splitlab/splitlab/internal/testutil"
)

type fixture struct {
	store *store.SQLiteStore
	exp   *store.Experiment
	vars  []*store.Variant
}

func setup(t *testing.T, metrics []store.Metric, variantNames ...string) *fixture {
	t.Helper()
	s := testutil.SetupTestStore(t)

	exp := &store.Experiment{
		ID:      uuid.NewString(),
		Name:    "pricing-page",
		Status:  store.StatusActive,
		Metrics: metrics,
	}
	var variants []*store.Variant
	for i, name := range variantNames {
		variants = append(variants, &store.Variant{
			ID:                uuid.NewString(),
			ExperimentID:      exp.ID,
			Name:              name,
			Position:          i,
			TrafficPercentage: 100 / float64(len(variantNames)),
		})
	}
	if err := s.CreateExperiment(context.Background(), exp, variants); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	return &fixture{store: s, exp: exp, vars: variants}
}

func (f *fixture) seed(t *testing.T, variant *store.Variant, assignments int, event string, eventCount int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < assignments; i++ {
		if err := f.store.IncrementAssignments(ctx, variant.ID); err != nil {
			t.Fatalf("failed to increment assignments: %v", err)
		}
	}
	for i := 0; i < eventCount; i++ {
		if err := f.store.IncrementEvent(ctx, variant.ID, event); err != nil {
			t.Fatalf("failed to increment event: %v", err)
		}
	}
}

func conversionMetric() []store.Metric {
	return []store.Metric{
		{Name: "purchase rate", EventKey: "purchase", Aggregation: store.AggConversion},
	}
}

func TestAnalyze_EndToEnd(t *testing.T) {
	// 30/100 control conversions vs 45/100 challenger conversions: a 50%
	// lift that the chi-square test calls significant.
	f := setup(t, conversionMetric(), "control", "B")
	f.seed(t, f.vars[0], 100, "purchase", 30)
	f.seed(t, f.vars[1], 100, "purchase", 45)

	report, err := results.New(f.store).Analyze(context.Background(), f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	control := report.Variants[0]
	challenger := report.Variants[1]

	if control.Metrics[0].Value != 30 {
		t.Errorf("expected control rate 30, got %f", control.Metrics[0].Value)
	}
	if challenger.Metrics[0].Value != 45 {
		t.Errorf("expected challenger rate 45, got %f", challenger.Metrics[0].Value)
	}

	if control.Significance != nil {
		t.Error("control must not be tested against itself")
	}
	sig := challenger.Significance
	if sig == nil {
		t.Fatal("expected significance on the challenger")
	}
	if math.Abs(sig.Lift-50) > 1e-9 {
		t.Errorf("expected lift 50, got %f", sig.Lift)
	}
	if !sig.Significant {
		t.Errorf("expected significance at p=%f", sig.PValue)
	}
	if sig.PValue >= 0.05 || sig.PValue < 0.02 {
		t.Errorf("expected p-value in [0.02, 0.05), got %f", sig.PValue)
	}
	if sig.Confidence < 95 || sig.Confidence > 100 {
		t.Errorf("expected confidence above 95, got %f", sig.Confidence)
	}

	if report.Winner != "B" {
		t.Errorf("expected winner B, got %q", report.Winner)
	}
}

func TestAnalyze_WinnerByHighestMetric(t *testing.T) {
	f := setup(t, conversionMetric(), "control", "bold-cta")
	f.seed(t, f.vars[0], 200, "purchase", 20) // 10%
	f.seed(t, f.vars[1], 200, "purchase", 40) // 20%

	report, err := results.New(f.store).Analyze(context.Background(), f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if report.Winner != "bold-cta" {
		t.Errorf("expected winner bold-cta, got %q", report.Winner)
	}
}

func TestAnalyze_NoControlVariant(t *testing.T) {
	f := setup(t, conversionMetric(), "blue", "green")
	f.seed(t, f.vars[0], 150, "purchase", 30)
	f.seed(t, f.vars[1], 150, "purchase", 20)

	report, err := results.New(f.store).Analyze(context.Background(), f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	for _, v := range report.Variants {
		if v.Significance != nil {
			t.Errorf("no control exists; variant %q should have no significance", v.Name)
		}
	}
}

func TestAnalyze_DegenerateData(t *testing.T) {
	// Active experiment with zero assignments and zero events must produce
	// neutral numbers, not NaN or an error.
	f := setup(t, conversionMetric(), "control", "empty")

	report, err := results.New(f.store).Analyze(context.Background(), f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed on degenerate data: %v", err)
	}

	for _, v := range report.Variants {
		if v.Metrics[0].Value != 0 {
			t.Errorf("variant %q: expected 0 rate, got %f", v.Name, v.Metrics[0].Value)
		}
		if math.IsNaN(v.CILower) || math.IsNaN(v.CIUpper) {
			t.Errorf("variant %q: NaN confidence interval", v.Name)
		}
	}

	sig := report.Variants[1].Significance
	if sig == nil {
		t.Fatal("expected a neutral significance record")
	}
	if sig.PValue != 1 || sig.Significant || sig.Confidence != 0 {
		t.Errorf("expected neutral significance, got %+v", sig)
	}
	if sig.Lift != 0 {
		t.Errorf("expected lift 0 with a zero control rate, got %f", sig.Lift)
	}
}

func TestAnalyze_AverageMetric(t *testing.T) {
	metrics := []store.Metric{
		{Name: "order value", EventKey: "purchase", Aggregation: store.AggAverage},
	}
	f := setup(t, metrics, "control", "upsell")
	ctx := context.Background()

	for _, amount := range []float64{10, 20, 30} {
		v := amount
		err := f.store.AppendSample(ctx, &store.Sample{
			VariantID: f.vars[1].ID, Event: "purchase", SubjectID: "s", Value: &v,
		})
		if err != nil {
			t.Fatalf("failed to append sample: %v", err)
		}
	}
	// A sample without a numeric value is ignored by the mean.
	err := f.store.AppendSample(ctx, &store.Sample{
		VariantID: f.vars[1].ID, Event: "purchase", SubjectID: "s",
	})
	if err != nil {
		t.Fatalf("failed to append sample: %v", err)
	}

	report, err := results.New(f.store).Analyze(ctx, f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	if got := report.Variants[1].Metrics[0].Value; got != 20 {
		t.Errorf("expected mean order value 20, got %f", got)
	}
	if got := report.Variants[0].Metrics[0].Value; got != 0 {
		t.Errorf("expected 0 for variant with no samples, got %f", got)
	}
}

func TestAnalyze_CountMetric(t *testing.T) {
	metrics := []store.Metric{
		{Name: "comments", EventKey: "comment", Aggregation: store.AggCount},
	}
	f := setup(t, metrics, "control", "threaded")
	f.seed(t, f.vars[1], 10, "comment", 7)

	report, err := results.New(f.store).Analyze(context.Background(), f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if got := report.Variants[1].Metrics[0].Value; got != 7 {
		t.Errorf("expected raw count 7, got %f", got)
	}
}

func TestAnalyze_NormalizedScoring(t *testing.T) {
	metrics := []store.Metric{
		{Name: "conversion", EventKey: "purchase", Aggregation: store.AggConversion},
		{Name: "clicks", EventKey: "click", Aggregation: store.AggCount},
	}
	f := setup(t, metrics, "control", "challenger")
	// control: 10% conversion, 50 clicks -> raw score 60
	// challenger: 20% conversion, 30 clicks -> raw score 50
	f.seed(t, f.vars[0], 10, "purchase", 1)
	f.seed(t, f.vars[0], 0, "click", 50)
	f.seed(t, f.vars[1], 10, "purchase", 2)
	f.seed(t, f.vars[1], 0, "click", 30)

	ctx := context.Background()

	raw := results.New(f.store)
	report, err := raw.Analyze(ctx, f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if report.Winner != "control" {
		t.Errorf("raw scoring: expected control to win on click volume, got %q", report.Winner)
	}

	normalized := results.New(f.store)
	normalized.NormalizedScoring = true
	report, err = normalized.Analyze(ctx, f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	// Normalized: control 0.5 + 1.0 = 1.5, challenger 1.0 + 0.6 = 1.6.
	if report.Winner != "challenger" {
		t.Errorf("normalized scoring: expected challenger to win, got %q", report.Winner)
	}
}

func TestAnalyze_Recommendations(t *testing.T) {
	f := setup(t, conversionMetric(), "control", "low-traffic")
	f.seed(t, f.vars[0], 150, "purchase", 30)
	f.seed(t, f.vars[1], 40, "purchase", 10)

	report, err := results.New(f.store).Analyze(context.Background(), f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	var flaggedUnderPowered, namedWinner bool
	for _, rec := range report.Recommendations {
		if contains(rec, "low-traffic") && contains(rec, "under-powered") {
			flaggedUnderPowered = true
		}
		if contains(rec, report.Winner) && contains(rec, "leads") {
			namedWinner = true
		}
	}
	if !flaggedUnderPowered {
		t.Errorf("expected an under-powered flag for low-traffic, got %v", report.Recommendations)
	}
	if !namedWinner {
		t.Errorf("expected the winner to be named, got %v", report.Recommendations)
	}
}

func TestAnalyze_SingleVariant(t *testing.T) {
	f := setup(t, conversionMetric(), "control")
	f.seed(t, f.vars[0], 120, "purchase", 12)

	report, err := results.New(f.store).Analyze(context.Background(), f.exp.ID)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	var flagged bool
	for _, rec := range report.Recommendations {
		if contains(rec, "fewer than 2 variants") {
			flagged = true
		}
	}
	if !flagged {
		t.Errorf("expected a fewer-than-2-variants flag, got %v", report.Recommendations)
	}
}

func TestAnalyze_NotFound(t *testing.T) {
	s := testutil.SetupTestStore(t)

	_, err := results.New(s).Analyze(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
