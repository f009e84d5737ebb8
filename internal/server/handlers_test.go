package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/splitlab/splitlab/internal/engine"
	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/results"
	"github.com/splitlab/splitlab/internal/server"
	"github.com/splitlab/splitlab/internal/store"
	"github.com/splitlab/splitlab/internal/testutil"
)

type fixture struct {
	handler http.Handler
	store   *store.SQLiteStore
	manager *experiment.Manager
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := testutil.SetupTestStore(t)
	log := testutil.Logger()
	m := experiment.NewManager(s, log)
	eng := engine.New(s, m, s, engine.NewCache(0), log)
	res := results.New(s)
	srv := server.New(s, m, eng, res, 0, log)
	return &fixture{handler: srv.Handler(), store: s, manager: m}
}

func pctPtr(v float64) *float64 { return &v }

func (f *fixture) activeExperiment(t *testing.T) *store.Experiment {
	t.Helper()
	exp, _, err := f.manager.Create(context.Background(), experiment.CreateSpec{
		Name: "homepage-hero",
		Variants: []experiment.VariantSpec{
			{Name: "control", TrafficPercentage: pctPtr(50)},
			{Name: "bold", TrafficPercentage: pctPtr(50)},
		},
		Metrics: []store.Metric{
			{Name: "signup rate", EventKey: "signup", Aggregation: store.AggConversion},
		},
		DurationDays: 7,
	})
	if err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	if _, err := f.manager.Start(context.Background(), exp.ID); err != nil {
		t.Fatalf("failed to start experiment: %v", err)
	}
	return exp
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	f := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp server.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status ok, got %q", resp.Status)
	}
}

func TestAssignEndpoint(t *testing.T) {
	f := setup(t)
	exp := f.activeExperiment(t)

	w := postJSON(t, f.handler, "/api/assign", server.AssignRequest{
		ExperimentID: exp.ID,
		SubjectID:    "reader-1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp server.AssignResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Variant != "control" && resp.Variant != "bold" {
		t.Errorf("expected a real variant, got %q", resp.Variant)
	}

	// Same subject, same answer.
	w = postJSON(t, f.handler, "/api/assign", server.AssignRequest{
		ExperimentID: exp.ID,
		SubjectID:    "reader-1",
	})
	var again server.AssignResponse
	if err := json.Unmarshal(w.Body.Bytes(), &again); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if again.Variant != resp.Variant {
		t.Errorf("assignment flipped: %q vs %q", resp.Variant, again.Variant)
	}
}

func TestAssignEndpoint_UnknownExperiment(t *testing.T) {
	f := setup(t)

	w := postJSON(t, f.handler, "/api/assign", server.AssignRequest{
		ExperimentID: "missing",
		SubjectID:    "reader-1",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp server.AssignResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp.Variant != engine.ControlVariant {
		t.Errorf("expected control sentinel, got %q", resp.Variant)
	}
}

func TestAssignEndpoint_MissingFields(t *testing.T) {
	f := setup(t)

	w := postJSON(t, f.handler, "/api/assign", server.AssignRequest{SubjectID: "reader-1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing experiment id, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/assign", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}
}

func TestTrackEndpoint(t *testing.T) {
	f := setup(t)
	exp := f.activeExperiment(t)

	w := postJSON(t, f.handler, "/api/track", server.TrackRequest{
		ExperimentID: exp.ID,
		SubjectID:    "reader-2",
		Event:        "signup",
		Payload:      json.RawMessage(`{"value": 1}`),
	})

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	variants, err := f.store.Variants(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("failed to list variants: %v", err)
	}
	var total int64
	for _, v := range variants {
		counts, err := f.store.EventCounts(context.Background(), v.ID)
		if err != nil {
			t.Fatalf("failed to get counts: %v", err)
		}
		total += counts["signup"]
	}
	if total != 1 {
		t.Errorf("expected 1 signup recorded, got %d", total)
	}
}

func TestTrackEndpoint_CORSPreflight(t *testing.T) {
	f := setup(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/track", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected CORS origin header, got %q", got)
	}
}

func TestResultsEndpoint(t *testing.T) {
	f := setup(t)
	exp := f.activeExperiment(t)

	req := httptest.NewRequest(http.MethodGet, "/api/results?experiment="+exp.ID, nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var report results.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if report.ExperimentID != exp.ID {
		t.Errorf("expected experiment id %s, got %s", exp.ID, report.ExperimentID)
	}
	if len(report.Variants) != 2 {
		t.Errorf("expected 2 variants in report, got %d", len(report.Variants))
	}
}

func TestResultsEndpoint_NotFound(t *testing.T) {
	f := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/api/results?experiment=missing", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCreateExperimentEndpoint(t *testing.T) {
	f := setup(t)

	spec := experiment.CreateSpec{
		Name: "api-created",
		Variants: []experiment.VariantSpec{
			{Name: "control"},
			{Name: "inline-signup"},
		},
		Metrics: []store.Metric{
			{Name: "signup rate", EventKey: "signup", Aggregation: store.AggConversion},
		},
		DurationDays: 14,
	}

	w := postJSON(t, f.handler, "/api/experiments", spec)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created server.CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if created.ID == "" {
		t.Error("expected an experiment id")
	}
	if len(created.Variants) != 2 {
		t.Errorf("expected 2 variant ids, got %d", len(created.Variants))
	}

	// Invalid specs come back as 400.
	spec.Variants = nil
	spec.Name = "broken"
	w = postJSON(t, f.handler, "/api/experiments", spec)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid spec, got %d", w.Code)
	}
}

func TestListExperimentsEndpoint(t *testing.T) {
	f := setup(t)
	f.activeExperiment(t)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var list []server.ExperimentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 experiment, got %d", len(list))
	}
	if list[0].Status != "active" {
		t.Errorf("expected active status, got %q", list[0].Status)
	}
	if list[0].StartDate == "" {
		t.Error("expected a start date on an active experiment")
	}
}
