// Package experiment owns experiment creation and status transitions, and
// keeps an in-memory index of active experiments for assignment lookups.
package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/splitlab/splitlab/internal/audience"
	"github.com/splitlab/splitlab/internal/store"
)

var ErrInvalidConfig = errors.New("invalid experiment configuration")

// VariantSpec describes one variant at creation time. A nil
// TrafficPercentage means "split the remainder evenly": each unspecified
// variant receives 100/len(variants).
type VariantSpec struct {
	Name              string          `json:"name"`
	TrafficPercentage *float64        `json:"traffic_percentage,omitempty"`
	Configuration     json.RawMessage `json:"configuration,omitempty"`
}

// CreateSpec is the full experiment definition supplied by the caller.
type CreateSpec struct {
	Name           string             `json:"name"`
	Hypothesis     string             `json:"hypothesis,omitempty"`
	Variants       []VariantSpec      `json:"variants"`
	TargetAudience *audience.Audience `json:"target_audience,omitempty"`
	Metrics        []store.Metric     `json:"metrics"`
	PrimaryMetric  int                `json:"primary_metric"`
	DurationDays   int                `json:"duration_days"`
}

// Manager drives the experiment lifecycle:
//
//	draft --Start--> active --Stop--> completed
//	              active <--Resume-- paused <--Pause-- active
//
// and Cancel moves any non-terminal experiment to cancelled.
type Manager struct {
	store store.Store
	log   zerolog.Logger

	mu     sync.RWMutex
	active map[string]*store.Experiment
}

func NewManager(s store.Store, log zerolog.Logger) *Manager {
	return &Manager{
		store:  s,
		log:    log.With().Str("component", "experiment").Logger(),
		active: make(map[string]*store.Experiment),
	}
}

// LoadActive warms the active index from the store, typically at startup.
func (m *Manager) LoadActive(ctx context.Context) error {
	experiments, err := m.store.ListExperiments(ctx)
	if err != nil {
		return fmt.Errorf("failed to load experiments: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, exp := range experiments {
		if exp.Status == store.StatusActive {
			m.active[exp.ID] = exp
		}
	}
	return nil
}

// Create validates the spec, persists the experiment in draft status, and
// creates one variant row per spec entry. Unnamed variants are named
// "Variant A", "Variant B", ... by position; unspecified percentages
// default to an even 100/n split.
func (m *Manager) Create(ctx context.Context, spec CreateSpec) (*store.Experiment, []*store.Variant, error) {
	if err := validate(spec); err != nil {
		return nil, nil, err
	}

	exp := &store.Experiment{
		ID:             uuid.NewString(),
		Name:           spec.Name,
		Hypothesis:     spec.Hypothesis,
		Status:         store.StatusDraft,
		DurationDays:   spec.DurationDays,
		TargetAudience: spec.TargetAudience,
		Metrics:        spec.Metrics,
		PrimaryMetric:  spec.PrimaryMetric,
	}

	defaultPct := 100.0 / float64(len(spec.Variants))
	variants := make([]*store.Variant, len(spec.Variants))
	for i, vs := range spec.Variants {
		name := vs.Name
		if name == "" {
			name = fmt.Sprintf("Variant %c", 'A'+i)
		}
		pct := defaultPct
		if vs.TrafficPercentage != nil {
			pct = *vs.TrafficPercentage
		}
		variants[i] = &store.Variant{
			ID:                uuid.NewString(),
			ExperimentID:      exp.ID,
			Name:              name,
			Position:          i,
			TrafficPercentage: pct,
			Configuration:     vs.Configuration,
		}
	}

	if err := m.store.CreateExperiment(ctx, exp, variants); err != nil {
		return nil, nil, err
	}

	m.log.Info().Str("experiment", exp.ID).Str("name", exp.Name).
		Int("variants", len(variants)).Msg("experiment created")
	return exp, variants, nil
}

func validate(spec CreateSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if len(spec.Variants) == 0 {
		return fmt.Errorf("%w: at least one variant is required", ErrInvalidConfig)
	}
	if len(spec.Metrics) == 0 {
		return fmt.Errorf("%w: at least one metric is required", ErrInvalidConfig)
	}
	if spec.PrimaryMetric < 0 || spec.PrimaryMetric >= len(spec.Metrics) {
		return fmt.Errorf("%w: primary metric index %d out of range", ErrInvalidConfig, spec.PrimaryMetric)
	}
	if spec.DurationDays < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidConfig)
	}

	for _, metric := range spec.Metrics {
		switch metric.Aggregation {
		case store.AggConversion, store.AggAverage, store.AggCount:
		default:
			return fmt.Errorf("%w: unknown aggregation %q", ErrInvalidConfig, metric.Aggregation)
		}
		if metric.EventKey == "" {
			return fmt.Errorf("%w: metric %q has no event key", ErrInvalidConfig, metric.Name)
		}
	}

	seen := make(map[string]bool)
	total := 0.0
	for i, vs := range spec.Variants {
		if vs.TrafficPercentage != nil {
			pct := *vs.TrafficPercentage
			if pct < 0 || pct > 100 {
				return fmt.Errorf("%w: traffic percentage %.1f outside [0,100]", ErrInvalidConfig, pct)
			}
			total += pct
		} else {
			total += 100.0 / float64(len(spec.Variants))
		}
		name := vs.Name
		if name == "" {
			name = fmt.Sprintf("Variant %c", 'A'+i)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate variant name %q", ErrInvalidConfig, name)
		}
		seen[name] = true
	}
	// Allow a little float slack; under-allocation is permitted, over is not.
	if total > 100.0001 {
		return fmt.Errorf("%w: traffic percentages sum to %.1f, must not exceed 100", ErrInvalidConfig, total)
	}
	return nil
}

// Start transitions a draft experiment to active, stamps its start and end
// dates, and adds it to the active index.
func (m *Manager) Start(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusDraft {
		return nil, fmt.Errorf("cannot start experiment in status %q", exp.Status)
	}

	now := time.Now()
	end := now.AddDate(0, 0, exp.DurationDays)
	update := store.StatusUpdate{StartDate: &now, EndDate: &end}
	if err := m.store.UpdateExperimentStatus(ctx, id, store.StatusActive, update); err != nil {
		return nil, err
	}

	exp.Status = store.StatusActive
	exp.StartDate = &now
	exp.EndDate = &end

	m.mu.Lock()
	m.active[id] = exp
	m.mu.Unlock()

	m.log.Info().Str("experiment", id).Time("end_date", end).Msg("experiment started")
	return exp, nil
}

// Stop completes an active experiment and evicts it from the active index.
func (m *Manager) Stop(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusActive {
		return nil, fmt.Errorf("cannot stop experiment in status %q", exp.Status)
	}

	now := time.Now()
	if err := m.store.UpdateExperimentStatus(ctx, id, store.StatusCompleted, store.StatusUpdate{EndDate: &now}); err != nil {
		return nil, err
	}

	exp.Status = store.StatusCompleted
	exp.EndDate = &now
	m.evict(id)

	m.log.Info().Str("experiment", id).Msg("experiment completed")
	return exp, nil
}

// Pause suspends an active experiment without ending it.
func (m *Manager) Pause(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusActive {
		return nil, fmt.Errorf("cannot pause experiment in status %q", exp.Status)
	}

	if err := m.store.UpdateExperimentStatus(ctx, id, store.StatusPaused, store.StatusUpdate{}); err != nil {
		return nil, err
	}

	exp.Status = store.StatusPaused
	m.evict(id)

	m.log.Info().Str("experiment", id).Msg("experiment paused")
	return exp, nil
}

// Resume reactivates a paused experiment.
func (m *Manager) Resume(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != store.StatusPaused {
		return nil, fmt.Errorf("cannot resume experiment in status %q", exp.Status)
	}

	if err := m.store.UpdateExperimentStatus(ctx, id, store.StatusActive, store.StatusUpdate{}); err != nil {
		return nil, err
	}

	exp.Status = store.StatusActive
	m.mu.Lock()
	m.active[id] = exp
	m.mu.Unlock()

	m.log.Info().Str("experiment", id).Msg("experiment resumed")
	return exp, nil
}

// Cancel abandons an experiment from any non-terminal status.
func (m *Manager) Cancel(ctx context.Context, id string) (*store.Experiment, error) {
	exp, err := m.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status == store.StatusCompleted || exp.Status == store.StatusCancelled {
		return nil, fmt.Errorf("cannot cancel experiment in status %q", exp.Status)
	}

	now := time.Now()
	if err := m.store.UpdateExperimentStatus(ctx, id, store.StatusCancelled, store.StatusUpdate{EndDate: &now}); err != nil {
		return nil, err
	}

	exp.Status = store.StatusCancelled
	exp.EndDate = &now
	m.evict(id)

	m.log.Info().Str("experiment", id).Msg("experiment cancelled")
	return exp, nil
}

func (m *Manager) evict(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// Get loads an experiment by id.
func (m *Manager) Get(ctx context.Context, id string) (*store.Experiment, error) {
	return m.store.GetExperiment(ctx, id)
}

// List returns all experiments, newest first.
func (m *Manager) List(ctx context.Context) ([]*store.Experiment, error) {
	return m.store.ListExperiments(ctx)
}

// Lookup returns the experiment from the active index when possible,
// falling back to the store. Assignment is on the hot path; the index
// avoids a read per call for running experiments.
func (m *Manager) Lookup(ctx context.Context, id string) (*store.Experiment, error) {
	m.mu.RLock()
	exp, ok := m.active[id]
	m.mu.RUnlock()
	if ok {
		return exp, nil
	}
	return m.store.GetExperiment(ctx, id)
}
