// Package engine buckets subjects into variants and attributes tracked
// events to the bucketed variant.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/splitlab/splitlab/internal/audience"
	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/store"
)

// ControlVariant is the sentinel returned whenever a subject cannot be
// bucketed: unknown or inactive experiment, audience mismatch, or an
// experiment with no variants. It is never null and carries no side effects.
const ControlVariant = "control"

type Engine struct {
	store       store.Store
	experiments *experiment.Manager
	resolver    audience.Resolver
	cache       *Cache
	log         zerolog.Logger
}

func New(s store.Store, m *experiment.Manager, r audience.Resolver, cache *Cache, log zerolog.Logger) *Engine {
	return &Engine{
		store:       s,
		experiments: m,
		resolver:    r,
		cache:       cache,
		log:         log.With().Str("component", "engine").Logger(),
	}
}

// Assign deterministically buckets a subject into one of the experiment's
// variants and returns the variant name. Repeat calls for the same pair
// return the same name; only the first call increments the assignment
// counter. Ineligible subjects get ControlVariant with no side effects.
func (e *Engine) Assign(ctx context.Context, experimentID, subjectID string) (string, error) {
	name, _, err := e.assign(ctx, experimentID, subjectID)
	return name, err
}

// assign additionally reports whether the name is a real assignment.
// assigned is false whenever the subject got the sentinel, which may
// share its name with a genuine variant.
func (e *Engine) assign(ctx context.Context, experimentID, subjectID string) (name string, assigned bool, err error) {
	if name, ok := e.cache.Get(experimentID, subjectID); ok {
		return name, true, nil
	}

	exp, err := e.experiments.Lookup(ctx, experimentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ControlVariant, false, nil
		}
		return ControlVariant, false, err
	}
	if exp.Status != store.StatusActive {
		return ControlVariant, false, nil
	}

	if !e.eligible(ctx, exp, subjectID) {
		return ControlVariant, false, nil
	}

	variants, err := e.store.Variants(ctx, experimentID)
	if err != nil {
		return ControlVariant, false, err
	}
	if len(variants) == 0 {
		return ControlVariant, false, nil
	}

	chosen := pick(variants, Bucket(subjectID))

	if err := e.store.IncrementAssignments(ctx, chosen.ID); err != nil {
		return ControlVariant, false, err
	}
	e.cache.Put(experimentID, subjectID, chosen.Name)

	e.log.Debug().Str("experiment", experimentID).Str("subject", subjectID).
		Str("variant", chosen.Name).Msg("subject assigned")
	return chosen.Name, true, nil
}

// eligible applies audience targeting. Resolution failures count as "no
// match": a subject we cannot vet stays out of the experiment.
func (e *Engine) eligible(ctx context.Context, exp *store.Experiment, subjectID string) bool {
	if exp.TargetAudience.Empty() {
		return true
	}
	subject, err := e.resolver.Resolve(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, audience.ErrUnknownSubject) {
			e.log.Warn().Err(err).Str("subject", subjectID).Msg("subject resolution failed")
		}
		return false
	}
	return audience.Matches(subject, exp.TargetAudience)
}

// pick walks variants in creation order accumulating traffic percentages
// and returns the first variant whose cumulative share exceeds the bucket.
// Under-allocated splits fall back to the first variant, matching the
// platform's historical behavior.
func pick(variants []*store.Variant, bucket int) *store.Variant {
	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.TrafficPercentage
		if float64(bucket) < cumulative {
			return v
		}
	}
	return variants[0]
}

// Track attributes an event to the subject's assigned variant, assigning
// first if needed. Subjects that only got the sentinel leave no trace, even
// when a real variant shares the sentinel's name. The event counter
// increment is atomic in the store; the sample append may land out of
// order, which reporting tolerates. A payload with a numeric "value" field
// feeds average metrics.
func (e *Engine) Track(ctx context.Context, experimentID, subjectID, event string, payload json.RawMessage) error {
	name, assigned, err := e.assign(ctx, experimentID, subjectID)
	if err != nil {
		return err
	}
	if !assigned {
		return nil
	}

	variant, err := e.store.VariantByName(ctx, experimentID, name)
	if err != nil {
		return fmt.Errorf("loading assigned variant: %w", err)
	}

	if err := e.store.IncrementEvent(ctx, variant.ID, event); err != nil {
		return err
	}

	sample := &store.Sample{
		VariantID: variant.ID,
		Event:     event,
		SubjectID: subjectID,
		Value:     payloadValue(payload),
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := e.store.AppendSample(ctx, sample); err != nil {
		return err
	}

	e.log.Debug().Str("experiment", experimentID).Str("subject", subjectID).
		Str("variant", name).Str("event", event).Msg("event tracked")
	return nil
}

func payloadValue(payload json.RawMessage) *float64 {
	if len(payload) == 0 {
		return nil
	}
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil
	}
	return body.Value
}
