package store

import (
	"context"

	"github.com/splitlab/splitlab/internal/audience"
)

// Store defines the persistence operations the experimentation engine needs.
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment, variants []*Variant) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpdateExperimentStatus(ctx context.Context, id string, status ExperimentStatus, update StatusUpdate) error

	// Variant operations
	Variants(ctx context.Context, experimentID string) ([]*Variant, error)
	VariantByName(ctx context.Context, experimentID, name string) (*Variant, error)
	IncrementAssignments(ctx context.Context, variantID string) error

	// Event operations
	IncrementEvent(ctx context.Context, variantID, event string) error
	AppendSample(ctx context.Context, sample *Sample) error
	EventCounts(ctx context.Context, variantID string) (map[string]int64, error)
	Samples(ctx context.Context, variantID, event string) ([]*Sample, error)

	// Subject operations (backs the audience resolver)
	PutSubject(ctx context.Context, subject *audience.Subject) error
	Resolve(ctx context.Context, subjectID string) (*audience.Subject, error)

	// Lifecycle
	Close() error
}
