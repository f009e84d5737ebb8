package store

import (
	"encoding/json"
	"time"

	"github.com/splitlab/splitlab/internal/audience"
)

type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusActive    ExperimentStatus = "active"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
	StatusCancelled ExperimentStatus = "cancelled"
)

type Aggregation string

const (
	AggConversion Aggregation = "conversion"
	AggAverage    Aggregation = "average"
	AggCount      Aggregation = "count"
)

// Metric describes one measured outcome of an experiment. EventKey is the
// event name the tracker records; Aggregation decides how raw events roll up
// into a single number per variant.
type Metric struct {
	Name        string      `json:"name"`
	EventKey    string      `json:"event_key"`
	Aggregation Aggregation `json:"aggregation"`
}

type Experiment struct {
	ID             string
	Name           string
	Hypothesis     string
	Status         ExperimentStatus
	DurationDays   int
	StartDate      *time.Time
	EndDate        *time.Time
	TargetAudience *audience.Audience // nil means everyone is eligible
	Metrics        []Metric
	PrimaryMetric  int // index into Metrics used for significance testing
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Variant is one treatment arm. Variants live in their own rows so that
// assignment and event counters never contend on the parent experiment.
type Variant struct {
	ID                string
	ExperimentID      string
	Name              string
	Position          int // creation order, the stable bucketing order
	TrafficPercentage float64
	Configuration     json.RawMessage // opaque to the engine
	Assignments       int64
}

// StatusUpdate carries the date changes that ride along with a status
// transition. Nil fields leave the stored value untouched.
type StatusUpdate struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// Sample is one recorded event occurrence. Value is set when the tracking
// payload carried a numeric "value" field; only average metrics read it.
type Sample struct {
	ID        int64
	VariantID string
	Event     string
	SubjectID string
	Value     *float64
	Payload   json.RawMessage
	CreatedAt time.Time
}
