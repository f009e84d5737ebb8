package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/splitlab/splitlab/internal/audience"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    hypothesis TEXT,
    status TEXT NOT NULL DEFAULT 'draft',
    duration_days INTEGER NOT NULL DEFAULT 0,
    start_date INTEGER,
    end_date INTEGER,
    target_audience TEXT,
    metrics TEXT NOT NULL,
    primary_metric INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS variants (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL,
    name TEXT NOT NULL,
    position INTEGER NOT NULL,
    traffic_percentage REAL NOT NULL,
    configuration TEXT,
    assignments INTEGER NOT NULL DEFAULT 0,
    UNIQUE (experiment_id, name),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_variants_experiment ON variants(experiment_id, position);

CREATE TABLE IF NOT EXISTS variant_events (
    variant_id TEXT NOT NULL,
    event TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (variant_id, event),
    FOREIGN KEY (variant_id) REFERENCES variants(id)
);

CREATE TABLE IF NOT EXISTS event_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    variant_id TEXT NOT NULL,
    event TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    value REAL,
    payload TEXT,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (variant_id) REFERENCES variants(id)
);

CREATE INDEX IF NOT EXISTS idx_samples_variant_event ON event_samples(variant_id, event);

CREATE TABLE IF NOT EXISTS subjects (
    id TEXT PRIMARY KEY,
    role TEXT,
    email_domain TEXT,
    registered_at INTEGER,
    region TEXT,
    tags TEXT
);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment, variants []*Variant) error {
	metricsJSON, err := json.Marshal(exp.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	var audienceJSON sql.NullString
	if !exp.TargetAudience.Empty() {
		b, err := json.Marshal(exp.TargetAudience)
		if err != nil {
			return fmt.Errorf("failed to marshal target audience: %w", err)
		}
		audienceJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiments (id, name, hypothesis, status, duration_days, start_date, end_date,
		                          target_audience, metrics, primary_metric, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Hypothesis, string(exp.Status), exp.DurationDays,
		nullableUnix(exp.StartDate), nullableUnix(exp.EndDate),
		audienceJSON, string(metricsJSON), exp.PrimaryMetric, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	for _, v := range variants {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO variants (id, experiment_id, name, position, traffic_percentage, configuration)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			v.ID, v.ExperimentID, v.Name, v.Position, v.TrafficPercentage, nullableString(v.Configuration),
		)
		if err != nil {
			return fmt.Errorf("failed to insert variant %q: %w", v.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit experiment: %w", err)
	}

	exp.CreatedAt = time.Unix(now, 0)
	exp.UpdatedAt = time.Unix(now, 0)
	return nil
}

const experimentColumns = `id, name, hypothesis, status, duration_days, start_date, end_date,
	target_audience, metrics, primary_metric, created_at, updated_at`

func (s *SQLiteStore) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	return scanExperiment(row)
}

func (s *SQLiteStore) GetExperimentByName(ctx context.Context, name string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE name = ?`, name)
	return scanExperiment(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var hypothesis, audienceJSON sql.NullString
	var metricsJSON string
	var startDate, endDate sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.Name, &hypothesis, &exp.Status, &exp.DurationDays,
		&startDate, &endDate, &audienceJSON, &metricsJSON, &exp.PrimaryMetric,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan experiment: %w", err)
	}

	exp.Hypothesis = hypothesis.String

	if err := json.Unmarshal([]byte(metricsJSON), &exp.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	if audienceJSON.Valid && audienceJSON.String != "" {
		var aud audience.Audience
		if err := json.Unmarshal([]byte(audienceJSON.String), &aud); err != nil {
			return nil, fmt.Errorf("failed to unmarshal target audience: %w", err)
		}
		exp.TargetAudience = &aud
	}

	exp.StartDate = unixPtr(startDate)
	exp.EndDate = unixPtr(endDate)
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, rows.Err()
}

func (s *SQLiteStore) UpdateExperimentStatus(ctx context.Context, id string, status ExperimentStatus, update StatusUpdate) error {
	set := []string{"status = ?", "updated_at = ?"}
	args := []any{string(status), time.Now().Unix()}

	if update.StartDate != nil {
		set = append(set, "start_date = ?")
		args = append(args, update.StartDate.Unix())
	}
	if update.EndDate != nil {
		set = append(set, "end_date = ?")
		args = append(args, update.EndDate.Unix())
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Variants(ctx context.Context, experimentID string) ([]*Variant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, name, position, traffic_percentage, configuration, assignments
		 FROM variants WHERE experiment_id = ? ORDER BY position`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	var variants []*Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (s *SQLiteStore) VariantByName(ctx context.Context, experimentID, name string) (*Variant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, experiment_id, name, position, traffic_percentage, configuration, assignments
		 FROM variants WHERE experiment_id = ? AND name = ?`, experimentID, name)
	return scanVariant(row)
}

func scanVariant(row rowScanner) (*Variant, error) {
	var v Variant
	var configuration sql.NullString

	err := row.Scan(&v.ID, &v.ExperimentID, &v.Name, &v.Position,
		&v.TrafficPercentage, &configuration, &v.Assignments)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan variant: %w", err)
	}

	if configuration.Valid {
		v.Configuration = json.RawMessage(configuration.String)
	}
	return &v, nil
}

// IncrementAssignments bumps the variant's assignment counter. The increment
// happens inside the UPDATE so concurrent callers never lose updates.
func (s *SQLiteStore) IncrementAssignments(ctx context.Context, variantID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE variants SET assignments = assignments + 1 WHERE id = ?`, variantID)
	if err != nil {
		return fmt.Errorf("failed to increment assignments: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementEvent upserts the per-variant event counter atomically.
func (s *SQLiteStore) IncrementEvent(ctx context.Context, variantID, event string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO variant_events (variant_id, event, count) VALUES (?, ?, 1)
		 ON CONFLICT (variant_id, event) DO UPDATE SET count = count + 1`,
		variantID, event)
	if err != nil {
		return fmt.Errorf("failed to increment event count: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendSample(ctx context.Context, sample *Sample) error {
	created := sample.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_samples (variant_id, event, subject_id, value, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sample.VariantID, sample.Event, sample.SubjectID,
		nullableFloat(sample.Value), nullableString(sample.Payload), created.Unix())
	if err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EventCounts(ctx context.Context, variantID string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event, count FROM variant_events WHERE variant_id = ?`, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var event string
		var count int64
		if err := rows.Scan(&event, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[event] = count
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Samples(ctx context.Context, variantID, event string) ([]*Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, variant_id, event, subject_id, value, payload, created_at
		 FROM event_samples WHERE variant_id = ? AND event = ?`, variantID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to get samples: %w", err)
	}
	defer rows.Close()

	var samples []*Sample
	for rows.Next() {
		var sm Sample
		var value sql.NullFloat64
		var payload sql.NullString
		var createdAt int64
		if err := rows.Scan(&sm.ID, &sm.VariantID, &sm.Event, &sm.SubjectID, &value, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if value.Valid {
			v := value.Float64
			sm.Value = &v
		}
		if payload.Valid {
			sm.Payload = json.RawMessage(payload.String)
		}
		sm.CreatedAt = time.Unix(createdAt, 0)
		samples = append(samples, &sm)
	}
	return samples, rows.Err()
}

func (s *SQLiteStore) PutSubject(ctx context.Context, subject *audience.Subject) error {
	var tagsJSON sql.NullString
	if len(subject.Tags) > 0 {
		b, err := json.Marshal(subject.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		tagsJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, role, email_domain, registered_at, region, tags)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   role = excluded.role, email_domain = excluded.email_domain,
		   registered_at = excluded.registered_at, region = excluded.region, tags = excluded.tags`,
		subject.ID, subject.Role, subject.EmailDomain, subject.RegisteredAt.Unix(), subject.Region, tagsJSON)
	if err != nil {
		return fmt.Errorf("failed to put subject: %w", err)
	}
	return nil
}

// Resolve implements audience.Resolver on top of the subjects table.
func (s *SQLiteStore) Resolve(ctx context.Context, subjectID string) (*audience.Subject, error) {
	var subject audience.Subject
	var role, emailDomain, region, tagsJSON sql.NullString
	var registeredAt sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, role, email_domain, registered_at, region, tags FROM subjects WHERE id = ?`,
		subjectID,
	).Scan(&subject.ID, &role, &emailDomain, &registeredAt, &region, &tagsJSON)
	if err == sql.ErrNoRows {
		return nil, audience.ErrUnknownSubject
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subject: %w", err)
	}

	subject.Role = role.String
	subject.EmailDomain = emailDomain.String
	subject.Region = region.String
	if registeredAt.Valid {
		subject.RegisteredAt = time.Unix(registeredAt.Int64, 0)
	}
	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &subject.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	return &subject, nil
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
