// Package audience decides whether a subject is eligible for an experiment.
package audience

import (
	"context"
	"errors"
	"time"
)

var ErrUnknownSubject = errors.New("unknown subject")

// Subject is the attribute view of a platform user that targeting rules
// evaluate against.
type Subject struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	EmailDomain  string    `json:"email_domain"`
	RegisteredAt time.Time `json:"registered_at"`
	Region       string    `json:"region"`
	Tags         []string  `json:"tags"`
}

// Resolver looks up subject attributes. The engine treats any failure,
// including ErrUnknownSubject, as "does not match" so a flaky lookup can
// never admit an unvetted subject into an experiment.
type Resolver interface {
	Resolve(ctx context.Context, subjectID string) (*Subject, error)
}
