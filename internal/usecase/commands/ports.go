package commands

import (
	"context"
	"time"

	"notify-dispatch/internal/domain/audit"
	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/pkg/patch"

	"github.com/google/uuid"
)

// JobPatch names the writable job fields for a partial update. Nullable
// columns use a pointer value so a set-to-null is distinguishable from
// "leave untouched".
type JobPatch struct {
	Status        patch.Field[job.Status]
	Provider      patch.Field[*string]
	Attempts      patch.Field[int]
	NextAttemptAt patch.Field[time.Time]
	LastAttemptAt patch.Field[*time.Time]
	SentAt        patch.Field[*time.Time]
	FailedAt      patch.Field[*time.Time]
	LastError     patch.Field[*string]
}

type JobRepository interface {
	Create(ctx context.Context, j *job.Job) error
	FindByID(ctx context.Context, id uuid.UUID) (*job.Job, error)
	Update(ctx context.Context, id uuid.UUID, p JobPatch) (*job.Job, error)
	// FindDue returns eligible jobs ordered by nextAttemptAt ascending,
	// truncated to limit (clamped to >= 1).
	FindDue(ctx context.Context, now time.Time, limit int) ([]*job.Job, error)
	// Claim is the compare-and-set transition queued|retrying -> processing.
	// It increments attempts, stamps lastAttemptAt and the provider name,
	// clears lastError, and returns the updated job. A job no longer in a
	// claimable state yields KindClaimConflict.
	Claim(ctx context.Context, id uuid.UUID, providerName string, now time.Time) (*job.Job, error)
}

type AuditRepository interface {
	Append(ctx context.Context, e *audit.Entry) error
}

// DispatchInput is what a channel provider receives for one attempt.
type DispatchInput struct {
	JobID      uuid.UUID
	BusinessID string
	Channel    job.Channel
	Audience   string
	Subject    *string
	Message    string
	Metadata   map[string]any
	Attempt    int
}

// SendResult is the provider's verdict. Accepted=false and a returned error
// are treated identically by the engine: a failed attempt.
type SendResult struct {
	Accepted   bool
	ExternalID *string
	Detail     *string
}

type Provider interface {
	Name() string
	Channel() job.Channel
	Send(ctx context.Context, input DispatchInput) (SendResult, error)
}

// ProviderRegistry resolves the single provider wired for a channel. A
// channel with nothing configured resolves to a provider whose Send always
// fails, so the state machine runs to natural failure instead of crashing.
type ProviderRegistry interface {
	ForChannel(ch job.Channel) Provider
}
