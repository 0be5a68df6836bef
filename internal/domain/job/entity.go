package job

import (
	"strings"
	"time"

	"notify-dispatch/internal/pkg/errs"

	"github.com/google/uuid"
)

var (
	ErrInvalidChannel     = errs.New("channel must be one of email, sms, push")
	ErrEmptyBusinessID    = errs.New("business id is required")
	ErrEmptyMessage       = errs.New("message is required")
	ErrInvalidMaxAttempts = errs.New("max attempts must be between 1 and 10")
)

// Job is one unit of asynchronous delivery work. It is created by the
// enqueue operation and mutated only through the job store by the dispatch
// engine (plus the explicit manual-retry operation).
type Job struct {
	ID         uuid.UUID
	BusinessID string
	Channel    Channel
	Audience   string
	Subject    *string
	Message    string

	// Metadata is the caller's open key/value bag, kept verbatim for
	// providers and audit. The two reserved shapes are parsed once at
	// creation into ScheduledFor and Fallback below.
	Metadata     map[string]any
	ScheduledFor *time.Time
	Fallback     *FallbackTargets

	Status        Status
	Provider      *string
	Attempts      int
	MaxAttempts   int
	NextAttemptAt time.Time
	LastAttemptAt *time.Time
	SentAt        *time.Time
	FailedAt      *time.Time
	LastError     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSpec carries the validated inputs of one enqueue call.
type NewSpec struct {
	BusinessID  string
	Channel     string
	Audience    string
	Subject     *string
	Message     string
	Metadata    map[string]any
	MaxAttempts *int
}

// New validates spec and builds a queued job. defaultMaxAttempts is used
// when the caller supplies no budget of its own; an explicit budget outside
// [1,10] is rejected rather than clamped.
func New(spec NewSpec, defaultMaxAttempts int, now time.Time) (*Job, error) {
	businessID := strings.TrimSpace(spec.BusinessID)
	if businessID == "" {
		return nil, ErrEmptyBusinessID
	}

	message := strings.TrimSpace(spec.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	channel := Channel(strings.ToLower(strings.TrimSpace(spec.Channel)))
	if !channel.Valid() {
		return nil, ErrInvalidChannel
	}

	maxAttempts := defaultMaxAttempts
	if spec.MaxAttempts != nil {
		maxAttempts = *spec.MaxAttempts
	}
	if maxAttempts < MinAttemptBudget || maxAttempts > MaxAttemptBudget {
		return nil, ErrInvalidMaxAttempts
	}

	j := &Job{
		ID:            uuid.New(),
		BusinessID:    businessID,
		Channel:       channel,
		Audience:      strings.TrimSpace(spec.Audience),
		Subject:       spec.Subject,
		Message:       message,
		Metadata:      spec.Metadata,
		Status:        StatusQueued,
		Attempts:      0,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if sched, ok := ScheduledFor(spec.Metadata, now); ok {
		j.ScheduledFor = &sched
		j.NextAttemptAt = sched
	}
	j.Fallback = ParseFallback(spec.Metadata)

	return j, nil
}

// Eligible reports whether the job may be picked up for an automatic
// attempt at now.
func (j *Job) Eligible(now time.Time) bool {
	if j.Status != StatusQueued && j.Status != StatusRetrying {
		return false
	}
	if j.Attempts >= j.MaxAttempts {
		return false
	}
	return !j.NextAttemptAt.After(now)
}

// Retriable reports whether a manual retry is allowed. Status is only
// checked against terminal success; a push job failed early by the fallback
// path (attempts < maxAttempts) stays re-armable on purpose.
func (j *Job) Retriable() bool {
	if j.Status == StatusSent {
		return false
	}
	return j.Attempts < j.MaxAttempts
}

// HasFallbackTargets reports whether a failed push attempt should cascade.
func (j *Job) HasFallbackTargets() bool {
	return j.Channel == ChannelPush && j.Fallback != nil && !j.Fallback.Empty()
}
