package audit

import (
	"time"

	"notify-dispatch/internal/domain/job"

	"github.com/google/uuid"
)

// Event is one significant lifecycle moment of a notification job.
type Event string

const (
	EventQueued           Event = "queued"
	EventAttemptStarted   Event = "attempt_started"
	EventAttemptSucceeded Event = "attempt_succeeded"
	EventAttemptFailed    Event = "attempt_failed"
	EventRetryScheduled   Event = "retry_scheduled"
	EventRetryRequested   Event = "retry_requested"
	EventFailedFinal      Event = "failed_final"
	EventFallbackQueued   Event = "fallback_queued"
)

func (e Event) String() string { return string(e) }

// Entry is one immutable audit record. Entries are appended alongside every
// job mutation and are never updated or deleted.
type Entry struct {
	ID        uuid.UUID
	JobID     uuid.UUID
	Event     Event
	Channel   job.Channel
	Provider  *string
	Attempt   *int // nil for the initial queued event
	Message   string
	Detail    map[string]any
	CreatedAt time.Time
}

// New builds an entry; the store assigns nothing further.
func New(jobID uuid.UUID, event Event, channel job.Channel, provider *string, attempt *int, message string, detail map[string]any, now time.Time) *Entry {
	return &Entry{
		ID:        uuid.New(),
		JobID:     jobID,
		Event:     event,
		Channel:   channel,
		Provider:  provider,
		Attempt:   attempt,
		Message:   message,
		Detail:    detail,
		CreatedAt: now,
	}
}
