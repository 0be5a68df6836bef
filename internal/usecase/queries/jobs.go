package queries

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobFilter narrows a job listing. Nil fields match everything.
type JobFilter struct {
	Status     *string
	Channel    *string
	BusinessID *string
}

// JobView is the read model of one notification job, newest-created-first
// in listings.
type JobView struct {
	ID            uuid.UUID      `json:"id"`
	BusinessID    string         `json:"businessId"`
	Channel       string         `json:"channel"`
	Audience      string         `json:"audience"`
	Subject       *string        `json:"subject,omitempty"`
	Message       string         `json:"message"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Status        string         `json:"status"`
	Provider      *string        `json:"provider,omitempty"`
	Attempts      int            `json:"attempts"`
	MaxAttempts   int            `json:"maxAttempts"`
	NextAttemptAt time.Time      `json:"nextAttemptAt"`
	LastAttemptAt *time.Time     `json:"lastAttemptAt,omitempty"`
	SentAt        *time.Time     `json:"sentAt,omitempty"`
	FailedAt      *time.Time     `json:"failedAt,omitempty"`
	LastError     *string        `json:"lastError,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// AuditView is the read model of one audit entry, newest-first in listings.
type AuditView struct {
	ID        uuid.UUID      `json:"id"`
	JobID     uuid.UUID      `json:"jobId"`
	Event     string         `json:"event"`
	Channel   string         `json:"channel"`
	Provider  *string        `json:"provider,omitempty"`
	Attempt   *int           `json:"attempt,omitempty"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type JobReadStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*JobView, error)
	List(ctx context.Context, filter JobFilter) ([]*JobView, error)
	ListAudit(ctx context.Context, jobID *uuid.UUID) ([]*AuditView, error)
}

// JobQueries are pure read-throughs to the store; no engine-side logic.
type JobQueries interface {
	GetByID(ctx context.Context, id uuid.UUID) (*JobView, error)
	List(ctx context.Context, filter JobFilter) ([]*JobView, error)
	ListAuditLogs(ctx context.Context, jobID *uuid.UUID) ([]*AuditView, error)
}

type jobQueriesImpl struct {
	store JobReadStore
}

func NewJobQueries(store JobReadStore) JobQueries {
	return &jobQueriesImpl{store: store}
}

func (q *jobQueriesImpl) GetByID(ctx context.Context, id uuid.UUID) (*JobView, error) {
	return q.store.GetByID(ctx, id)
}

func (q *jobQueriesImpl) List(ctx context.Context, filter JobFilter) ([]*JobView, error) {
	return q.store.List(ctx, filter)
}

func (q *jobQueriesImpl) ListAuditLogs(ctx context.Context, jobID *uuid.UUID) ([]*AuditView, error) {
	return q.store.ListAudit(ctx, jobID)
}
