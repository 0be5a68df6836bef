// Package memstore is the in-process job store backend. It backs local
// development and the unit suite; the Postgres repositories in
// internal/infra/repository are the durable equivalent.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"notify-dispatch/internal/domain/audit"
	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/infra"
	"notify-dispatch/internal/pkg/clock"
	"notify-dispatch/internal/usecase/commands"
	"notify-dispatch/internal/usecase/queries"

	"github.com/google/uuid"
)

var (
	_ commands.JobRepository   = (*Store)(nil)
	_ commands.AuditRepository = (*Store)(nil)
	_ queries.JobReadStore     = (*Store)(nil)
)

// Store holds jobs and the append-only audit log behind one RWMutex.
// Safe for concurrent use; the claim transition is atomic under the lock,
// so two racing process batches can never double-attempt one job.
type Store struct {
	mu sync.RWMutex

	jobs    map[uuid.UUID]*job.Job
	seq     map[uuid.UUID]int64 // insertion order, tie-break for equal timestamps
	nextSeq int64
	entries []*audit.Entry

	clock clock.Clock
}

func New(clk clock.Clock) *Store {
	return &Store{
		jobs:  make(map[uuid.UUID]*job.Job),
		seq:   make(map[uuid.UUID]int64),
		clock: clk,
	}
}

func (s *Store) Create(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return infra.WrapRepoErr(infra.KindDBFailure, "job id already exists", nil)
	}

	cp := *j
	s.jobs[j.ID] = &cp
	s.seq[j.ID] = s.nextSeq
	s.nextSeq++
	return nil
}

func (s *Store) FindByID(_ context.Context, id uuid.UUID) (*job.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "job not found", nil)
	}
	cp := *j
	return &cp, nil
}

func (s *Store) Update(_ context.Context, id uuid.UUID, p commands.JobPatch) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "job not found", nil)
	}

	if p.Status.Valid {
		j.Status = p.Status.Value
	}
	if p.Provider.Valid {
		j.Provider = p.Provider.Value
	}
	if p.Attempts.Valid {
		j.Attempts = p.Attempts.Value
	}
	if p.NextAttemptAt.Valid {
		j.NextAttemptAt = p.NextAttemptAt.Value
	}
	if p.LastAttemptAt.Valid {
		j.LastAttemptAt = p.LastAttemptAt.Value
	}
	if p.SentAt.Valid {
		j.SentAt = p.SentAt.Value
	}
	if p.FailedAt.Valid {
		j.FailedAt = p.FailedAt.Value
	}
	if p.LastError.Valid {
		j.LastError = p.LastError.Value
	}
	j.UpdatedAt = s.clock.Now()

	cp := *j
	return &cp, nil
}

func (s *Store) FindDue(_ context.Context, now time.Time, limit int) ([]*job.Job, error) {
	if limit < 1 {
		limit = 1
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]*job.Job, 0)
	for _, j := range s.jobs {
		if j.Eligible(now) {
			cp := *j
			due = append(due, &cp)
		}
	}

	sort.Slice(due, func(a, b int) bool {
		if due[a].NextAttemptAt.Equal(due[b].NextAttemptAt) {
			return s.seq[due[a].ID] < s.seq[due[b].ID]
		}
		return due[a].NextAttemptAt.Before(due[b].NextAttemptAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) Claim(_ context.Context, id uuid.UUID, providerName string, now time.Time) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "job not found", nil)
	}

	if (j.Status != job.StatusQueued && j.Status != job.StatusRetrying) || j.Attempts >= j.MaxAttempts {
		return nil, infra.WrapRepoErr(infra.KindClaimConflict, "job not claimable", nil)
	}

	j.Status = job.StatusProcessing
	j.Provider = &providerName
	j.Attempts++
	lastAttemptAt := now
	j.LastAttemptAt = &lastAttemptAt
	j.LastError = nil
	j.UpdatedAt = s.clock.Now()

	cp := *j
	return &cp, nil
}

func (s *Store) Append(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

// ──────────────────────────────────────────────────
// Read side
// ──────────────────────────────────────────────────

func (s *Store) List(_ context.Context, filter queries.JobFilter) ([]*queries.JobView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if filter.Status != nil && j.Status.String() != *filter.Status {
			continue
		}
		if filter.Channel != nil && j.Channel.String() != *filter.Channel {
			continue
		}
		if filter.BusinessID != nil && j.BusinessID != *filter.BusinessID {
			continue
		}
		matched = append(matched, j)
	}

	// newest-created-first
	sort.Slice(matched, func(a, b int) bool {
		if matched[a].CreatedAt.Equal(matched[b].CreatedAt) {
			return s.seq[matched[a].ID] > s.seq[matched[b].ID]
		}
		return matched[a].CreatedAt.After(matched[b].CreatedAt)
	})

	views := make([]*queries.JobView, len(matched))
	for i, j := range matched {
		views[i] = toJobView(j)
	}
	return views, nil
}

func (s *Store) ListAudit(_ context.Context, jobID *uuid.UUID) ([]*queries.AuditView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]*queries.AuditView, 0, len(s.entries))
	// newest-first
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if jobID != nil && e.JobID != *jobID {
			continue
		}
		views = append(views, toAuditView(e))
	}
	return views, nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*queries.JobView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "job not found", nil)
	}
	return toJobView(j), nil
}

func toJobView(j *job.Job) *queries.JobView {
	var subject *string
	if j.Subject != nil {
		s := *j.Subject
		subject = &s
	}
	return &queries.JobView{
		ID:            j.ID,
		BusinessID:    j.BusinessID,
		Channel:       j.Channel.String(),
		Audience:      j.Audience,
		Subject:       subject,
		Message:       j.Message,
		Metadata:      j.Metadata,
		Status:        j.Status.String(),
		Provider:      j.Provider,
		Attempts:      j.Attempts,
		MaxAttempts:   j.MaxAttempts,
		NextAttemptAt: j.NextAttemptAt,
		LastAttemptAt: j.LastAttemptAt,
		SentAt:        j.SentAt,
		FailedAt:      j.FailedAt,
		LastError:     j.LastError,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}

func toAuditView(e *audit.Entry) *queries.AuditView {
	return &queries.AuditView{
		ID:        e.ID,
		JobID:     e.JobID,
		Event:     e.Event.String(),
		Channel:   e.Channel.String(),
		Provider:  e.Provider,
		Attempt:   e.Attempt,
		Message:   e.Message,
		Detail:    e.Detail,
		CreatedAt: e.CreatedAt,
	}
}
