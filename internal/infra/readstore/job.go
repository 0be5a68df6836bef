package readstore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"notify-dispatch/internal/infra"
	"notify-dispatch/internal/usecase/queries"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobViewColumns = `
	id, business_id, channel, audience, subject, message, metadata,
	status, provider, attempts, max_attempts, next_attempt_at,
	last_attempt_at, sent_at, failed_at, last_error, created_at, updated_at`

type JobReadStore struct {
	pool *pgxpool.Pool
}

func NewJobReadStore(pool *pgxpool.Pool) *JobReadStore {
	return &JobReadStore{pool: pool}
}

var _ queries.JobReadStore = (*JobReadStore)(nil)

func (s *JobReadStore) GetByID(ctx context.Context, id uuid.UUID) (*queries.JobView, error) {
	row := s.pool.QueryRow(ctx, `SELECT`+jobViewColumns+` FROM notification_jobs WHERE id = $1`, id)

	view, err := scanJobView(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "notification job not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to get notification job", err)
	}
	return view, nil
}

func (s *JobReadStore) List(ctx context.Context, filter queries.JobFilter) ([]*queries.JobView, error) {
	conds := []string{"TRUE"}
	args := []any{}

	add := func(col string, value string) {
		args = append(args, value)
		conds = append(conds, col+" = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != nil {
		add("status", *filter.Status)
	}
	if filter.Channel != nil {
		add("channel", *filter.Channel)
	}
	if filter.BusinessID != nil {
		add("business_id", *filter.BusinessID)
	}

	query := `SELECT` + jobViewColumns + ` FROM notification_jobs WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to list notification jobs", err)
	}
	defer rows.Close()

	result := []*queries.JobView{}
	for rows.Next() {
		view, err := scanJobView(rows)
		if err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan notification job", err)
		}
		result = append(result, view)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate notification jobs", err)
	}
	return result, nil
}

func (s *JobReadStore) ListAudit(ctx context.Context, jobID *uuid.UUID) ([]*queries.AuditView, error) {
	query := `
		SELECT id, job_id, event, channel, provider, attempt, message, detail, created_at
		FROM notification_audit_log`
	args := []any{}
	if jobID != nil {
		query += ` WHERE job_id = $1`
		args = append(args, *jobID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to list audit entries", err)
	}
	defer rows.Close()

	result := []*queries.AuditView{}
	for rows.Next() {
		var (
			view      queries.AuditView
			provider  pgtype.Text
			attempt   pgtype.Int4
			detail    []byte
			createdAt pgtype.Timestamptz
		)
		err := rows.Scan(&view.ID, &view.JobID, &view.Event, &view.Channel,
			&provider, &attempt, &view.Message, &detail, &createdAt)
		if err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan audit entry", err)
		}
		if provider.Valid {
			p := provider.String
			view.Provider = &p
		}
		if attempt.Valid {
			a := int(attempt.Int32)
			view.Attempt = &a
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &view.Detail); err != nil {
				return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to decode audit detail", err)
			}
		}
		view.CreatedAt = createdAt.Time
		result = append(result, &view)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate audit entries", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobView(row rowScanner) (*queries.JobView, error) {
	var (
		view          queries.JobView
		subject       pgtype.Text
		metadata      []byte
		provider      pgtype.Text
		nextAttemptAt pgtype.Timestamptz
		lastAttemptAt pgtype.Timestamptz
		sentAt        pgtype.Timestamptz
		failedAt      pgtype.Timestamptz
		lastError     pgtype.Text
		createdAt     pgtype.Timestamptz
		updatedAt     pgtype.Timestamptz
	)

	err := row.Scan(
		&view.ID, &view.BusinessID, &view.Channel, &view.Audience, &subject, &view.Message, &metadata,
		&view.Status, &provider, &view.Attempts, &view.MaxAttempts, &nextAttemptAt,
		&lastAttemptAt, &sentAt, &failedAt, &lastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if subject.Valid {
		s := subject.String
		view.Subject = &s
	}
	if provider.Valid {
		p := provider.String
		view.Provider = &p
	}
	if lastError.Valid {
		e := lastError.String
		view.LastError = &e
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &view.Metadata); err != nil {
			return nil, err
		}
	}
	view.NextAttemptAt = nextAttemptAt.Time
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		view.LastAttemptAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		view.SentAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		view.FailedAt = &t
	}
	view.CreatedAt = createdAt.Time
	view.UpdatedAt = updatedAt.Time

	return &view, nil
}
