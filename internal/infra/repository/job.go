package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/infra"
	"notify-dispatch/internal/usecase/commands"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `
	id, business_id, channel, audience, subject, message, metadata,
	scheduled_for, status, provider, attempts, max_attempts,
	next_attempt_at, last_attempt_at, sent_at, failed_at, last_error,
	created_at, updated_at`

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

var _ commands.JobRepository = (*JobRepository)(nil)

func (r *JobRepository) Create(ctx context.Context, j *job.Job) error {
	metadata, err := marshalMetadata(j.Metadata)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to encode job metadata", err)
	}

	const query = `
		INSERT INTO notification_jobs (
			id, business_id, channel, audience, subject, message, metadata,
			scheduled_for, status, provider, attempts, max_attempts,
			next_attempt_at, last_attempt_at, sent_at, failed_at, last_error,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = r.pool.Exec(ctx, query,
		j.ID, j.BusinessID, j.Channel.String(), j.Audience, textPtr(j.Subject), j.Message, metadata,
		timestampPtr(j.ScheduledFor), j.Status.String(), textPtr(j.Provider), j.Attempts, j.MaxAttempts,
		timestamp(j.NextAttemptAt), timestampPtr(j.LastAttemptAt), timestampPtr(j.SentAt),
		timestampPtr(j.FailedAt), textPtr(j.LastError),
		timestamp(j.CreatedAt), timestamp(j.UpdatedAt),
	)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to create notification job", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+jobColumns+` FROM notification_jobs WHERE id = $1`, id)

	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "notification job not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to find notification job", err)
	}
	return j, nil
}

func (r *JobRepository) Update(ctx context.Context, id uuid.UUID, p commands.JobPatch) (*job.Job, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}

	add := func(col string, value any) {
		args = append(args, value)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}

	if p.Status.Valid {
		add("status", p.Status.Value.String())
	}
	if p.Provider.Valid {
		add("provider", textPtr(p.Provider.Value))
	}
	if p.Attempts.Valid {
		add("attempts", p.Attempts.Value)
	}
	if p.NextAttemptAt.Valid {
		add("next_attempt_at", timestamp(p.NextAttemptAt.Value))
	}
	if p.LastAttemptAt.Valid {
		add("last_attempt_at", timestampPtr(p.LastAttemptAt.Value))
	}
	if p.SentAt.Valid {
		add("sent_at", timestampPtr(p.SentAt.Value))
	}
	if p.FailedAt.Valid {
		add("failed_at", timestampPtr(p.FailedAt.Value))
	}
	if p.LastError.Valid {
		add("last_error", textPtr(p.LastError.Value))
	}

	query := `UPDATE notification_jobs SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING` + jobColumns

	j, err := scanJob(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, infra.WrapRepoErr(infra.KindNotFound, "notification job not found", err)
		}
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to update notification job", err)
	}
	return j, nil
}

func (r *JobRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*job.Job, error) {
	if limit < 1 {
		limit = 1
	}

	const query = `
		SELECT` + jobColumns + `
		FROM notification_jobs
		WHERE status IN ('queued', 'retrying')
		  AND attempts < max_attempts
		  AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC, created_at ASC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, timestamp(now), limit)
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to find due notification jobs", err)
	}
	defer rows.Close()

	var result []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to scan notification job", err)
		}
		result = append(result, j)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to iterate notification jobs", err)
	}
	return result, nil
}

// Claim relies on the UPDATE's row filter as the compare-and-set: a job that
// raced into another state matches no row, and a follow-up existence check
// separates "gone" from "lost the race".
func (r *JobRepository) Claim(ctx context.Context, id uuid.UUID, providerName string, now time.Time) (*job.Job, error) {
	const query = `
		UPDATE notification_jobs
		SET status = 'processing',
		    provider = $2,
		    attempts = attempts + 1,
		    last_attempt_at = $3,
		    last_error = NULL,
		    updated_at = $3
		WHERE id = $1
		  AND status IN ('queued', 'retrying')
		  AND attempts < max_attempts
		RETURNING` + jobColumns

	j, err := scanJob(r.pool.QueryRow(ctx, query, id, providerName, timestamp(now)))
	if err == nil {
		return j, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to claim notification job", err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_jobs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to check notification job existence", err)
	}
	if !exists {
		return nil, infra.WrapRepoErr(infra.KindNotFound, "notification job not found", nil)
	}
	return nil, infra.WrapRepoErr(infra.KindClaimConflict, "notification job is not claimable", nil)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j             job.Job
		channel       string
		status        string
		subject       pgtype.Text
		metadata      []byte
		scheduledFor  pgtype.Timestamptz
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
		&j.ID, &j.BusinessID, &channel, &j.Audience, &subject, &j.Message, &metadata,
		&scheduledFor, &status, &provider, &j.Attempts, &j.MaxAttempts,
		&nextAttemptAt, &lastAttemptAt, &sentAt, &failedAt, &lastError,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Channel = job.Channel(channel)
	j.Status = job.Status(status)
	j.Subject = textValue(subject)
	j.Provider = textValue(provider)
	j.LastError = textValue(lastError)
	j.ScheduledFor = timeValue(scheduledFor)
	j.NextAttemptAt = nextAttemptAt.Time
	j.LastAttemptAt = timeValue(lastAttemptAt)
	j.SentAt = timeValue(sentAt)
	j.FailedAt = timeValue(failedAt)
	j.CreatedAt = createdAt.Time
	j.UpdatedAt = updatedAt.Time

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &j.Metadata); err != nil {
			return nil, err
		}
	}
	// Fallback targets live inside metadata; re-derive rather than persist.
	j.Fallback = job.ParseFallback(j.Metadata)

	return &j, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func textPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func textValue(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func timestamp(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func timestampPtr(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func timeValue(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

