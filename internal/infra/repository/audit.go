package repository

import (
	"context"
	"encoding/json"

	"notify-dispatch/internal/domain/audit"
	"notify-dispatch/internal/infra"
	"notify-dispatch/internal/usecase/commands"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

var _ commands.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	var detail []byte
	if e.Detail != nil {
		encoded, err := json.Marshal(e.Detail)
		if err != nil {
			return infra.WrapRepoErr(infra.KindDBFailure, "failed to encode audit detail", err)
		}
		detail = encoded
	}

	var attempt pgtype.Int4
	if e.Attempt != nil {
		attempt = pgtype.Int4{Int32: int32(*e.Attempt), Valid: true}
	}

	const query = `
		INSERT INTO notification_audit_log (
			id, job_id, event, channel, provider, attempt, message, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.JobID, e.Event.String(), e.Channel.String(),
		textPtr(e.Provider), attempt, e.Message, detail, timestamp(e.CreatedAt),
	)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to append audit entry", err)
	}
	return nil
}
