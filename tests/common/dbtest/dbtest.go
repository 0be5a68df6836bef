//go:build e2e

package dbtest

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ResetDB truncates all job state so tests start from a clean slate.
// The audit log goes first because it holds a foreign key on jobs.
func ResetDB(pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, "TRUNCATE notification_audit_log, notification_jobs")
	return err
}

// CountJobs returns the number of jobs matching the given status, or all
// jobs when status is empty.
func CountJobs(pool *pgxpool.Pool, status string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	if status == "" {
		err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM notification_jobs").Scan(&count)
		return count, err
	}
	err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM notification_jobs WHERE status = $1", status).Scan(&count)
	return count, err
}
