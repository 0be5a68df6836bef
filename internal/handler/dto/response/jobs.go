package response

import (
	"time"

	"notify-dispatch/internal/usecase/commands"
	"notify-dispatch/internal/usecase/queries"
)

type JobResponse struct {
	ID            string         `json:"id"`
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

func FromJobView(v *queries.JobView) JobResponse {
	return JobResponse{
		ID:            v.ID.String(),
		BusinessID:    v.BusinessID,
		Channel:       v.Channel,
		Audience:      v.Audience,
		Subject:       v.Subject,
		Message:       v.Message,
		Metadata:      v.Metadata,
		Status:        v.Status,
		Provider:      v.Provider,
		Attempts:      v.Attempts,
		MaxAttempts:   v.MaxAttempts,
		NextAttemptAt: v.NextAttemptAt,
		LastAttemptAt: v.LastAttemptAt,
		SentAt:        v.SentAt,
		FailedAt:      v.FailedAt,
		LastError:     v.LastError,
		CreatedAt:     v.CreatedAt,
		UpdatedAt:     v.UpdatedAt,
	}
}

func FromJobList(views []*queries.JobView) []JobResponse {
	result := make([]JobResponse, len(views))
	for i, v := range views {
		result[i] = FromJobView(v)
	}
	return result
}

type AuditEntryResponse struct {
	ID        string         `json:"id"`
	JobID     string         `json:"jobId"`
	Event     string         `json:"event"`
	Channel   string         `json:"channel"`
	Provider  *string        `json:"provider,omitempty"`
	Attempt   *int           `json:"attempt,omitempty"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func FromAuditView(v *queries.AuditView) AuditEntryResponse {
	return AuditEntryResponse{
		ID:        v.ID.String(),
		JobID:     v.JobID.String(),
		Event:     v.Event,
		Channel:   v.Channel,
		Provider:  v.Provider,
		Attempt:   v.Attempt,
		Message:   v.Message,
		Detail:    v.Detail,
		CreatedAt: v.CreatedAt,
	}
}

func FromAuditList(views []*queries.AuditView) []AuditEntryResponse {
	result := make([]AuditEntryResponse, len(views))
	for i, v := range views {
		result[i] = FromAuditView(v)
	}
	return result
}

type ProcessResultResponse struct {
	Processed int      `json:"processed"`
	Sent      int      `json:"sent"`
	Retried   int      `json:"retried"`
	Failed    int      `json:"failed"`
	JobIDs    []string `json:"jobIds"`
}

func FromProcessResult(r *commands.ProcessResult) ProcessResultResponse {
	ids := make([]string, len(r.JobIDs))
	for i, id := range r.JobIDs {
		ids[i] = id.String()
	}
	return ProcessResultResponse{
		Processed: r.Processed,
		Sent:      r.Sent,
		Retried:   r.Retried,
		Failed:    r.Failed,
		JobIDs:    ids,
	}
}
