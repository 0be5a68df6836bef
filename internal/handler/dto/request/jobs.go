package request

import (
	"notify-dispatch/internal/domain/job"
)

// CreateJobRequest is the enqueue body. Semantic checks (channel values,
// attempt budget bounds, blank-after-trim fields) live in the domain layer;
// binding only rejects the structurally hopeless.
type CreateJobRequest struct {
	BusinessID  string         `json:"businessId" binding:"required"`
	Channel     string         `json:"channel" binding:"required"`
	Audience    string         `json:"audience"`
	Subject     *string        `json:"subject"`
	Message     string         `json:"message" binding:"required"`
	Metadata    map[string]any `json:"metadata"`
	MaxAttempts *int           `json:"maxAttempts"`
}

func (r CreateJobRequest) ToSpec() job.NewSpec {
	return job.NewSpec{
		BusinessID:  r.BusinessID,
		Channel:     r.Channel,
		Audience:    r.Audience,
		Subject:     r.Subject,
		Message:     r.Message,
		Metadata:    r.Metadata,
		MaxAttempts: r.MaxAttempts,
	}
}

// ProcessJobsRequest tunes one manual drain of the due queue. A zero or
// missing limit falls back to the configured batch size.
type ProcessJobsRequest struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=100"`
}
