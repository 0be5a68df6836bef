//go:build unit || e2e

package builder

import (
	"time"

	"notify-dispatch/internal/domain/job"
)

const defaultMaxAttemptsForTests = 3

// JobBuilder assembles enqueue specs for tests. Defaults describe a plain
// email job that passes validation.
type JobBuilder struct {
	spec       job.NewSpec
	defaultMax int
	now        time.Time
}

func NewJobBuilder() *JobBuilder {
	return &JobBuilder{
		spec: job.NewSpec{
			BusinessID: "biz-001",
			Channel:    "email",
			Audience:   "customer@example.com",
			Message:    "Your order has shipped",
		},
		defaultMax: defaultMaxAttemptsForTests,
		now:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (b *JobBuilder) With(mutate func(*JobBuilder)) *JobBuilder {
	if mutate != nil {
		mutate(b)
	}
	return b
}

func (b *JobBuilder) WithBusinessID(id string) *JobBuilder {
	b.spec.BusinessID = id
	return b
}

func (b *JobBuilder) WithChannel(channel string) *JobBuilder {
	b.spec.Channel = channel
	return b
}

func (b *JobBuilder) WithAudience(audience string) *JobBuilder {
	b.spec.Audience = audience
	return b
}

func (b *JobBuilder) WithSubject(subject string) *JobBuilder {
	b.spec.Subject = &subject
	return b
}

func (b *JobBuilder) WithMessage(message string) *JobBuilder {
	b.spec.Message = message
	return b
}

func (b *JobBuilder) WithMetadata(metadata map[string]any) *JobBuilder {
	b.spec.Metadata = metadata
	return b
}

func (b *JobBuilder) WithMaxAttempts(n int) *JobBuilder {
	b.spec.MaxAttempts = &n
	return b
}

func (b *JobBuilder) WithNow(now time.Time) *JobBuilder {
	b.now = now
	return b
}

func (b *JobBuilder) Spec() job.NewSpec {
	return b.spec
}

func (b *JobBuilder) Now() time.Time {
	return b.now
}

func (b *JobBuilder) BuildDomain() (*job.Job, error) {
	return job.New(b.spec, b.defaultMax, b.now)
}

// BuildCreateRequestDTO renders the enqueue request body as a mutable map
// for handler validation tests.
func (b *JobBuilder) BuildCreateRequestDTO() map[string]any {
	m := map[string]any{
		"businessId": b.spec.BusinessID,
		"channel":    b.spec.Channel,
		"audience":   b.spec.Audience,
		"message":    b.spec.Message,
	}
	if b.spec.Subject != nil {
		m["subject"] = *b.spec.Subject
	}
	if b.spec.Metadata != nil {
		m["metadata"] = b.spec.Metadata
	}
	if b.spec.MaxAttempts != nil {
		m["maxAttempts"] = *b.spec.MaxAttempts
	}
	return m
}
