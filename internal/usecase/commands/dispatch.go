package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"notify-dispatch/internal/domain/audit"
	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/infra"
	"notify-dispatch/internal/pkg/backoff"
	"notify-dispatch/internal/pkg/clock"
	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/pkg/errs"
	"notify-dispatch/internal/pkg/patch"

	"github.com/google/uuid"
)

var (
	ErrValidation              = errs.New("validation failed")
	ErrJobNotFound             = errs.New("notification job not found")
	ErrJobNotRetriable         = errs.New("notification job is not retriable")
	ErrDatabaseOperationFailed = errs.New("database operation failed")
)

// ProcessResult aggregates one process-due-jobs batch. Jobs lost to a
// concurrent claim are skipped and appear in no counter.
type ProcessResult struct {
	Processed int
	Sent      int
	Retried   int
	Failed    int
	JobIDs    []uuid.UUID
}

type DispatchCommands interface {
	EnqueueJob(ctx context.Context, spec job.NewSpec) (*job.Job, error)
	ProcessDueJobs(ctx context.Context, limit int) (*ProcessResult, error)
	RetryJob(ctx context.Context, id uuid.UUID) (*job.Job, error)
}

type attemptOutcome int

const (
	outcomeSkipped attemptOutcome = iota
	outcomeSent
	outcomeRetried
	outcomeFailed
)

type dispatchUseCaseImpl struct {
	jobRepo   JobRepository
	auditRepo AuditRepository
	providers ProviderRegistry
	clock     clock.Clock

	defaultMaxAttempts int
	attemptTimeout     time.Duration
	backoff            backoff.Exponential
}

func NewDispatchCommands(
	jobRepo JobRepository,
	auditRepo AuditRepository,
	providers ProviderRegistry,
	clk clock.Clock,
	cfg config.QueueConfig,
) DispatchCommands {
	return &dispatchUseCaseImpl{
		jobRepo:            jobRepo,
		auditRepo:          auditRepo,
		providers:          providers,
		clock:              clk,
		defaultMaxAttempts: cfg.DefaultMaxAttempts,
		attemptTimeout:     cfg.AttemptTimeout,
		backoff: backoff.NewExponential(
			time.Duration(cfg.RetryBaseMs)*time.Millisecond,
			time.Duration(cfg.RetryMaxMs)*time.Millisecond,
		),
	}
}

func (d *dispatchUseCaseImpl) EnqueueJob(ctx context.Context, spec job.NewSpec) (*job.Job, error) {
	now := d.clock.Now()

	j, err := job.New(spec, d.defaultMaxAttempts, now)
	if err != nil {
		return nil, errs.Mark(err, ErrValidation)
	}

	if err := d.jobRepo.Create(ctx, j); err != nil {
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	detail := map[string]any{
		"audience":    j.Audience,
		"maxAttempts": j.MaxAttempts,
	}
	if j.ScheduledFor != nil {
		detail["scheduledFor"] = j.ScheduledFor.Format(time.RFC3339)
	}
	entry := audit.New(j.ID, audit.EventQueued, j.Channel, nil, nil, "Job queued", detail, now)
	if err := d.auditRepo.Append(ctx, entry); err != nil {
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	return j, nil
}

func (d *dispatchUseCaseImpl) ProcessDueJobs(ctx context.Context, limit int) (*ProcessResult, error) {
	if limit < 1 {
		limit = 1
	}

	now := d.clock.Now()
	due, err := d.jobRepo.FindDue(ctx, now, limit)
	if err != nil {
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	result := &ProcessResult{JobIDs: make([]uuid.UUID, 0, len(due))}
	// One job fully resolves, fallback enqueues included, before the next
	// one in the batch starts.
	for _, j := range due {
		outcome, err := d.processJob(ctx, j)
		if err != nil {
			return nil, err
		}

		switch outcome {
		case outcomeSkipped:
			continue
		case outcomeSent:
			result.Sent++
		case outcomeRetried:
			result.Retried++
		case outcomeFailed:
			result.Failed++
		}
		result.Processed++
		result.JobIDs = append(result.JobIDs, j.ID)
	}

	return result, nil
}

// processJob drives one attempt through the state machine. Provider
// failures never escape as errors; only store failures do.
func (d *dispatchUseCaseImpl) processJob(ctx context.Context, j *job.Job) (attemptOutcome, error) {
	provider := d.providers.ForChannel(j.Channel)
	now := d.clock.Now()

	claimed, err := d.jobRepo.Claim(ctx, j.ID, provider.Name(), now)
	if err != nil {
		if infra.IsKind(err, infra.KindClaimConflict) || infra.IsKind(err, infra.KindNotFound) {
			slog.Debug("job claim lost, skipping", "job_id", j.ID)
			return outcomeSkipped, nil
		}
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	attempt := claimed.Attempts
	providerName := provider.Name()

	startedEntry := audit.New(claimed.ID, audit.EventAttemptStarted, claimed.Channel, &providerName, &attempt,
		fmt.Sprintf("Attempt %d started via %s", attempt, providerName),
		map[string]any{"audience": claimed.Audience}, now)
	if err := d.auditRepo.Append(ctx, startedEntry); err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	sendResult, sendErr := d.send(ctx, provider, claimed, attempt)

	if sendErr == nil && sendResult.Accepted {
		return d.completeAttempt(ctx, claimed, attempt, providerName, sendResult)
	}

	errMsg := deliveryErrorMessage(sendResult, sendErr)
	return d.failAttempt(ctx, claimed, attempt, providerName, errMsg)
}

func (d *dispatchUseCaseImpl) send(ctx context.Context, provider Provider, j *job.Job, attempt int) (SendResult, error) {
	sendCtx := ctx
	if d.attemptTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.attemptTimeout)
		defer cancel()
	}

	return provider.Send(sendCtx, DispatchInput{
		JobID:      j.ID,
		BusinessID: j.BusinessID,
		Channel:    j.Channel,
		Audience:   j.Audience,
		Subject:    j.Subject,
		Message:    j.Message,
		Metadata:   j.Metadata,
		Attempt:    attempt,
	})
}

func (d *dispatchUseCaseImpl) completeAttempt(ctx context.Context, j *job.Job, attempt int, providerName string, res SendResult) (attemptOutcome, error) {
	now := d.clock.Now()

	_, err := d.jobRepo.Update(ctx, j.ID, JobPatch{
		Status:    patch.Set(job.StatusSent),
		SentAt:    patch.Set(&now),
		FailedAt:  patch.Set[*time.Time](nil),
		LastError: patch.Set[*string](nil),
	})
	if err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	detail := map[string]any{"accepted": true}
	if res.ExternalID != nil {
		detail["externalId"] = *res.ExternalID
	}
	if res.Detail != nil {
		detail["detail"] = *res.Detail
	}
	entry := audit.New(j.ID, audit.EventAttemptSucceeded, j.Channel, &providerName, &attempt,
		"Delivery accepted by provider", detail, now)
	if err := d.auditRepo.Append(ctx, entry); err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	return outcomeSent, nil
}

func (d *dispatchUseCaseImpl) failAttempt(ctx context.Context, j *job.Job, attempt int, providerName string, errMsg string) (attemptOutcome, error) {
	now := d.clock.Now()

	failedEntry := audit.New(j.ID, audit.EventAttemptFailed, j.Channel, &providerName, &attempt,
		fmt.Sprintf("Attempt %d failed: %s", attempt, errMsg),
		map[string]any{"error": errMsg}, now)
	if err := d.auditRepo.Append(ctx, failedEntry); err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	// Push-channel cascade. A push job with fallback targets fails
	// permanently on first rejection once at least one fallback is queued;
	// the attempt budget is bypassed on purpose.
	if j.HasFallbackTargets() {
		queued, err := d.queueFallbacks(ctx, j, errMsg)
		if err != nil {
			return outcomeSkipped, err
		}
		if len(queued) > 0 {
			return d.failWithFallback(ctx, j, attempt, providerName, errMsg, queued)
		}
	}

	if attempt >= j.MaxAttempts {
		return d.failFinal(ctx, j, attempt, providerName, errMsg)
	}
	return d.scheduleRetry(ctx, j, attempt, providerName, errMsg)
}

type queuedFallback struct {
	jobID   uuid.UUID
	channel job.Channel
}

func (d *dispatchUseCaseImpl) queueFallbacks(ctx context.Context, j *job.Job, reason string) ([]queuedFallback, error) {
	now := d.clock.Now()

	type target struct {
		channel  job.Channel
		audience string
	}
	targets := []target{
		{job.ChannelEmail, j.Fallback.EmailAudience},
		{job.ChannelSMS, j.Fallback.SMSAudience},
	}

	var queued []queuedFallback
	for _, tg := range targets {
		if tg.audience == "" {
			continue
		}

		metadata := job.StripFallbackKeys(j.Metadata)
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["source"] = "push-fallback"
		metadata["fallbackFromJobId"] = j.ID.String()
		metadata["fallbackFromChannel"] = job.ChannelPush.String()
		metadata["fallbackToChannel"] = tg.channel.String()
		metadata["fallbackReason"] = reason
		metadata["fallbackQueuedAt"] = now.Format(time.RFC3339)

		fb, err := d.EnqueueJob(ctx, job.NewSpec{
			BusinessID:  j.BusinessID,
			Channel:     tg.channel.String(),
			Audience:    tg.audience,
			Subject:     j.Subject,
			Message:     j.Message,
			Metadata:    metadata,
			MaxAttempts: &j.MaxAttempts,
		})
		if err != nil {
			if errors.Is(err, ErrValidation) {
				slog.Warn("fallback target rejected, skipping", "job_id", j.ID, "channel", tg.channel)
				continue
			}
			return nil, err
		}

		// The cascade is capped at one level: a fallback job must never
		// carry fallback targets of its own.
		if fb.HasFallbackTargets() {
			return nil, errs.Mark(errs.New("fallback job carries fallback targets"), ErrDatabaseOperationFailed)
		}

		queued = append(queued, queuedFallback{jobID: fb.ID, channel: fb.Channel})
	}

	return queued, nil
}

func (d *dispatchUseCaseImpl) failWithFallback(ctx context.Context, j *job.Job, attempt int, providerName, errMsg string, queued []queuedFallback) (attemptOutcome, error) {
	now := d.clock.Now()

	ids := make([]string, len(queued))
	channels := make([]string, len(queued))
	for i, q := range queued {
		ids[i] = q.jobID.String()
		channels[i] = q.channel.String()
	}

	entry := audit.New(j.ID, audit.EventFallbackQueued, j.Channel, &providerName, &attempt,
		"Push delivery failed; fallback jobs queued",
		map[string]any{
			"provider":         providerName,
			"attempt":          attempt,
			"error":            errMsg,
			"fallbackJobIds":   ids,
			"fallbackChannels": channels,
		}, now)
	if err := d.auditRepo.Append(ctx, entry); err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	lastError := "Push delivery failed. Fallback queued: " + strings.ToUpper(strings.Join(channels, ", "))
	_, err := d.jobRepo.Update(ctx, j.ID, JobPatch{
		Status:    patch.Set(job.StatusFailed),
		FailedAt:  patch.Set(&now),
		LastError: patch.Set(&lastError),
	})
	if err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	return outcomeFailed, nil
}

func (d *dispatchUseCaseImpl) failFinal(ctx context.Context, j *job.Job, attempt int, providerName, errMsg string) (attemptOutcome, error) {
	now := d.clock.Now()

	_, err := d.jobRepo.Update(ctx, j.ID, JobPatch{
		Status:    patch.Set(job.StatusFailed),
		FailedAt:  patch.Set(&now),
		LastError: patch.Set(&errMsg),
	})
	if err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	entry := audit.New(j.ID, audit.EventFailedFinal, j.Channel, &providerName, &attempt,
		"Attempt budget exhausted",
		map[string]any{"maxAttempts": j.MaxAttempts, "error": errMsg}, now)
	if err := d.auditRepo.Append(ctx, entry); err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	return outcomeFailed, nil
}

func (d *dispatchUseCaseImpl) scheduleRetry(ctx context.Context, j *job.Job, attempt int, providerName, errMsg string) (attemptOutcome, error) {
	now := d.clock.Now()
	delay := d.backoff.Delay(attempt)
	nextAttemptAt := now.Add(delay)

	_, err := d.jobRepo.Update(ctx, j.ID, JobPatch{
		Status:        patch.Set(job.StatusRetrying),
		NextAttemptAt: patch.Set(nextAttemptAt),
		FailedAt:      patch.Set[*time.Time](nil),
		LastError:     patch.Set(&errMsg),
	})
	if err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	entry := audit.New(j.ID, audit.EventRetryScheduled, j.Channel, &providerName, &attempt,
		fmt.Sprintf("Retry %d scheduled", attempt+1),
		map[string]any{
			"delayMs":       delay.Milliseconds(),
			"nextAttemptAt": nextAttemptAt.Format(time.RFC3339),
		}, now)
	if err := d.auditRepo.Append(ctx, entry); err != nil {
		return outcomeSkipped, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	return outcomeRetried, nil
}

func (d *dispatchUseCaseImpl) RetryJob(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	j, err := d.jobRepo.FindByID(ctx, id)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	if !j.Retriable() {
		return nil, ErrJobNotRetriable
	}

	now := d.clock.Now()
	updated, err := d.jobRepo.Update(ctx, id, JobPatch{
		Status:        patch.Set(job.StatusRetrying),
		NextAttemptAt: patch.Set(now),
		FailedAt:      patch.Set[*time.Time](nil),
		LastError:     patch.Set[*string](nil),
	})
	if err != nil {
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	attempt := j.Attempts
	entry := audit.New(id, audit.EventRetryRequested, j.Channel, j.Provider, &attempt,
		"Manual retry requested", map[string]any{}, now)
	if err := d.auditRepo.Append(ctx, entry); err != nil {
		return nil, errs.Mark(err, ErrDatabaseOperationFailed)
	}

	return updated, nil
}

func deliveryErrorMessage(res SendResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if res.Detail != nil && *res.Detail != "" {
		return *res.Detail
	}
	return "provider rejected delivery"
}
