//go:build unit

package commands_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"notify-dispatch/internal/domain/job"
	"notify-dispatch/internal/infra/memstore"
	"notify-dispatch/internal/pkg/clock"
	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/usecase/commands"
	"notify-dispatch/internal/usecase/queries"
	"notify-dispatch/tests/common/builder"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// ──────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────

type fakeProvider struct {
	mu      sync.Mutex
	name    string
	channel job.Channel
	send    func(commands.DispatchInput) (commands.SendResult, error)
	calls   []commands.DispatchInput
}

func (p *fakeProvider) Name() string         { return p.name }
func (p *fakeProvider) Channel() job.Channel { return p.channel }

func (p *fakeProvider) Send(_ context.Context, in commands.DispatchInput) (commands.SendResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, in)
	p.mu.Unlock()
	return p.send(in)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func alwaysAccepts(name string, ch job.Channel) *fakeProvider {
	externalID := "ext-123"
	return &fakeProvider{name: name, channel: ch, send: func(commands.DispatchInput) (commands.SendResult, error) {
		return commands.SendResult{Accepted: true, ExternalID: &externalID}, nil
	}}
}

func alwaysRejects(name string, ch job.Channel, detail string) *fakeProvider {
	return &fakeProvider{name: name, channel: ch, send: func(commands.DispatchInput) (commands.SendResult, error) {
		return commands.SendResult{Accepted: false, Detail: &detail}, nil
	}}
}

type fakeRegistry map[job.Channel]commands.Provider

func (r fakeRegistry) ForChannel(ch job.Channel) commands.Provider {
	if p, ok := r[ch]; ok {
		return p
	}
	return alwaysRejects("unavailable", ch, "no provider configured for channel "+ch.String())
}

type fixture struct {
	engine commands.DispatchCommands
	store  *memstore.Store
	clk    *clock.MockClock
}

func newFixture(t *testing.T, registry fakeRegistry) *fixture {
	t.Helper()
	clk := clock.NewMockClock(baseTime)
	store := memstore.New(clk)
	engine := commands.NewDispatchCommands(store, store, registry, clk, config.QueueConfig{
		DefaultMaxAttempts: 3,
		RetryBaseMs:        30000,
		RetryMaxMs:         900000,
		AttemptTimeout:     30 * time.Second,
	})
	return &fixture{engine: engine, store: store, clk: clk}
}

func (f *fixture) auditEvents(t *testing.T, jobID uuid.UUID) []string {
	t.Helper()
	views, err := f.store.ListAudit(context.Background(), &jobID)
	require.NoError(t, err)
	// store returns newest-first; reverse into chronological order
	events := make([]string, len(views))
	for i, v := range views {
		events[len(views)-1-i] = v.Event
	}
	return events
}

func (f *fixture) mustJob(t *testing.T, id uuid.UUID) *job.Job {
	t.Helper()
	j, err := f.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return j
}

// ──────────────────────────────────────────────────
// EnqueueJob
// ──────────────────────────────────────────────────

func TestEnqueueJob(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a queued job and writes the queued audit entry", func(t *testing.T) {
		f := newFixture(t, fakeRegistry{})

		j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().Spec())
		require.NoError(t, err)

		stored := f.mustJob(t, j.ID)
		assert.Equal(t, job.StatusQueued, stored.Status)
		assert.Equal(t, 0, stored.Attempts)
		assert.Nil(t, stored.Provider)

		assert.Equal(t, []string{"queued"}, f.auditEvents(t, j.ID))
	})

	t.Run("no dispatch attempt happens synchronously", func(t *testing.T) {
		p := alwaysAccepts("ses", job.ChannelEmail)
		f := newFixture(t, fakeRegistry{job.ChannelEmail: p})

		_, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().Spec())
		require.NoError(t, err)
		assert.Equal(t, 0, p.callCount())
	})

	t.Run("validation failures never reach the store", func(t *testing.T) {
		f := newFixture(t, fakeRegistry{})

		_, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().WithMessage("  ").Spec())
		require.Error(t, err)
		assert.ErrorIs(t, err, commands.ErrValidation)
		assert.ErrorIs(t, err, job.ErrEmptyMessage)

		views, listErr := f.store.ListAudit(ctx, nil)
		require.NoError(t, listErr)
		assert.Empty(t, views)
	})
}

// ──────────────────────────────────────────────────
// ProcessDueJobs — success path (spec'd behavior: scenario of a clean send)
// ──────────────────────────────────────────────────

func TestProcessDueJobs_Success(t *testing.T) {
	ctx := context.Background()
	p := alwaysAccepts("ses", job.ChannelEmail)
	f := newFixture(t, fakeRegistry{job.ChannelEmail: p})

	j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().WithMaxAttempts(3).Spec())
	require.NoError(t, err)

	result, err := f.engine.ProcessDueJobs(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 0, result.Retried)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []uuid.UUID{j.ID}, result.JobIDs)

	final := f.mustJob(t, j.ID)
	assert.Equal(t, job.StatusSent, final.Status)
	assert.Equal(t, 1, final.Attempts)
	require.NotNil(t, final.SentAt)
	assert.Nil(t, final.FailedAt)
	assert.Nil(t, final.LastError)
	require.NotNil(t, final.Provider)
	assert.Equal(t, "ses", *final.Provider)

	assert.Equal(t, []string{"queued", "attempt_started", "attempt_succeeded"}, f.auditEvents(t, j.ID))

	t.Run("sent job is never picked up again", func(t *testing.T) {
		again, err := f.engine.ProcessDueJobs(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, again.Processed)
		assert.Equal(t, 1, p.callCount())
	})
}

// ──────────────────────────────────────────────────
// Retry and final failure
// ──────────────────────────────────────────────────

func TestProcessDueJobs_RetryThenFinalFailure(t *testing.T) {
	ctx := context.Background()
	p := alwaysRejects("twilio-hook", job.ChannelSMS, "gateway timeout")
	f := newFixture(t, fakeRegistry{job.ChannelSMS: p})

	j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().
		WithChannel("sms").WithAudience("+15550100").WithMaxAttempts(2).Spec())
	require.NoError(t, err)

	result, err := f.engine.ProcessDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)

	afterFirst := f.mustJob(t, j.ID)
	assert.Equal(t, job.StatusRetrying, afterFirst.Status)
	assert.Equal(t, 1, afterFirst.Attempts)
	require.NotNil(t, afterFirst.LastError)
	assert.Equal(t, "gateway timeout", *afterFirst.LastError)
	assert.Nil(t, afterFirst.FailedAt)
	assert.Equal(t, baseTime.Add(30*time.Second), afterFirst.NextAttemptAt, "first retry uses the base delay")

	t.Run("not due again before the backoff window", func(t *testing.T) {
		result, err := f.engine.ProcessDueJobs(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Processed)
	})

	t.Run("second failure exhausts the budget", func(t *testing.T) {
		f.clk.Add(31 * time.Second)

		result, err := f.engine.ProcessDueJobs(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)

		final := f.mustJob(t, j.ID)
		assert.Equal(t, job.StatusFailed, final.Status)
		assert.Equal(t, 2, final.Attempts)
		require.NotNil(t, final.FailedAt)
		require.NotNil(t, final.LastError)

		events := f.auditEvents(t, j.ID)
		assert.Equal(t, []string{
			"queued", "attempt_started", "attempt_failed", "retry_scheduled",
			"attempt_started", "attempt_failed", "failed_final",
		}, events)
	})

	t.Run("failed job is not claimable anymore", func(t *testing.T) {
		f.clk.Add(time.Hour)
		result, err := f.engine.ProcessDueJobs(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Processed)
	})
}

func TestProcessDueJobs_BackoffCurve(t *testing.T) {
	ctx := context.Background()
	p := alwaysRejects("twilio-hook", job.ChannelSMS, "down")
	f := newFixture(t, fakeRegistry{job.ChannelSMS: p})

	j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().
		WithChannel("sms").WithMaxAttempts(10).Spec())
	require.NoError(t, err)

	var prevDelay time.Duration
	for attempt := 1; attempt <= 6; attempt++ {
		before := f.clk.Now()
		result, err := f.engine.ProcessDueJobs(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, 1, result.Retried, "attempt %d", attempt)

		current := f.mustJob(t, j.ID)
		delay := current.NextAttemptAt.Sub(before)
		assert.GreaterOrEqual(t, delay, prevDelay, "delay must not shrink (attempt %d)", attempt)
		assert.LessOrEqual(t, delay, 900*time.Second, "delay never exceeds retryMaxMs")
		prevDelay = delay

		f.clk.Set(current.NextAttemptAt)
	}
}

// ──────────────────────────────────────────────────
// Missing provider
// ──────────────────────────────────────────────────

func TestProcessDueJobs_UnconfiguredChannel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fakeRegistry{}) // nothing wired

	j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().WithMaxAttempts(1).Spec())
	require.NoError(t, err)

	result, err := f.engine.ProcessDueJobs(ctx, 10)
	require.NoError(t, err, "a missing provider is a failed attempt, not a crash")
	assert.Equal(t, 1, result.Failed)

	final := f.mustJob(t, j.ID)
	assert.Equal(t, job.StatusFailed, final.Status)
	require.NotNil(t, final.LastError)
	assert.Contains(t, *final.LastError, "no provider configured")
}

// ──────────────────────────────────────────────────
// Push fallback cascade
// ──────────────────────────────────────────────────

func TestProcessDueJobs_PushFallback(t *testing.T) {
	ctx := context.Background()
	push := alwaysRejects("fcm-gateway", job.ChannelPush, "unregistered device token")
	f := newFixture(t, fakeRegistry{job.ChannelPush: push})

	j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().
		WithChannel("push").
		WithAudience("not-a-device-token").
		WithMaxAttempts(3).
		WithMetadata(map[string]any{
			"campaign": "spring-sale",
			"fallback": map[string]any{
				"emailAudience": "ops@example.com",
				"smsAudience":   "+15550100",
			},
		}).Spec())
	require.NoError(t, err)

	result, err := f.engine.ProcessDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)

	t.Run("push job fails permanently despite remaining budget", func(t *testing.T) {
		final := f.mustJob(t, j.ID)
		assert.Equal(t, job.StatusFailed, final.Status)
		assert.Equal(t, 1, final.Attempts)
		require.NotNil(t, final.FailedAt)
		require.NotNil(t, final.LastError)
		assert.Equal(t, "Push delivery failed. Fallback queued: EMAIL, SMS", *final.LastError)

		events := f.auditEvents(t, j.ID)
		assert.Equal(t, []string{"queued", "attempt_started", "attempt_failed", "fallback_queued"}, events)
	})

	t.Run("one fallback job per configured target", func(t *testing.T) {
		views, err := f.store.List(ctx, queries.JobFilter{})
		require.NoError(t, err)
		require.Len(t, views, 3)

		channels := map[string]bool{}
		for _, v := range views {
			if v.ID == j.ID {
				continue
			}
			channels[v.Channel] = true
			assert.Equal(t, "queued", v.Status)
			assert.Equal(t, j.BusinessID, v.BusinessID)
			assert.Equal(t, "Your order has shipped", v.Message)
			assert.Equal(t, 3, v.MaxAttempts, "fallback inherits the attempt budget")
			assert.Equal(t, j.ID.String(), v.Metadata["fallbackFromJobId"])
			assert.Equal(t, "push", v.Metadata["fallbackFromChannel"])
			assert.Equal(t, "push-fallback", v.Metadata["source"])
			assert.Equal(t, "unregistered device token", v.Metadata["fallbackReason"])
			assert.Equal(t, "spring-sale", v.Metadata["campaign"], "caller metadata carries over")
		}
		assert.True(t, channels["email"])
		assert.True(t, channels["sms"])
	})

	t.Run("cascade is capped at one level", func(t *testing.T) {
		biz := "biz-001"
		views, err := f.store.List(ctx, queries.JobFilter{BusinessID: &biz})
		require.NoError(t, err)
		for _, v := range views {
			if v.ID == j.ID {
				continue
			}
			fbJob := f.mustJob(t, v.ID)
			assert.False(t, fbJob.HasFallbackTargets(), "fallback job must not cascade again")
		}
	})

	t.Run("push attempted exactly once", func(t *testing.T) {
		assert.Equal(t, 1, push.callCount())
	})
}

func TestProcessDueJobs_PushFallback_SingleTarget(t *testing.T) {
	ctx := context.Background()
	push := alwaysRejects("fcm-gateway", job.ChannelPush, "device gone")
	f := newFixture(t, fakeRegistry{job.ChannelPush: push})

	j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().
		WithChannel("push").
		WithMaxAttempts(2).
		WithMetadata(map[string]any{"fallbackSmsAudience": "+15550100"}). // legacy flat key
		Spec())
	require.NoError(t, err)

	_, err = f.engine.ProcessDueJobs(ctx, 10)
	require.NoError(t, err)

	final := f.mustJob(t, j.ID)
	assert.Equal(t, job.StatusFailed, final.Status)
	require.NotNil(t, final.LastError)
	assert.Equal(t, "Push delivery failed. Fallback queued: SMS", *final.LastError)
}

func TestProcessDueJobs_PushWithoutFallbackRetriesNormally(t *testing.T) {
	ctx := context.Background()
	push := alwaysRejects("fcm-gateway", job.ChannelPush, "throttled")
	f := newFixture(t, fakeRegistry{job.ChannelPush: push})

	j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().
		WithChannel("push").WithMaxAttempts(3).Spec())
	require.NoError(t, err)

	result, err := f.engine.ProcessDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)

	final := f.mustJob(t, j.ID)
	assert.Equal(t, job.StatusRetrying, final.Status)
}

// ──────────────────────────────────────────────────
// scheduledFor gating
// ──────────────────────────────────────────────────

func TestProcessDueJobs_ScheduledFor(t *testing.T) {
	ctx := context.Background()
	p := alwaysAccepts("ses", job.ChannelEmail)
	f := newFixture(t, fakeRegistry{job.ChannelEmail: p})

	sched := baseTime.Add(time.Hour)
	j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().
		WithMetadata(map[string]any{"scheduledFor": sched.Format(time.RFC3339)}).Spec())
	require.NoError(t, err)

	result, err := f.engine.ProcessDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed, "not due before scheduledFor")

	f.clk.Set(sched.Add(time.Second))
	result, err = f.engine.ProcessDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, job.StatusSent, f.mustJob(t, j.ID).Status)
}

// ──────────────────────────────────────────────────
// Manual retry
// ──────────────────────────────────────────────────

func TestRetryJob(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		f := newFixture(t, fakeRegistry{})
		_, err := f.engine.RetryJob(ctx, uuid.New())
		assert.ErrorIs(t, err, commands.ErrJobNotFound)
	})

	t.Run("sent job is a conflict", func(t *testing.T) {
		p := alwaysAccepts("ses", job.ChannelEmail)
		f := newFixture(t, fakeRegistry{job.ChannelEmail: p})
		j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().Spec())
		require.NoError(t, err)
		_, err = f.engine.ProcessDueJobs(ctx, 10)
		require.NoError(t, err)

		_, err = f.engine.RetryJob(ctx, j.ID)
		assert.ErrorIs(t, err, commands.ErrJobNotRetriable)
	})

	t.Run("exhausted budget is a conflict", func(t *testing.T) {
		p := alwaysRejects("ses", job.ChannelEmail, "bounced")
		f := newFixture(t, fakeRegistry{job.ChannelEmail: p})
		j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().WithMaxAttempts(1).Spec())
		require.NoError(t, err)
		_, err = f.engine.ProcessDueJobs(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, job.StatusFailed, f.mustJob(t, j.ID).Status)

		_, err = f.engine.RetryJob(ctx, j.ID)
		assert.ErrorIs(t, err, commands.ErrJobNotRetriable)
	})

	t.Run("retrying job with remaining budget is re-armed", func(t *testing.T) {
		p := alwaysRejects("ses", job.ChannelEmail, "greylisted")
		f := newFixture(t, fakeRegistry{job.ChannelEmail: p})
		j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().WithMaxAttempts(3).Spec())
		require.NoError(t, err)
		_, err = f.engine.ProcessDueJobs(ctx, 10)
		require.NoError(t, err)
		require.Equal(t, job.StatusRetrying, f.mustJob(t, j.ID).Status)

		updated, err := f.engine.RetryJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusRetrying, updated.Status)
		assert.Equal(t, f.clk.Now(), updated.NextAttemptAt, "nextAttemptAt reset to now")
		assert.Nil(t, updated.FailedAt)
		assert.Nil(t, updated.LastError)

		events := f.auditEvents(t, j.ID)
		assert.Equal(t, "retry_requested", events[len(events)-1])
	})

	// Named decision: the fallback path leaves the push job failed with
	// attempts < maxAttempts, and such a job may be manually re-armed.
	t.Run("push job failed via fallback stays retriable", func(t *testing.T) {
		push := alwaysRejects("fcm-gateway", job.ChannelPush, "bad token")
		f := newFixture(t, fakeRegistry{job.ChannelPush: push})
		j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().
			WithChannel("push").
			WithMaxAttempts(3).
			WithMetadata(map[string]any{"fallback": map[string]any{"emailAudience": "ops@example.com"}}).
			Spec())
		require.NoError(t, err)
		_, err = f.engine.ProcessDueJobs(ctx, 10)
		require.NoError(t, err)

		failed := f.mustJob(t, j.ID)
		require.Equal(t, job.StatusFailed, failed.Status)
		require.Less(t, failed.Attempts, failed.MaxAttempts)

		rearmed, err := f.engine.RetryJob(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, job.StatusRetrying, rearmed.Status)
	})
}

// ──────────────────────────────────────────────────
// Concurrent batches
// ──────────────────────────────────────────────────

func TestProcessDueJobs_ConcurrentBatches(t *testing.T) {
	ctx := context.Background()
	p := alwaysAccepts("ses", job.ChannelEmail)
	f := newFixture(t, fakeRegistry{job.ChannelEmail: p})

	j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().Spec())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*commands.ProcessResult, 2)
	errors := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errors[i] = f.engine.ProcessDueJobs(ctx, 10)
		}()
	}
	wg.Wait()
	require.NoError(t, errors[0])
	require.NoError(t, errors[1])

	// The CAS claim guarantees the job is attempted exactly once across the
	// racing call pair; the loser sees a claim conflict and skips.
	totalProcessed := results[0].Processed + results[1].Processed
	assert.Equal(t, 1, totalProcessed)
	assert.Equal(t, 1, p.callCount())
	assert.Equal(t, 1, f.mustJob(t, j.ID).Attempts)
	assert.Equal(t, job.StatusSent, f.mustJob(t, j.ID).Status)
}

// ──────────────────────────────────────────────────
// Batch ordering and limits
// ──────────────────────────────────────────────────

func TestProcessDueJobs_BatchOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	p := alwaysAccepts("ses", job.ChannelEmail)
	f := newFixture(t, fakeRegistry{job.ChannelEmail: p})

	// Stagger nextAttemptAt via scheduledFor, then advance past all of them.
	var ids []uuid.UUID
	for i := 3; i >= 1; i-- {
		sched := baseTime.Add(time.Duration(i) * time.Minute)
		j, err := f.engine.EnqueueJob(ctx, builder.NewJobBuilder().
			WithMetadata(map[string]any{"scheduledFor": sched.Format(time.RFC3339)}).Spec())
		require.NoError(t, err)
		ids = append(ids, j.ID)
	}
	f.clk.Set(baseTime.Add(time.Hour))

	t.Run("limit truncates the batch, earliest-due first", func(t *testing.T) {
		result, err := f.engine.ProcessDueJobs(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Processed)
		// enqueued in reverse order: ids[2] is due first (1 minute), ids[1] second
		assert.Equal(t, []uuid.UUID{ids[2], ids[1]}, result.JobIDs)
	})

	t.Run("remaining job goes out on the next call", func(t *testing.T) {
		result, err := f.engine.ProcessDueJobs(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Processed)
		assert.Equal(t, []uuid.UUID{ids[0]}, result.JobIDs)
	})
}

