package bootstrap

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/usecase/commands"

	"go.uber.org/fx"
)

var PollerModule = fx.Module("poller",
	fx.Invoke(
		StartPoller,
	),
)

// StartPoller runs the background dispatch loop: every tick it drains one
// batch of due jobs. QUEUE_POLL_INTERVAL=0 disables it, leaving only the
// manual process endpoint.
func StartPoller(lc fx.Lifecycle, cfg config.Config, cmds commands.DispatchCommands, logger *slog.Logger) {
	interval := cfg.Queue.PollInterval
	if interval <= 0 {
		logger.Info("queue poller disabled")
		return
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("queue poller started", "interval", interval, "batch_size", cfg.Queue.PollBatchSize)
			wg.Add(1)
			go func() {
				defer wg.Done()
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						pollOnce(cmds, cfg.Queue, logger)
					}
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			close(stop)
			wg.Wait()
			logger.Info("queue poller stopped")
			return nil
		},
	})
}

func pollOnce(cmds commands.DispatchCommands, cfg config.QueueConfig, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PollInterval)
	defer cancel()

	result, err := cmds.ProcessDueJobs(ctx, cfg.PollBatchSize)
	if err != nil {
		logger.Error("queue poll failed", "error", err)
		return
	}
	if result.Processed > 0 {
		logger.Info("queue poll completed",
			"processed", result.Processed,
			"sent", result.Sent,
			"retried", result.Retried,
			"failed", result.Failed,
		)
	}
}
