package components

import (
	"context"
	"log/slog"

	"notify-dispatch/internal/infra/db"
	"notify-dispatch/internal/infra/memstore"
	"notify-dispatch/internal/infra/readstore"
	"notify-dispatch/internal/infra/repository"
	"notify-dispatch/internal/pkg/clock"
	"notify-dispatch/internal/pkg/config"
	"notify-dispatch/internal/usecase/commands"
	"notify-dispatch/internal/usecase/queries"

	"go.uber.org/fx"
)

// JobStores bundles the three store ports so the driver switch happens in
// one place.
type JobStores struct {
	fx.Out

	Jobs  commands.JobRepository
	Audit commands.AuditRepository
	Reads queries.JobReadStore
}

var StoreModule = fx.Module("store",
	fx.Provide(
		clock.NewRealClock,
		NewJobStores,
	),
)

// NewJobStores picks the backend from DB_DRIVER: "postgres" runs on pgx,
// anything else falls back to the in-process memory store.
func NewJobStores(lc fx.Lifecycle, cfg config.Config, clk clock.Clock) (JobStores, error) {
	if cfg.DB.Driver == "postgres" {
		pool, cleanup, err := db.Connect(context.Background(), cfg.DB)
		if err != nil {
			return JobStores{}, err
		}

		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				cleanup()
				return nil
			},
		})

		slog.Info("job store initialized", "driver", "postgres")
		return JobStores{
			Jobs:  repository.NewJobRepository(pool),
			Audit: repository.NewAuditRepository(pool),
			Reads: readstore.NewJobReadStore(pool),
		}, nil
	}

	store := memstore.New(clk)
	slog.Info("job store initialized", "driver", "memory")
	return JobStores{
		Jobs:  store,
		Audit: store,
		Reads: store,
	}, nil
}
