package jobs

import (
	"context"
	"fmt"
	"time"

	"csv-generator/logging"

	"github.com/robfig/cron/v3"
)

// Janitor purges jobs older than the retention on a cron schedule.
type Janitor struct {
	store     *Store
	retention time.Duration
	logger    *logging.Logger
	cron      *cron.Cron
}

func NewJanitor(store *Store, retention time.Duration, logger *logging.Logger) *Janitor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Janitor{
		store:     store,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start schedules RunOnce, e.g. "@hourly" or "0 3 * * *".
func (j *Janitor) Start(schedule string) error {
	_, err := j.cron.AddFunc(schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Errorw("purge failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	j.cron.Start()
	j.logger.Infow("purge scheduled", "schedule", schedule, "retention", j.retention.String())
	return nil
}

// Stop waits for a running purge to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.store.Purge(ctx, j.store.now().Add(-j.retention))
	if err != nil {
		return 0, err
	}
	j.logger.Infow("reports purged", "deleted", n)
	return n, nil
}
