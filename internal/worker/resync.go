package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
)

type Refresher interface {
	RefreshAll(ctx context.Context, from, to string) (int, error)
}

// Resync rebuilds the slot cache for the next days on a cron schedule.
type Resync struct {
	refresher Refresher
	days      int
	loc       *time.Location
	timeout   time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewResync(refresher Refresher, days int, loc *time.Location, log *logger.Logger) *Resync {
	return &Resync{
		refresher: refresher,
		days:      days,
		loc:       loc,
		timeout:   2 * time.Minute,
		logger:    log,
		now:       time.Now,
	}
}

// Run refreshes [today, today+days) once.
func (r *Resync) Run(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	today := r.now().In(r.loc)
	from := today.Format(model.DateLayout)
	to := today.AddDate(0, 0, r.days-1).Format(model.DateLayout)
	n, err := r.refresher.RefreshAll(ctx, from, to)
	if err != nil {
		return n, fmt.Errorf("failed to resync %s..%s: %w", from, to, err)
	}
	r.logger.Info("Slot cache resynced", "from", from, "to", to, "slots", n)
	return n, nil
}

// Schedule registers Run with spec, e.g. "@every 15m" or "0 */1 * * *".
// Overlapping runs are skipped.
func (r *Resync) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(r.loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx); err != nil {
			r.logger.Error(err, "Scheduled resync failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	return c, nil
}
