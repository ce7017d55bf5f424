package maintenance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/pkg/logger"
)

const (
	defaultSchedule = "@every 15m"

	// TaskResetTokens is the name under which expired reset tokens are reported.
	TaskResetTokens = "reset_tokens"
)

// Pruner removes expired records from a backing store and reports how many
// were deleted. The memory and database cache stores and the database
// session handler satisfy it.
type Pruner interface {
	PruneExpired(ctx context.Context) (int64, error)
}

// Cleaner periodically removes expired reset tokens, cache entries and
// database sessions.
type Cleaner struct {
	db       *gorm.DB
	pruners  map[string]Pruner
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	schedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for reset token expiry.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron specification of the prune job.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithPruner registers an additional store to prune under name. A nil
// pruner is ignored so callers can pass optional stores directly.
func WithPruner(name string, p Pruner) Option {
	return func(cleaner *Cleaner) {
		if p != nil && name != "" {
			cleaner.pruners[name] = p
		}
	}
}

// NewCleaner constructs a Cleaner. When db is nil reset tokens are not pruned.
func NewCleaner(db *gorm.DB, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:       db,
		pruners:  make(map[string]Pruner),
		now:      time.Now,
		schedule: defaultSchedule,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the prune job and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.db == nil && len(c.pruners) == 0 {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		stats, err := c.RunOnce(context.Background())
		if err != nil {
			c.log.Warn("prune failed", zap.Error(err))
		}
		c.log.Debug("prune completed", zap.Any("removed", stats))
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce runs every prune task and returns the rows removed per task. A
// failing task does not stop the others; their errors are combined.
func (c *Cleaner) RunOnce(ctx context.Context) (map[string]int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	stats := make(map[string]int64, len(c.pruners)+1)
	var errs error

	if c.db != nil {
		n, err := auth.PruneExpiredResetTokens(ctx, c.db, c.now())
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		stats[TaskResetTokens] = n
	}

	names := make([]string, 0, len(c.pruners))
	for name := range c.pruners {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		n, err := c.pruners[name].PruneExpired(ctx)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("maintenance: prune %s: %w", name, err))
		}
		stats[name] = n
	}

	return stats, errs
}

