package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pagefeedhq/pagefeed/internal/models"
	"github.com/pagefeedhq/pagefeed/internal/services"
	"github.com/pagefeedhq/pagefeed/pkg/logger"
)

const (
	defaultViewRetentionDays = 365
	defaultTokenSpec         = "@hourly"
	defaultViewSpec          = "@daily"
)

// Cleaner coordinates background maintenance: purging expired magic-link
// tokens and pruning old page view records.
type Cleaner struct {
	db         *gorm.DB
	magicLinks *services.MagicLinkService
	cron       *cron.Cron
	now        func() time.Time
	log        *zap.Logger
	retention  int

	tokenSchedule string
	viewSchedule  string
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

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithViewRetentionDays adjusts how long page views are retained.
func WithViewRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithViewSchedule overrides the cron specification for page view pruning.
func WithViewSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.viewSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency
// results in the corresponding job being skipped.
func NewCleaner(db *gorm.DB, magicLinks *services.MagicLinkService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:            db,
		magicLinks:    magicLinks,
		now:           time.Now,
		retention:     defaultViewRetentionDays,
		tokenSchedule: defaultTokenSpec,
		viewSchedule:  defaultViewSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.magicLinks != nil {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			if _, err := c.magicLinks.PurgeExpired(context.Background()); err != nil {
				c.log.Warn("token cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.viewSchedule, func() {
			if _, err := c.pruneViews(context.Background()); err != nil {
				c.log.Warn("page view cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
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

// RunOnce executes all configured cleanup routines sequentially. Primarily
// used in tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.magicLinks != nil {
		if _, err := c.magicLinks.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil && c.retention > 0 {
		if _, err := c.pruneViews(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

func (c *Cleaner) pruneViews(ctx context.Context) (int64, error) {
	cutoff := c.now().AddDate(0, 0, -c.retention)
	result := c.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.PageView{})
	return result.RowsAffected, result.Error
}
