package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kestrelrealty/backoffice/internal/models"
	"github.com/kestrelrealty/backoffice/pkg/logger"
)

const (
	defaultSchedule            = "@hourly"
	defaultReadMarkerRetention = 30 * 24 * time.Hour
	defaultAckRetention        = 90 * 24 * time.Hour
)

// Pruner removes aged read markers and acknowledgement rows on a schedule.
// Read markers only matter while their item can still surface in the feed,
// so stale ones are safe to drop once the entity has long been handled.
type Pruner struct {
	db   *gorm.DB
	cron *cron.Cron
	now  func() time.Time
	log  *zap.Logger

	schedule            string
	readMarkerRetention time.Duration
	ackRetention        time.Duration
}

// Option customises the Pruner.
type Option func(*Pruner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(p *Pruner) {
		if c != nil {
			p.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(p *Pruner) {
		if now != nil {
			p.now = now
		}
	}
}

// WithSchedule overrides the cron specification for pruning runs.
func WithSchedule(spec string) Option {
	return func(p *Pruner) {
		if spec != "" {
			p.schedule = spec
		}
	}
}

// WithReadMarkerRetention adjusts how long read markers are kept.
func WithReadMarkerRetention(d time.Duration) Option {
	return func(p *Pruner) {
		if d > 0 {
			p.readMarkerRetention = d
		}
	}
}

// WithAckRetention adjusts how long acknowledgement rows are kept.
func WithAckRetention(d time.Duration) Option {
	return func(p *Pruner) {
		if d > 0 {
			p.ackRetention = d
		}
	}
}

// NewPruner constructs a Pruner with sensible defaults.
func NewPruner(db *gorm.DB, opts ...Option) *Pruner {
	p := &Pruner{
		db:                  db,
		now:                 time.Now,
		schedule:            defaultSchedule,
		readMarkerRetention: defaultReadMarkerRetention,
		ackRetention:        defaultAckRetention,
		log:                 logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.cron == nil {
		p.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return p
}

// Start registers the pruning job with the cron scheduler and launches it.
func (p *Pruner) Start() error {
	if p.db == nil {
		return nil
	}

	if _, err := p.cron.AddFunc(p.schedule, func() {
		if err := p.RunOnce(context.Background()); err != nil {
			p.log.Warn("pruning run failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	p.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (p *Pruner) Stop() context.Context {
	if p.cron == nil {
		return context.Background()
	}
	return p.cron.Stop()
}

// PruneStats captures the number of rows removed in one run.
type PruneStats struct {
	ReadMarkers      int64
	Acknowledgements int64
}

// RunOnce executes one pruning pass. Primarily used in tests and during
// graceful shutdown.
func (p *Pruner) RunOnce(ctx context.Context) error {
	_, err := p.Prune(ctx)
	return err
}

// Prune removes rows older than the configured retention windows.
func (p *Pruner) Prune(ctx context.Context) (PruneStats, error) {
	if p.db == nil {
		return PruneStats{}, errors.New("prune: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := p.now()
	stats := PruneStats{}
	var errs error

	if result := p.db.WithContext(ctx).
		Where("read_at < ?", now.Add(-p.readMarkerRetention)).
		Delete(&models.ReadMarker{}); result.Error != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune: read markers: %w", result.Error))
	} else {
		stats.ReadMarkers = result.RowsAffected
	}

	if result := p.db.WithContext(ctx).
		Where("created_at < ?", now.Add(-p.ackRetention)).
		Delete(&models.Acknowledgement{}); result.Error != nil {
		errs = multierr.Append(errs, fmt.Errorf("prune: acknowledgements: %w", result.Error))
	} else {
		stats.Acknowledgements = result.RowsAffected
	}

	if errs == nil && (stats.ReadMarkers > 0 || stats.Acknowledgements > 0) {
		p.log.Info("pruned aged rows",
			zap.Int64("read_markers", stats.ReadMarkers),
			zap.Int64("acknowledgements", stats.Acknowledgements),
		)
	}

	return stats, errs
}
