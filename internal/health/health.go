// Package health watches the attempt ledger and alerts operators when syncs
// stop succeeding or start failing.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/internal/notify"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

const (
	DefaultMaxGap        = 5 * time.Hour
	DefaultFailureWindow = 24 * time.Hour
	DefaultInterval      = 30 * time.Minute
)

// Ledger is the read side of the attempt ledger.
type Ledger interface {
	LatestSuccessAt(ctx context.Context) (time.Time, bool, error)
	CountFailuresSince(ctx context.Context, since time.Time) (int, error)
}

// AlertSender delivers alerts.
type AlertSender interface {
	Send(ctx context.Context, alert notify.Alert) (bool, error)
}

// Report is the outcome of one check.
type Report struct {
	CheckedAt      time.Time  `json:"checked_at"`
	LastSuccess    *time.Time `json:"last_success,omitempty"`
	GapHours       float64    `json:"gap_hours"`
	RecentFailures int        `json:"recent_failures"`
	Stale          bool       `json:"stale"`
	Error          string     `json:"error,omitempty"`
}

// Healthy reports whether the check found nothing to alert on.
func (r Report) Healthy() bool {
	return !r.Stale && r.RecentFailures == 0 && r.Error == ""
}

type Config struct {
	Ledger        Ledger
	Alerts        AlertSender
	MaxGap        time.Duration
	FailureWindow time.Duration
	Interval      time.Duration
	Logger        *logging.Logger
	Now           func() time.Time

	Tick <-chan time.Time
	Stop func()
}

// Checker runs the batch health check.
type Checker struct {
	ledger        Ledger
	alerts        AlertSender
	maxGap        time.Duration
	failureWindow time.Duration
	logger        *logging.Logger
	now           func() time.Time

	tick <-chan time.Time
	stop func()
}

func NewChecker(cfg Config) (*Checker, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("health: ledger required")
	}
	c := &Checker{
		ledger:        cfg.Ledger,
		alerts:        cfg.Alerts,
		maxGap:        cfg.MaxGap,
		failureWindow: cfg.FailureWindow,
		logger:        cfg.Logger,
		now:           cfg.Now,
		tick:          cfg.Tick,
		stop:          cfg.Stop,
	}
	if c.maxGap <= 0 {
		c.maxGap = DefaultMaxGap
	}
	if c.failureWindow <= 0 {
		c.failureWindow = DefaultFailureWindow
	}
	if c.logger == nil {
		c.logger = logging.Default()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.alerts == nil {
		c.alerts = notify.NewAlerter(nil, nil, 0, c.logger)
	}
	if c.tick == nil {
		interval := cfg.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		ticker := time.NewTicker(interval)
		c.tick = ticker.C
		c.stop = ticker.Stop
	}
	return c, nil
}

// Check inspects the ledger once and sends any alerts. A ledger that never
// recorded a success is treated as a fresh install, not as stale.
func (c *Checker) Check(ctx context.Context) Report {
	now := c.now()
	rep := Report{CheckedAt: now}

	last, ok, err := c.ledger.LatestSuccessAt(ctx)
	if err != nil {
		return c.checkFailed(ctx, rep, fmt.Errorf("health: latest success: %w", err))
	}
	failures, err := c.ledger.CountFailuresSince(ctx, now.Add(-c.failureWindow))
	if err != nil {
		return c.checkFailed(ctx, rep, fmt.Errorf("health: count failures: %w", err))
	}
	rep.RecentFailures = failures

	if !ok {
		c.logger.Info("no successful sync recorded yet")
	} else {
		rep.LastSuccess = &last
		gap := now.Sub(last)
		rep.GapHours = gap.Hours()
		if gap > c.maxGap {
			rep.Stale = true
			c.alert(ctx, notify.Alert{
				Key:     "gap",
				Subject: "sync has not succeeded recently",
				Body: fmt.Sprintf("No successful sync for %.1f hours. Last success: %s.",
					rep.GapHours, last.Format("2006-01-02 15:04")),
			})
		} else {
			c.logger.Info("sync healthy", "last_success", last, "gap_hours", fmt.Sprintf("%.1f", rep.GapHours))
		}
	}

	if failures > 0 {
		c.alert(ctx, notify.Alert{
			Key:     "failures",
			Subject: "sync failures detected",
			Body:    fmt.Sprintf("%d sync attempts failed in the last %s.", failures, c.failureWindow),
		})
	}
	return rep
}

func (c *Checker) checkFailed(ctx context.Context, rep Report, err error) Report {
	rep.Error = err.Error()
	c.logger.Error("health check failed", "error", err)
	c.alert(ctx, notify.Alert{Key: "check_error", Subject: "health check error", Body: err.Error()})
	return rep
}

func (c *Checker) alert(ctx context.Context, a notify.Alert) {
	if _, err := c.alerts.Send(ctx, a); err != nil {
		c.logger.Error("failed to send alert", "key", a.Key, "error", err)
	}
}

// Start checks once immediately and then on every tick until ctx is done.
func (c *Checker) Start(ctx context.Context) {
	if c.stop != nil {
		defer c.stop()
	}
	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.tick:
			c.Check(ctx)
		}
	}
}
