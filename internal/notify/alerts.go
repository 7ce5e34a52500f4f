package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// DefaultAlertInterval suppresses repeats of the same alert key.
const DefaultAlertInterval = time.Hour

// Alert is one operator-facing problem report. Key groups repeats.
type Alert struct {
	Key     string
	Subject string
	Body    string
}

// Alerter fans alerts out to the configured recipients.
type Alerter struct {
	sender     EmailSender
	recipients []string
	interval   time.Duration
	logger     *logging.Logger
	now        func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewAlerter returns an alerter. A non-positive interval uses the default.
func NewAlerter(sender EmailSender, recipients []string, interval time.Duration, logger *logging.Logger) *Alerter {
	if logger == nil {
		logger = logging.Default()
	}
	if sender == nil {
		sender = NewStubEmailSender(logger)
	}
	if interval <= 0 {
		interval = DefaultAlertInterval
	}
	var to []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	return &Alerter{
		sender:     sender,
		recipients: to,
		interval:   interval,
		logger:     logger,
		now:        time.Now,
		last:       make(map[string]time.Time),
	}
}

// Send delivers the alert unless the same key went out within the interval.
// It reports whether the alert was sent.
func (a *Alerter) Send(ctx context.Context, alert Alert) (bool, error) {
	if len(a.recipients) == 0 {
		a.logger.Warn("alert dropped, no recipients configured", "key", alert.Key, "subject", alert.Subject)
		return false, nil
	}

	now := a.now()
	a.mu.Lock()
	if at, ok := a.last[alert.Key]; ok && now.Sub(at) < a.interval {
		a.mu.Unlock()
		a.logger.Debug("alert suppressed", "key", alert.Key, "last_sent", at)
		return false, nil
	}
	a.mu.Unlock()

	var errs []error
	for _, to := range a.recipients {
		msg := EmailMessage{To: to, Subject: "[sheet-sync] " + alert.Subject, Body: alert.Body}
		if err := a.sender.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}
	if len(errs) == len(a.recipients) {
		return false, fmt.Errorf("notify: alert %s: %w", alert.Key, errors.Join(errs...))
	}

	a.mu.Lock()
	a.last[alert.Key] = now
	a.mu.Unlock()
	if len(errs) > 0 {
		return true, fmt.Errorf("notify: alert %s partially delivered: %w", alert.Key, errors.Join(errs...))
	}
	return true, nil
}
