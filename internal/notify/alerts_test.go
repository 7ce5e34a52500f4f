package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	fail map[string]bool
}

func (r *recordingSender) Send(_ context.Context, msg EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func TestAlerter_SendsToEachRecipient(t *testing.T) {
	sender := &recordingSender{}
	a := NewAlerter(sender, []string{"a@example.com", " ", "b@example.com"}, time.Hour, logging.Discard())

	sent, err := a.Send(context.Background(), Alert{Key: "gap", Subject: "no successful sync", Body: "last 6h ago"})
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, "[sheet-sync] no successful sync", sender.sent[0].Subject)
}

func TestAlerter_SuppressesRepeatsWithinInterval(t *testing.T) {
	sender := &recordingSender{}
	a := NewAlerter(sender, []string{"a@example.com"}, time.Hour, logging.Discard())
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	_, err := a.Send(context.Background(), Alert{Key: "gap"})
	require.NoError(t, err)
	sent, err := a.Send(context.Background(), Alert{Key: "gap"})
	require.NoError(t, err)
	assert.False(t, sent)

	sent, err = a.Send(context.Background(), Alert{Key: "failures"})
	require.NoError(t, err)
	assert.True(t, sent, "different keys are independent")

	now = now.Add(time.Hour)
	sent, err = a.Send(context.Background(), Alert{Key: "gap"})
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Len(t, sender.sent, 3)
}

func TestAlerter_AllRecipientsFailedIsRetried(t *testing.T) {
	sender := &recordingSender{fail: map[string]bool{"a@example.com": true}}
	a := NewAlerter(sender, []string{"a@example.com"}, time.Hour, logging.Discard())

	sent, err := a.Send(context.Background(), Alert{Key: "gap"})
	require.Error(t, err)
	assert.False(t, sent)

	sender.fail = nil
	sent, err = a.Send(context.Background(), Alert{Key: "gap"})
	require.NoError(t, err)
	assert.True(t, sent, "a failed alert does not start the suppression window")
}

func TestAlerter_PartialDelivery(t *testing.T) {
	sender := &recordingSender{fail: map[string]bool{"b@example.com": true}}
	a := NewAlerter(sender, []string{"a@example.com", "b@example.com"}, time.Hour, logging.Discard())

	sent, err := a.Send(context.Background(), Alert{Key: "gap"})
	assert.True(t, sent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partially delivered")
}

func TestAlerter_NoRecipients(t *testing.T) {
	a := NewAlerter(nil, nil, 0, logging.Discard())
	sent, err := a.Send(context.Background(), Alert{Key: "gap"})
	require.NoError(t, err)
	assert.False(t, sent)
}
