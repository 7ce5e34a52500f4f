package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAttemptStore is an in-process attempt ledger for dry runs and tests.
type MemoryAttemptStore struct {
	mu       sync.RWMutex
	attempts []*SyncAttempt
	now      func() time.Time
}

// NewMemoryAttemptStore returns an empty ledger.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{now: func() time.Time { return time.Now().UTC() }}
}

// SetClock overrides the ledger clock.
func (m *MemoryAttemptStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryAttemptStore) Start(_ context.Context, meta AttemptMeta) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &SyncAttempt{
		ID:        uuid.New(),
		SourceID:  meta.SourceID,
		Tab:       meta.Tab,
		Kind:      meta.Kind,
		Status:    AttemptRunning,
		StartedAt: m.now(),
	}
	m.attempts = append(m.attempts, a)
	return a.ID, nil
}

func (m *MemoryAttemptStore) Complete(_ context.Context, id uuid.UUID, res AttemptResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ID != id {
			continue
		}
		at := m.now()
		a.FinishedAt = &at
		a.Stats = res.Stats
		a.Fingerprint = res.Fingerprint
		a.WriteBacks = res.WriteBacks
		a.Status = AttemptSucceeded
		if res.Err != nil {
			a.Status = AttemptFailed
			a.Error = res.Err.Error()
		}
		return nil
	}
	return ErrNotFound
}

func (m *MemoryAttemptStore) LastSuccessful(_ context.Context, sourceID, tab string) (*LastRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if a.SourceID == sourceID && a.Tab == tab && a.Status == AttemptSucceeded {
			return &LastRun{Fingerprint: a.Fingerprint, SyncedAt: *a.FinishedAt}, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryAttemptStore) RecentWrites(_ context.Context, sourceID, tab string, since time.Time) ([]WriteBack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []WriteBack
	for _, a := range m.attempts {
		if a.SourceID != sourceID || a.Tab != tab || a.FinishedAt == nil || a.FinishedAt.Before(since) {
			continue
		}
		for _, w := range a.WriteBacks {
			if w.Applied && !w.WrittenAt.Before(since) {
				out = append(out, w)
			}
		}
	}
	return out, nil
}

func (m *MemoryAttemptStore) HasFingerprint(_ context.Context, sourceID, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attempts {
		if a.SourceID == sourceID && a.Fingerprint == fingerprint && a.Status == AttemptSucceeded {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryAttemptStore) LatestSuccessAt(_ context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest time.Time
	for _, a := range m.attempts {
		if a.Status == AttemptSucceeded && a.FinishedAt != nil && a.FinishedAt.After(latest) {
			latest = *a.FinishedAt
		}
	}
	return latest, !latest.IsZero(), nil
}

func (m *MemoryAttemptStore) CountFailuresSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.attempts {
		if a.Status == AttemptFailed && !a.StartedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryAttemptStore) Recent(_ context.Context, limit int) ([]SyncAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 20
	}
	var out []SyncAttempt
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.attempts[i])
	}
	return out, nil
}
