package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

// MemoryRecordStore is an in-process record repository for dry runs and tests.
type MemoryRecordStore struct {
	mu     sync.RWMutex
	domain grid.Kind
	byKey  map[string]*PersistedRecord
	byID   map[uuid.UUID]string
}

// NewMemoryRecordStore returns an empty repository for domain.
func NewMemoryRecordStore(domain grid.Kind) *MemoryRecordStore {
	return &MemoryRecordStore{
		domain: domain,
		byKey:  make(map[string]*PersistedRecord),
		byID:   make(map[uuid.UUID]string),
	}
}

func (m *MemoryRecordStore) Domain() grid.Kind {
	return m.domain
}

func (m *MemoryRecordStore) FindByDedupKey(_ context.Context, key string) (*PersistedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryRecordStore) Create(_ context.Context, rec *PersistedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[rec.DedupKey]; ok {
		return ErrDuplicateKey
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Domain = m.domain
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	cp := *rec
	m.byKey[rec.DedupKey] = &cp
	m.byID[rec.ID] = rec.DedupKey
	return nil
}

func (m *MemoryRecordStore) ConditionalUpdate(_ context.Context, id uuid.UUID, rec *PersistedRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.lookupLocked(id)
	if cur == nil || cur.ManualOverride {
		return false, nil
	}
	cur.Resource, cur.ResourceID, cur.EndTime = rec.Resource, rec.ResourceID, rec.EndTime
	cur.PatientID, cur.RawName, cur.ExternalID = rec.PatientID, rec.RawName, rec.ExternalID
	cur.Status, cur.Note, cur.DurationMins = rec.Status, rec.Note, rec.DurationMins
	cur.Subtype, cur.DoctorCode, cur.SpecialUse, cur.Admin = rec.Subtype, rec.DoctorCode, rec.SpecialUse, rec.Admin
	cur.AdmitDate, cur.DischargeDate = rec.AdmitDate, rec.DischargeDate
	cur.LastSyncedAt, cur.SourceCell, cur.RawText = rec.LastSyncedAt, rec.SourceCell, rec.RawText
	cur.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryRecordStore) Touch(_ context.Context, id uuid.UUID, syncedAt time.Time, rawText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.lookupLocked(id); cur != nil && !cur.ManualOverride {
		cur.LastSyncedAt = syncedAt
		cur.RawText = rawText
	}
	return nil
}

func (m *MemoryRecordStore) CancelStale(_ context.Context, tab string, before time.Time, keep []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	skip := make(map[string]bool, len(keep))
	for _, k := range keep {
		skip[k] = true
	}
	var n int64
	for key, rec := range m.byKey {
		if rec.SourceTab != tab || rec.Source != SourceSheet || rec.ManualOverride || skip[key] {
			continue
		}
		if rec.Status.Terminal() || !rec.LastSyncedAt.Before(before) {
			continue
		}
		rec.Status = decode.StatusCancelled
		rec.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

func (m *MemoryRecordStore) ListOverridden(_ context.Context, tab string) ([]PersistedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []PersistedRecord
	for _, rec := range m.byKey {
		if rec.SourceTab == tab && rec.ManualOverride {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DedupKey < out[j].DedupKey })
	return out, nil
}

func (m *MemoryRecordStore) SetOverride(_ context.Context, id uuid.UUID) error {
	return m.setOverride(id, true)
}

func (m *MemoryRecordStore) ClearOverride(_ context.Context, id uuid.UUID) error {
	return m.setOverride(id, false)
}

// Put stores rec as is, replacing any row under the same key.
func (m *MemoryRecordStore) Put(rec PersistedRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.byKey[rec.DedupKey] = &rec
	m.byID[rec.ID] = rec.DedupKey
}

// All returns a snapshot of every row, ordered by dedup key.
func (m *MemoryRecordStore) All() []PersistedRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PersistedRecord, 0, len(m.byKey))
	for _, rec := range m.byKey {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DedupKey < out[j].DedupKey })
	return out
}

func (m *MemoryRecordStore) setOverride(id uuid.UUID, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.lookupLocked(id)
	if cur == nil {
		return ErrNotFound
	}
	cur.ManualOverride = value
	return nil
}

func (m *MemoryRecordStore) lookupLocked(id uuid.UUID) *PersistedRecord {
	key, ok := m.byID[id]
	if !ok {
		return nil
	}
	return m.byKey[key]
}
