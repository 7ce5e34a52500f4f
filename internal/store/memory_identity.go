package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
)

// MemoryIdentityStore is an in-process patient and resource directory.
type MemoryIdentityStore struct {
	mu        sync.RWMutex
	patients  map[uuid.UUID]patient.Record
	conflicts []patient.Conflict
	resources map[grid.Kind]map[string]uuid.UUID
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{
		patients:  make(map[uuid.UUID]patient.Record),
		resources: make(map[grid.Kind]map[string]uuid.UUID),
	}
}

// AddResource registers a named resource for kind and returns its id.
func (m *MemoryIdentityStore) AddResource(kind grid.Kind, name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resources[kind] == nil {
		m.resources[kind] = make(map[string]uuid.UUID)
	}
	id := uuid.New()
	m.resources[kind][name] = id
	return id
}

func (m *MemoryIdentityStore) PatientByExternalID(_ context.Context, externalID string) (uuid.UUID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, p := range m.patients {
		if p.EMRPatientID == externalID {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (m *MemoryIdentityStore) PatientsByName(_ context.Context, name string) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []uuid.UUID
	for id, p := range m.patients {
		if p.Name == name {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (m *MemoryIdentityStore) FindByEMRID(_ context.Context, emrPatientID string) (*patient.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.patients {
		if p.EMRPatientID == emrPatientID {
			cp := p
			return &cp, nil
		}
	}
	return nil, patient.ErrNotFound
}

func (m *MemoryIdentityStore) CreatePatient(_ context.Context, rec *patient.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	for _, p := range m.patients {
		if p.EMRPatientID != "" && p.EMRPatientID == rec.EMRPatientID {
			return ErrDuplicateKey
		}
	}
	m.patients[rec.ID] = *rec
	return nil
}

func (m *MemoryIdentityStore) UpdatePhone(_ context.Context, id uuid.UUID, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return ErrNotFound
	}
	p.Phone = phone
	m.patients[id] = p
	return nil
}

func (m *MemoryIdentityStore) RecordConflict(_ context.Context, c *patient.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	m.conflicts = append(m.conflicts, *c)
	return nil
}

func (m *MemoryIdentityStore) ResourceIDs(_ context.Context, kind grid.Kind) (map[string]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]uuid.UUID, len(m.resources[kind]))
	for name, id := range m.resources[kind] {
		out[name] = id
	}
	return out, nil
}

// Patients returns a snapshot of every stored patient.
func (m *MemoryIdentityStore) Patients() []patient.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]patient.Record, 0, len(m.patients))
	for _, p := range m.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EMRPatientID < out[j].EMRPatientID })
	return out
}

// Conflicts returns the identity conflicts recorded so far.
func (m *MemoryIdentityStore) Conflicts() []patient.Conflict {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]patient.Conflict(nil), m.conflicts...)
}
