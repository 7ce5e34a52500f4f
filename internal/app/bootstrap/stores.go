// Package bootstrap wires the sync pipeline shared by the server and the CLI.
package bootstrap

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
	"github.com/wolfman30/clinic-sheet-sync/internal/reconcile"
	"github.com/wolfman30/clinic-sheet-sync/internal/store"
	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
)

// AttemptLedger is every read and write the binaries make on the attempt log.
type AttemptLedger interface {
	syncrun.AttemptLedger
	HasFingerprint(ctx context.Context, sourceID, fingerprint string) (bool, error)
	LatestSuccessAt(ctx context.Context) (time.Time, bool, error)
	CountFailuresSince(ctx context.Context, since time.Time) (int, error)
	Recent(ctx context.Context, limit int) ([]store.SyncAttempt, error)
}

// IdentityStore serves patient lookups and EMR patient registration.
type IdentityStore interface {
	syncrun.Identity
	patient.RegistryStore
}

// RecordRepository is one domain's record table seen by sync and write-back.
type RecordRepository interface {
	reconcile.Repository
	syncrun.OverrideRepository
}

// Stores groups the repositories behind one process.
type Stores struct {
	Ledger   AttemptLedger
	Identity IdentityStore
	Records  map[grid.Kind]RecordRepository
}

var domains = []grid.Kind{grid.KindRF, grid.KindManual, grid.KindWard, grid.KindOutpatient}

// BuildStores returns Postgres-backed repositories.
func BuildStores(db store.DB) *Stores {
	s := &Stores{
		Ledger:   store.NewAttemptStore(db),
		Identity: store.NewIdentityStore(db),
		Records:  make(map[grid.Kind]RecordRepository, len(domains)),
	}
	for _, kind := range domains {
		s.Records[kind] = store.NewRecordStore(db, kind)
	}
	return s
}

// BuildMemoryStores returns in-process repositories for dry runs.
func BuildMemoryStores() *Stores {
	s := &Stores{
		Ledger:   store.NewMemoryAttemptStore(),
		Identity: store.NewMemoryIdentityStore(),
		Records:  make(map[grid.Kind]RecordRepository, len(domains)),
	}
	for _, kind := range domains {
		s.Records[kind] = store.NewMemoryRecordStore(kind)
	}
	return s
}

// SyncRepos narrows Records for the orchestrator.
func (s *Stores) SyncRepos() map[grid.Kind]reconcile.Repository {
	out := make(map[grid.Kind]reconcile.Repository, len(s.Records))
	for kind, repo := range s.Records {
		out[kind] = repo
	}
	return out
}

// OverrideRepos narrows Records for write-back.
func (s *Stores) OverrideRepos() map[grid.Kind]syncrun.OverrideRepository {
	out := make(map[grid.Kind]syncrun.OverrideRepository, len(s.Records))
	for kind, repo := range s.Records {
		out[kind] = repo
	}
	return out
}
