package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
	"github.com/wolfman30/clinic-sheet-sync/internal/store"
)

// toPersisted builds the stored form of a decoded record.
func toPersisted(rec decode.Record, res patient.Resolution, syncedAt time.Time, opts Options) *store.PersistedRecord {
	env := rec.Base()
	source := opts.Source
	if source == "" {
		source = store.SourceSheet
	}
	out := &store.PersistedRecord{
		Domain:       env.Kind,
		DedupKey:     rec.DedupKey(),
		Date:         env.Date,
		StartTime:    env.Time,
		PatientID:    res.PatientID,
		LastSyncedAt: syncedAt,
		Source:       source,
		SourceTab:    env.Tab,
		SourceCell:   env.Cell,
		RawText:      env.RawText,
	}
	pt := decode.PatientOf(rec)
	out.RawName = pt.RawName
	out.ExternalID = pt.ExternalID

	if b, ok := decode.BookingOf(rec); ok {
		out.Resource = b.Resource
		out.EndTime = b.EndTime
		out.Status = b.Status
		out.Note = b.Note
		out.DurationMins = b.DurationMins
		out.Subtype = string(b.Subtype)
		out.DoctorCode = b.DoctorCode
		out.SpecialUse = string(b.SpecialUse)
		out.Admin = b.Admin
	}
	if w, ok := rec.(*decode.WardAdmissionLine); ok {
		out.Resource = w.BedKey
		out.Status = w.Status
		out.Note = w.Note
		out.AdmitDate = datePtr(w.AdmitDate)
		out.DischargeDate = datePtr(w.DischargeDate)
	}
	if id, ok := lookupResource(opts.Resources, out.Resource); ok {
		out.ResourceID = &id
	}
	return out
}

func lookupResource(table map[string]uuid.UUID, name string) (uuid.UUID, bool) {
	if name == "" || table == nil {
		return uuid.Nil, false
	}
	id, ok := table[name]
	return id, ok
}

func datePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
