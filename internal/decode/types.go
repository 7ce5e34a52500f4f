// Package decode turns the text of one schedule cell into typed records.
package decode

import (
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

// Status is the booking state carried by a record.
type Status string

const (
	StatusBooked              Status = "booked"
	StatusBlocked             Status = "blocked"
	StatusWaiting             Status = "waiting"
	StatusHold                Status = "hold"
	StatusLongTermUnavailable Status = "long_term_unavailable"
	StatusCancelled           Status = "cancelled"
	StatusCheckedIn           Status = "checked_in"
	StatusCompleted           Status = "completed"
	StatusNoShow              Status = "no_show"
	StatusChanged             Status = "changed"
)

// Terminal reports whether a status can no longer change through sync.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	default:
		return false
	}
}

// Subtype classifies the treatment annotation of a manual/RF booking.
type Subtype string

const (
	SubtypeNone         Subtype = ""
	SubtypeHeat         Subtype = "heat"
	SubtypeCold         Subtype = "cold"
	SubtypeContrast     Subtype = "contrast"
	SubtypeHeatElectric Subtype = "heat_electric"
	SubtypeElectric     Subtype = "electric"
	SubtypeManual       Subtype = "manual"
	SubtypeTraction     Subtype = "traction"
	SubtypeUltrasound   Subtype = "ultrasound"
	SubtypeShockwave    Subtype = "shockwave"
)

// SpecialUse tags cells that reserve a slot for something other than a patient.
type SpecialUse string

const (
	SpecialNone     SpecialUse = ""
	SpecialInfusion SpecialUse = "infusion_room"
	SpecialDevice   SpecialUse = "device"
	SpecialInquiry  SpecialUse = "inquiry_only"
)

// Envelope is the part every record shares: where it came from and when it is.
type Envelope struct {
	Kind    grid.Kind
	Tab     string
	Date    time.Time
	Time    string
	RawText string
	Row     int
	Col     int
	Cell    string
}

// DateString is the record date in grid.DateLayout, or "" for undated records.
func (e Envelope) DateString() string {
	if e.Date.IsZero() {
		return ""
	}
	return e.Date.Format(grid.DateLayout)
}

// Patient is the loose identity a cell offers; the resolver makes it canonical.
type Patient struct {
	ExternalID string
	RawName    string
}

// Booking holds the fields shared by slot-style records.
type Booking struct {
	Resource     string
	Patient      Patient
	Status       Status
	DoctorCode   string
	Subtype      Subtype
	DurationMins int
	EndTime      string
	SpecialUse   SpecialUse
	Admin        bool
	Note         string
}

// Record is the closed set of parsed record variants.
type Record interface {
	Base() Envelope
	DedupKey() string
	isRecord()
}

// RfSlot is one radio-frequency machine slot.
type RfSlot struct {
	Envelope
	Booking
}

// ManualSlot is one manual-therapy slot for a therapist.
type ManualSlot struct {
	Envelope
	Booking
}

// OutpatientAppointment is one outpatient room booking.
type OutpatientAppointment struct {
	Envelope
	Booking
	// EMRAppointmentID is set when the record came from an EMR export file.
	EMRAppointmentID string
	DoctorName       string
}

// WardAdmissionLine is one line of a ward bed cell.
type WardAdmissionLine struct {
	Envelope
	BedKey        string
	LineIndex     int
	Patient       Patient
	Status        Status
	AdmitDate     time.Time
	DischargeDate time.Time
	Note          string
}

func (r *RfSlot) Base() Envelope                { return r.Envelope }
func (r *ManualSlot) Base() Envelope            { return r.Envelope }
func (r *OutpatientAppointment) Base() Envelope { return r.Envelope }
func (r *WardAdmissionLine) Base() Envelope     { return r.Envelope }

func (*RfSlot) isRecord()                {}
func (*ManualSlot) isRecord()            {}
func (*OutpatientAppointment) isRecord() {}
func (*WardAdmissionLine) isRecord()     {}

// DedupKey: machine + date + time.
func (r *RfSlot) DedupKey() string {
	return joinKey(r.Resource, r.DateString(), r.Time)
}

// DedupKey: therapist + date + time.
func (r *ManualSlot) DedupKey() string {
	return joinKey(r.Resource, r.DateString(), r.Time)
}

// DedupKey: the EMR appointment id when known, else room + date + time.
func (r *OutpatientAppointment) DedupKey() string {
	if id := strings.TrimSpace(r.EMRAppointmentID); id != "" {
		return joinKey("emr", id)
	}
	return joinKey(r.Resource, r.DateString(), r.Time)
}

// DedupKey: bed + tab + cell address + line index.
func (r *WardAdmissionLine) DedupKey() string {
	return joinKey(r.BedKey, r.Tab, r.Cell, strconv.Itoa(r.LineIndex))
}

// BookingOf returns the shared booking fields of slot-style records.
func BookingOf(rec Record) (Booking, bool) {
	switch r := rec.(type) {
	case *RfSlot:
		return r.Booking, true
	case *ManualSlot:
		return r.Booking, true
	case *OutpatientAppointment:
		return r.Booking, true
	default:
		return Booking{}, false
	}
}

// PatientOf returns the loose identity of any record.
func PatientOf(rec Record) Patient {
	if w, ok := rec.(*WardAdmissionLine); ok {
		return w.Patient
	}
	b, _ := BookingOf(rec)
	return b.Patient
}

// ResourceOf returns the resource label (room, therapist, bed key).
func ResourceOf(rec Record) string {
	if w, ok := rec.(*WardAdmissionLine); ok {
		return w.BedKey
	}
	b, _ := BookingOf(rec)
	return b.Resource
}

func joinKey(parts ...string) string {
	return strings.Join(parts, "|")
}
