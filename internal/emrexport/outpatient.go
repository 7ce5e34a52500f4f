package emrexport

import (
	"strings"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
)

// ExportTab is the source tab stamped on rows imported from EMR files.
const ExportTab = "emr-export"

var outpatientStatuses = map[string]decode.Status{
	"예약":         decode.StatusBooked,
	"BOOKED":     decode.StatusBooked,
	"접수":         decode.StatusCheckedIn,
	"CHECKED_IN": decode.StatusCheckedIn,
	"완료":         decode.StatusCompleted,
	"COMPLETED":  decode.StatusCompleted,
	"취소":         decode.StatusCancelled,
	"CANCELLED":  decode.StatusCancelled,
	"미방문":        decode.StatusNoShow,
	"NO_SHOW":    decode.StatusNoShow,
	"변경":         decode.StatusChanged,
	"CHANGED":    decode.StatusChanged,
}

// Appointment is one parsed outpatient export row.
type Appointment struct {
	Row              int
	EMRPatientID     string
	PatientName      string
	Date             time.Time
	Start            string
	End              string
	DoctorName       string
	EMRDoctorID      string
	Room             string
	Status           decode.Status
	Note             string
	EMRAppointmentID string
}

// ParseOutpatient reads appointment rows. Row problems are collected; the
// error is reserved for a sheet without a usable header.
func ParseOutpatient(g grid.RawGrid) ([]Appointment, []patient.RowError, error) {
	h, err := detectHeader(g, outpatientHeaders)
	if err != nil {
		return nil, nil, err
	}
	if err := h.requireFields(outpatientRequired); err != nil {
		return nil, nil, err
	}

	var (
		out  []Appointment
		errs []patient.RowError
	)
	for row := h.row + 1; row < len(g); row++ {
		if blankRow(g, row) {
			continue
		}
		line := row + 1
		a := Appointment{Row: line}

		a.EMRPatientID = h.cell(g, row, "emr_patient_id")
		if a.EMRPatientID == "" {
			errs = append(errs, patient.RowError{Row: line, Message: "missing patient number"})
			continue
		}
		a.PatientName = h.cell(g, row, "patient_name")

		date, ok := parseDate(h.cell(g, row, "date"))
		if !ok {
			errs = append(errs, patient.RowError{Row: line, Message: "invalid appointment date"})
			continue
		}
		a.Date = date

		start, ok := parseClock(h.cell(g, row, "start"))
		if !ok {
			errs = append(errs, patient.RowError{Row: line, Message: "invalid start time"})
			continue
		}
		a.Start = start
		if end, ok := parseClock(h.cell(g, row, "end")); ok {
			a.End = end
		} else {
			a.End = decode.AddMinutes(start, decode.DefaultDuration)
		}

		a.Status = normalizeStatus(h.cell(g, row, "status"))
		a.DoctorName = h.cell(g, row, "doctor")
		a.EMRDoctorID = h.cell(g, row, "emr_doctor_id")
		a.Room = h.cell(g, row, "room")
		a.Note = h.cell(g, row, "note")
		a.EMRAppointmentID = h.cell(g, row, "emr_appointment_id")
		out = append(out, a)
	}
	return out, errs, nil
}

func normalizeStatus(text string) decode.Status {
	if s, ok := outpatientStatuses[strings.ToUpper(strings.TrimSpace(text))]; ok {
		return s
	}
	return decode.StatusBooked
}

// Record converts the row to the decoded outpatient form so it can go
// through the same reconciliation as sheet rows.
func (a Appointment) Record() *decode.OutpatientAppointment {
	resource := a.Room
	if resource == "" {
		resource = a.DoctorName
	}
	return &decode.OutpatientAppointment{
		Envelope: decode.Envelope{
			Kind:    grid.KindOutpatient,
			Tab:     ExportTab,
			Date:    a.Date,
			Time:    a.Start,
			RawText: a.rawText(),
			Row:     a.Row - 1,
		},
		Booking: decode.Booking{
			Resource:     resource,
			Patient:      decode.Patient{ExternalID: a.EMRPatientID, RawName: a.PatientName},
			Status:       a.Status,
			DurationMins: minutesBetween(a.Start, a.End),
			EndTime:      a.End,
			Note:         a.Note,
		},
		EMRAppointmentID: a.EMRAppointmentID,
		DoctorName:       a.DoctorName,
	}
}

// rawText is the change-detection form of the row.
func (a Appointment) rawText() string {
	return strings.Join([]string{
		a.EMRPatientID, a.PatientName, a.Date.Format(grid.DateLayout),
		a.Start, a.End, a.DoctorName, a.Room, string(a.Status), a.Note,
	}, "|")
}

func minutesBetween(start, end string) int {
	s, err1 := time.Parse("15:04", start)
	e, err2 := time.Parse("15:04", end)
	if err1 != nil || err2 != nil {
		return 0
	}
	d := int(e.Sub(s).Minutes())
	if d < 0 {
		d += 24 * 60
	}
	return d
}
