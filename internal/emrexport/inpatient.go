package emrexport

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/internal/patient"
)

const (
	maxAgeYears       = 150
	maxAdmitAheadDays = 30
)

// Admission is one parsed inpatient export row.
type Admission struct {
	Row              int
	Patient          patient.Record
	AdmitDate        time.Time
	PlannedDischarge *time.Time
	Doctor           string
	Ward             string
	Room             string
	Bed              string
	Note             string
}

// ParseInpatient reads admission rows. Rows with a blank patient number are
// skipped; other row problems are collected.
func ParseInpatient(g grid.RawGrid) ([]Admission, []patient.RowError, error) {
	h, err := detectHeader(g, inpatientHeaders)
	if err != nil {
		return nil, nil, err
	}
	if err := h.requireFields(inpatientRequired); err != nil {
		return nil, nil, err
	}

	var (
		out  []Admission
		errs []patient.RowError
	)
	for row := h.row + 1; row < len(g); row++ {
		if blankRow(g, row) {
			continue
		}
		line := row + 1
		a := Admission{Row: line}
		var problems []string

		a.Patient.EMRPatientID = h.cell(g, row, "emr_patient_id")
		if a.Patient.EMRPatientID == "" {
			problems = append(problems, "missing patient number")
		}
		a.Patient.Name = h.cell(g, row, "name")
		if a.Patient.Name == "" {
			problems = append(problems, "missing patient name")
		}
		if dob, ok := parseDate(h.cell(g, row, "dob")); ok {
			a.Patient.DOB = dob
		} else {
			problems = append(problems, "invalid date of birth")
		}
		if sex := h.cell(g, row, "sex"); sex != "" {
			a.Patient.Sex = normalizeSex(sex)
		} else {
			problems = append(problems, "missing sex")
		}
		a.Patient.Phone = strings.ReplaceAll(h.cell(g, row, "phone"), "-", "")
		if admit, ok := parseDate(h.cell(g, row, "admit")); ok {
			a.AdmitDate = admit
		} else {
			problems = append(problems, "invalid admit date")
		}
		if d, ok := parseDate(h.cell(g, row, "discharge")); ok {
			a.PlannedDischarge = &d
		}
		a.Doctor = h.cell(g, row, "doctor")
		a.Ward = h.cell(g, row, "ward")
		a.Room = h.cell(g, row, "room")
		a.Bed = h.cell(g, row, "bed")
		a.Note = h.cell(g, row, "note")

		if len(problems) > 0 {
			errs = append(errs, patient.RowError{Row: line, Message: strings.Join(problems, "; ")})
			continue
		}
		out = append(out, a)
	}
	return out, errs, nil
}

func normalizeSex(text string) string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "남", "m", "male", "남자":
		return "M"
	case "여", "f", "female", "여자":
		return "F"
	default:
		return strings.TrimSpace(text)
	}
}

// ValidateAdmissions applies the business rules that need the whole file or
// the current date. It returns the rows that passed.
func ValidateAdmissions(rows []Admission, now time.Time) ([]Admission, []patient.RowError) {
	var (
		valid []Admission
		errs  []patient.RowError
	)
	seen := make(map[string]bool, len(rows))
	for _, a := range rows {
		id := a.Patient.EMRPatientID
		if seen[id] {
			errs = append(errs, patient.RowError{Row: a.Row, Message: fmt.Sprintf("duplicate patient number in file: %s", id)})
			continue
		}
		seen[id] = true

		var problems []string
		age := now.Sub(a.Patient.DOB).Hours() / 24 / 365.25
		if age < 0 || age > maxAgeYears {
			problems = append(problems, fmt.Sprintf("date of birth out of range: %s", a.Patient.DOB.Format(grid.DateLayout)))
		}
		if a.AdmitDate.Sub(now) > maxAdmitAheadDays*24*time.Hour {
			problems = append(problems, fmt.Sprintf("admit date more than %d days ahead: %s", maxAdmitAheadDays, a.AdmitDate.Format(grid.DateLayout)))
		}
		if a.PlannedDischarge != nil && a.PlannedDischarge.Before(a.AdmitDate) {
			problems = append(problems, "planned discharge before admit date")
		}
		if a.Patient.Sex != "M" && a.Patient.Sex != "F" {
			problems = append(problems, fmt.Sprintf("invalid sex: %s", a.Patient.Sex))
		}

		if len(problems) > 0 {
			errs = append(errs, patient.RowError{Row: a.Row, Message: strings.Join(problems, "; ")})
			continue
		}
		valid = append(valid, a)
	}
	return valid, errs
}

// SourceRows adapts admissions for the patient registry.
func SourceRows(rows []Admission) []patient.SourceRow {
	out := make([]patient.SourceRow, 0, len(rows))
	for _, a := range rows {
		out = append(out, patient.SourceRow{Line: a.Row, Patient: a.Patient})
	}
	return out
}
