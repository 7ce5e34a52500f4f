// Package emrexport imports EMR xlsx exports: outpatient appointment lists
// and inpatient admission lists.
package emrexport

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

const (
	headerScanRows   = 10
	minHeaderMatches = 3
)

// ErrNoHeader is returned when no row in the scan window looks like a header.
var ErrNoHeader = errors.New("emrexport: header row not found")

var outpatientHeaders = map[string]string{
	"환자번호":    "emr_patient_id",
	"환자ID":    "emr_patient_id",
	"EMR_ID":  "emr_patient_id",
	"환자명":     "patient_name",
	"이름":      "patient_name",
	"예약일":     "date",
	"예약일자":    "date",
	"진료일":     "date",
	"시작시간":    "start",
	"예약시간":    "start",
	"시작":      "start",
	"종료시간":    "end",
	"종료":      "end",
	"담당의":     "doctor",
	"담당의사":    "doctor",
	"의사":      "doctor",
	"의사ID":    "emr_doctor_id",
	"EMR의사ID": "emr_doctor_id",
	"진료실":     "room",
	"진료실명":    "room",
	"예약상태":    "status",
	"상태":      "status",
	"비고":      "note",
	"메모":      "note",
	"EMR예약ID": "emr_appointment_id",
	"예약번호":    "emr_appointment_id",
}

var outpatientRequired = []string{"emr_patient_id", "patient_name", "date", "start"}

var inpatientHeaders = map[string]string{
	"환자번호":  "emr_patient_id",
	"환자ID":  "emr_patient_id",
	"EMR_ID": "emr_patient_id",
	"환자명":   "name",
	"이름":    "name",
	"생년월일":  "dob",
	"성별":    "sex",
	"연락처":   "phone",
	"전화번호":  "phone",
	"입원일":   "admit",
	"입원일자":  "admit",
	"퇴원예정일": "discharge",
	"담당의":   "doctor",
	"담당의사":  "doctor",
	"병동":    "ward",
	"호실":    "room",
	"베드":    "bed",
	"침상":    "bed",
	"상태":    "status",
	"비고":    "note",
}

var inpatientRequired = []string{"emr_patient_id", "name", "dob", "sex", "admit"}

// header maps internal field names to column indexes.
type header struct {
	row  int
	cols map[string]int
}

func (h header) cell(g grid.RawGrid, row int, field string) string {
	col, ok := h.cols[field]
	if !ok {
		return ""
	}
	return strings.TrimSpace(g.Cell(row, col))
}

// detectHeader picks the first row within the scan window that names at
// least three known fields. The first column wins for repeated fields.
func detectHeader(g grid.RawGrid, aliases map[string]string) (header, error) {
	for row := 0; row < headerScanRows && row < len(g); row++ {
		cols := make(map[string]int)
		for col := 0; col < g.Width(row); col++ {
			field, ok := aliases[strings.TrimSpace(g.Cell(row, col))]
			if !ok {
				continue
			}
			if _, seen := cols[field]; !seen {
				cols[field] = col
			}
		}
		if len(cols) >= minHeaderMatches {
			return header{row: row, cols: cols}, nil
		}
	}
	return header{}, ErrNoHeader
}

func (h header) requireFields(fields []string) error {
	var missing []string
	for _, f := range fields {
		if _, ok := h.cols[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("emrexport: missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

func blankRow(g grid.RawGrid, row int) bool {
	for col := 0; col < g.Width(row); col++ {
		if strings.TrimSpace(g.Cell(row, col)) != "" {
			return false
		}
	}
	return true
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006.01.02", "20060102"}

// parseDate reads an export date. A trailing time part is ignored.
func parseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, " T"); i > 0 {
		text = text[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var clockLayouts = []string{"15:04:05", "15:04", "1504"}

// parseClock reads an export time into HH:MM.
func parseClock(text string) (string, bool) {
	text = strings.TrimSpace(text)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t.Format("15:04"), true
		}
	}
	return "", false
}
