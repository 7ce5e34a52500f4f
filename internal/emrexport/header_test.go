package emrexport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

func TestDetectHeader_SkipsTitleRows(t *testing.T) {
	g := grid.RawGrid{
		{"외래 예약 목록"},
		{"출력일: 2025-03-01"},
		{"환자번호", "환자명", "예약일", "시작시간", "환자ID"},
	}
	h, err := detectHeader(g, outpatientHeaders)
	require.NoError(t, err)
	assert.Equal(t, 2, h.row)
	assert.Equal(t, 0, h.cols["emr_patient_id"], "first matching column wins")
	assert.Equal(t, 3, h.cols["start"])
}

func TestDetectHeader_NeedsThreeMatches(t *testing.T) {
	g := grid.RawGrid{{"환자번호", "환자명", "무엇"}}
	_, err := detectHeader(g, outpatientHeaders)
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestDetectHeader_OnlyScansWindow(t *testing.T) {
	g := make(grid.RawGrid, headerScanRows)
	g = append(g, []string{"환자번호", "환자명", "예약일", "시작시간"})
	_, err := detectHeader(g, outpatientHeaders)
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestRequireFields_ListsMissing(t *testing.T) {
	h := header{cols: map[string]int{"emr_patient_id": 0, "patient_name": 1, "doctor": 2}}
	err := h.requireFields(outpatientRequired)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "date, start")
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2025-03-03", "2025/03/03", "2025.03.03", "20250303", "2025-03-03 00:00:00"} {
		d, ok := parseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, "2025-03-03", d.Format("2006-01-02"), in)
	}
	_, ok := parseDate("3월 3일")
	assert.False(t, ok)
}

func TestParseClock(t *testing.T) {
	cases := map[string]string{"09:30": "09:30", "9:30": "09:30", "14:05:00": "14:05", "0915": "09:15"}
	for in, want := range cases {
		got, ok := parseClock(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parseClock("오전")
	assert.False(t, ok)
}
