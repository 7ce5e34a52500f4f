// Package fingerprint hashes the decoded content of a tab so unchanged input
// can be recognised across runs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
)

// Of returns the hex SHA-256 of a batch. Slot kinds hash one canonical line
// per record; ward tabs hash bed plus canonical text of every non-empty cell.
// Lines are sorted, so row and column order never changes the result.
func Of(batch *decode.Batch) string {
	if batch == nil {
		return Lines(nil)
	}
	var lines []string
	if batch.Kind == grid.KindWard {
		lines = make([]string, 0, len(batch.Cells))
		for _, c := range batch.Cells {
			lines = append(lines, c.Resource+"|"+decode.Canonical(c.Text))
		}
	} else {
		lines = make([]string, 0, len(batch.Records))
		for _, rec := range batch.Records {
			lines = append(lines, RecordLine(rec))
		}
	}
	return Lines(lines)
}

// RecordLine is the canonical form of one record.
func RecordLine(rec decode.Record) string {
	env := rec.Base()
	line := ""
	if w, ok := rec.(*decode.WardAdmissionLine); ok {
		line = strconv.Itoa(w.LineIndex)
	}
	return strings.Join([]string{
		string(env.Kind),
		env.DateString(),
		env.Time,
		decode.ResourceOf(rec),
		line,
		decode.Canonical(env.RawText),
	}, "|")
}

// Lines sorts and hashes prepared lines.
func Lines(lines []string) string {
	sorted := append([]string(nil), lines...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}
