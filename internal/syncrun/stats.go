package syncrun

import (
	"sort"

	"github.com/wolfman30/clinic-sheet-sync/internal/decode"
	"github.com/wolfman30/clinic-sheet-sync/internal/reconcile"
	"github.com/wolfman30/clinic-sheet-sync/internal/store"
)

// batchStats fills the decode-side counters: empty slots, cell errors, the
// date range and the per-date record count.
func batchStats(batch *decode.Batch) store.RunStats {
	stats := store.RunStats{EmptySlots: batch.EmptySlots}
	for _, ce := range batch.Errors {
		stats.CellErrors = append(stats.CellErrors, *ce)
	}

	perDate := make(map[string]int)
	var dates []string
	for _, rec := range batch.Records {
		d := rec.Base().DateString()
		if d == "" {
			continue
		}
		if perDate[d] == 0 {
			dates = append(dates, d)
		}
		perDate[d]++
	}
	if len(dates) > 0 {
		sort.Strings(dates)
		stats.DateFrom = dates[0]
		stats.DateTo = dates[len(dates)-1]
		stats.PerDate = perDate
	}
	return stats
}

func applyReconcile(stats *store.RunStats, rep reconcile.Report) {
	stats.Processed = rep.Stats.Processed
	stats.Created = rep.Stats.Created
	stats.Updated = rep.Stats.Updated
	stats.Skipped = rep.Stats.Skipped
	stats.Failed = rep.Stats.Failed
	stats.Cancelled = rep.Stats.Cancelled
	for _, f := range rep.Failures() {
		stats.RecordFailures = append(stats.RecordFailures, f.Err.Error())
	}
}
