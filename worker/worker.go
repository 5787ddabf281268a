// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: worker.go — application and helper loop bodies
//
// Purpose:
//   - ApplicationLoop and InitialPopulate are the two workloads an
//     enclave's application goroutine runs, one per phase (initial
//     population, then the timed benchmark run).
//   - HelperLoop is the one workload an enclave's helper goroutine
//     runs for the whole run: drain the op channel into the private
//     index, then periodically fold that into the raised levels.
//
// Ground truth: application.cpp's application_loop/initial_populate/
// sl_do_operation/update_results/get_unext, helper.cpp's helper_loop.
// ─────────────────────────────────────────────────────────────────────────────

package worker

import (
	"time"

	"hosk/barrier"
	"hosk/datalayer"
	"hosk/enclave"
	"hosk/rng"
)

// AppParams configures one application goroutine's workload mix for
// the timed run phase. Mirrors app_param.
type AppParams struct {
	First     uint64
	Range     int64
	UpdatePct int  // 0-100: percent chance a draw is a write instead of a read
	Alternate bool // alternate insert/delete on the same key instead of drawing a fresh one
	Effective bool // bias unext off the observed add/remove success ratio instead of a fresh coin flip
	Seed      uint64
	Barrier   *barrier.Barrier
}

// PopulateParams configures one application goroutine's initial
// population workload. Last receives the final key that population
// inserted, the way the original reports *params->last back through
// populate_end().
type PopulateParams struct {
	Count int
	Range int64
	Seed  uint64
	Last  *uint64
}

// doOperation performs one data-layer operation via e's private index
// for an entry point and e's shared data-layer list for the walk
// itself. Mirrors sl_do_operation.
func doOperation(e *enclave.Enclave, key uint64, otype datalayer.OpType) (int, *datalayer.Node) {
	entry := e.Index.Lookup(key)
	return e.List.Do(entry, key, key, otype, e.DataArena, e.ID)
}

// updateResults folds one operation's outcome into res and returns the
// new value of "last" (the most recently successfully-inserted key, or
// -1 once it has been consumed by a matching delete). Mirrors
// update_results.
func updateResults(otype datalayer.OpType, res *enclave.Results, result int, key, last int64, alternate bool) int64 {
	switch otype {
	case datalayer.OpContains:
		res.Contains++
		if result == 1 {
			res.Found++
		}
	case datalayer.OpInsert:
		res.Add++
		if result == 1 {
			res.Added++
			last = key
		}
	case datalayer.OpDelete:
		res.Remove++
		if alternate {
			last = -1
		}
		if result == 1 {
			res.Removed++
			last = -1
		}
	}
	return last
}

// nextIsUpdate decides whether the next operation is a write. Mirrors
// get_unext.
func nextIsUpdate(p AppParams, res *enclave.Results, r *rng.State) bool {
	if p.Effective {
		return 100*(res.Added+res.Removed) < uint64(p.UpdatePct)*(res.Add+res.Remove+res.Contains)
	}
	return r.Percent(p.UpdatePct)
}

// ApplicationLoop runs the timed-benchmark workload mix against e
// until the run-wide stop flag is set. Crosses p.Barrier once, right
// after pinning, so every enclave's application goroutine starts its
// timed window together.
func ApplicationLoop(e *enclave.Enclave, p AppParams) {
	r := rng.New(p.Seed)
	var last int64 = -1
	var key uint64

	p.Barrier.Cross()
	unext := nextIsUpdate(p, &e.Results, r)

	for !e.Control.Stopped() {
		var otype datalayer.OpType
		switch {
		case unext && last < 0:
			key = uint64(r.Range(p.Range))
			otype = datalayer.OpInsert
		case unext:
			otype = datalayer.OpDelete
			if p.Alternate {
				key = uint64(last)
			} else {
				key = uint64(r.Range(p.Range))
			}
		case p.Alternate && p.UpdatePct == 0:
			otype = datalayer.OpContains
			if last < 0 {
				key = p.First
				last = int64(key)
			} else {
				key = uint64(r.Range(p.Range))
				last = -1
			}
		case p.Alternate:
			otype = datalayer.OpContains
			if last < 0 {
				key = uint64(r.Range(p.Range))
			} else {
				key = uint64(last)
			}
		default:
			otype = datalayer.OpContains
			key = uint64(r.Range(p.Range))
		}

		result, node := doOperation(e, key, otype)
		last = updateResults(otype, &e.Results, result, int64(key), last, p.Alternate)
		if result == 1 && otype != datalayer.OpContains {
			var published *datalayer.Node
			if otype == datalayer.OpInsert {
				published = node
			}
			for !e.Ops.Push(key, published) {
				if e.Control.Stopped() {
					return
				}
			}
		}
		unext = nextIsUpdate(p, &e.Results, r)
	}
}

// InitialPopulate inserts p.Count distinct-draw keys into e before the
// timed run begins. Mirrors initial_populate.
func InitialPopulate(e *enclave.Enclave, p PopulateParams) {
	r := rng.New(p.Seed)
	for e.NumPopulated < p.Count {
		key := uint64(r.Range(p.Range))
		result, node := doOperation(e, key, datalayer.OpInsert)
		if result == 1 {
			e.NumPopulated++
			if p.Last != nil {
				*p.Last = key
			}
			for !e.Ops.Push(key, node) {
			}
		}
	}
}

// HelperLoop drains e's op channel into its private index and
// periodically runs a full maintenance pass, until e's own
// HelperControl is stopped. This is deliberately e.HelperControl, not
// the run-wide e.Control: the coordinator starts and stops a single
// enclave's helper independently of every other enclave's during the
// population handshake, matching the original's per-enclave start_helper/
// stop_helper against the one shared application stop flag. A SleepTime
// of zero means run a maintenance pass every cycle instead of rolling
// dice on UpdateFreq — the original's update_all shortcut for
// single-shot/debug runs.
func HelperLoop(e *enclave.Enclave) {
	updateAll := e.SleepTime == 0
	r := rng.New(e.UpdateSeed)

	for {
		if e.HelperControl.Stopped() {
			return
		}
		if e.SleepTime > 0 {
			time.Sleep(time.Duration(e.SleepTime) * time.Microsecond)
		}

		for {
			op, ok := e.Ops.Pop()
			if !ok {
				break
			}
			e.Index.Apply(op)
		}

		if updateAll || r.Percent(e.UpdateFreq) {
			e.Index.MaintenanceTick()
		}
	}
}
