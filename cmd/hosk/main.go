// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: main.go — benchmark coordinator: flags, topology, phases,
// report
//
// Purpose:
//   - The one executable in this module. Parses CLI flags, discovers the
//     machine's socket/core/SMT layout, builds one enclave per requested
//     thread (at most one per physical core), runs the population ->
//     startup handshake -> timed run ->
//     teardown phases `test.cpp`'s `main()` runs, then reports.
//   - Everything here is orchestration glue: no skip-list algorithm lives
//     in this file, only wiring of the packages that do.
//
// Ground truth: `test.cpp`'s `main()` (flag parsing, sizing, phase
// sequencing, post-stop report) and `main.go`'s phased
// bootstrap -> steady-state structure (debug.DropMessage progress lines
// between phases instead of test.cpp's raw printf).
// ─────────────────────────────────────────────────────────────────────────────

package main

import (
	"flag"
	"math/bits"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"hosk/arena"
	"hosk/barrier"
	"hosk/control"
	"hosk/datalayer"
	"hosk/debug"
	"hosk/enclave"
	"hosk/metrics"
	"hosk/numatopo"
	"hosk/rng"
	"hosk/worker"
)

// Exit codes. 0 is a normal stop. exitPrecondition covers a bad flag or
// a hardware precondition failure (no NUMA, no SMT sibling, allocator
// exhaustion) and is what debug.Fatal always terminates with.
// exitHistoryWriteFail is reserved for tooling built on top of this
// coordinator that wants to distinguish an ambient history-database
// failure from a core precondition failure; the coordinator itself
// treats -history failures as logged-and-non-fatal (see metrics.
// AppendHistory) and never exits non-zero for one on its own.
const (
	exitOK               = 0
	exitPrecondition     = 1
	exitHistoryWriteFail = 2
)

// Default flag values, named the way test.cpp names its DEFAULT_* macros.
const (
	defaultDuration  = 1000 // ms, 0 = until signal
	defaultInitial   = 1024
	defaultThreads   = 4
	defaultRange     = 2048
	defaultSeed      = 0 // 0 = time-based
	defaultUpdatePct = 20
)

// Index-arena and data-arena sizing multipliers. The original scales its
// byte-sized buffers by dat_multiplier=1000/idx_multiplier=3 over raw
// CACHE_LINE_SIZE*num_expected_nodes; this module's arenas are sized in
// elements, not bytes, so the multipliers here play the same
// "comfortably outlive the run's churn" role at a scale appropriate to
// an element count instead of a byte count.
const (
	dataCapMultiplier  = 64
	indexCapMultiplier = 8
	minExpectedNodes   = 64
	opChanCapacity     = 4096
)

func main() {
	cfg := parseFlags()

	layout, err := numatopo.Discover(cfg.smtRequired)
	if err != nil {
		debug.Fatal("hosk", "topology discovery failed: "+err.Error())
	}
	threads := cfg.threads
	if threads > layout.NumCores() {
		debug.DropMessage("hosk", "requested thread count exceeds available physical cores, clamping")
		threads = layout.NumCores()
	}
	if threads < 1 {
		debug.Fatal("hosk", "at least one enclave is required")
	}

	masterSeed := rng.MasterSeed(int64(cfg.seed))
	debug.DropMessage("hosk", "set type     : skip list")
	debug.DropMessage("hosk", "duration     : "+strconv.Itoa(cfg.durationMS))
	debug.DropMessage("hosk", "initial size : "+strconv.Itoa(cfg.initial))
	debug.DropMessage("hosk", "nb threads   : "+strconv.Itoa(threads))
	debug.DropMessage("hosk", "value range  : "+strconv.FormatInt(cfg.rangeN, 10))
	debug.DropMessage("hosk", "update rate  : "+strconv.Itoa(cfg.updatePct))

	sentinelArena := arena.New[datalayer.Node]("hosk-sentinel", 1)
	list := datalayer.NewList(sentinelArena.Alloc())
	runControl := control.New()

	enclaves := buildEnclaves(cfg, threads, layout, list, runControl, masterSeed)

	debug.DropMessage("hosk", "adding "+strconv.Itoa(cfg.initial)+" entries to set")
	lastKey := populate(enclaves, cfg, masterSeed)

	list.ResetLevels()
	resetAndRewarmIndexes(enclaves, cfg.initial, threads)

	debug.DropMessage("hosk", "set size     : "+strconv.Itoa(list.Size()))

	runBarrier := barrier.New(threads + 1)
	startTimedRun(enclaves, cfg, runBarrier, lastKey, masterSeed)

	installSignalHandler()

	runBarrier.Cross()
	debug.DropMessage("hosk", "starting...")
	start := time.Now()
	waitForStopCondition(cfg.durationMS)
	runControl.Shutdown()
	elapsed := time.Since(start)
	debug.DropMessage("hosk", "stopping...")

	per := teardown(enclaves)

	summary := metrics.Aggregate(elapsed.Milliseconds(), threads, cfg.rangeN, masterSeed, cfg.updatePct, cfg.alternate, cfg.effective, cfg.initial, per)
	summary.FinalSize = list.Size()
	metrics.Report(os.Stdout, summary)

	exitCode := exitOK
	if cfg.jsonOut {
		if err := metrics.ReportJSON(os.Stdout, summary); err != nil {
			debug.DropError("hosk: json report", err)
		}
	}
	if cfg.historyPath != "" {
		metrics.AppendHistory(cfg.historyPath, summary)
	}
	os.Exit(exitCode)
}

// ───────────────────────────── flag parsing ─────────────────────────────

type runConfig struct {
	durationMS  int
	initial     int
	threads     int
	rangeN      int64
	seed        int
	updatePct   int
	alternate   bool
	effective   bool
	smtRequired bool
	jsonOut     bool
	historyPath string
}

func parseFlags() runConfig {
	var cfg runConfig
	flag.IntVar(&cfg.durationMS, "d", defaultDuration, "test duration in milliseconds (0 = until signal)")
	flag.IntVar(&cfg.initial, "i", defaultInitial, "number of keys to insert before the timed run")
	flag.IntVar(&cfg.threads, "n", defaultThreads, "number of enclaves (one core each)")
	rangeN := flag.Int64("r", defaultRange, "range of integer keys inserted in the map")
	flag.IntVar(&cfg.seed, "s", defaultSeed, "RNG seed (0 = time-based)")
	flag.IntVar(&cfg.updatePct, "u", defaultUpdatePct, "percentage of operations that are writes")
	flag.BoolVar(&cfg.alternate, "a", false, "consecutive insert/delete target the same key")
	flag.BoolVar(&cfg.effective, "e", false, "report effective (successful-only) update/read rates")
	flag.BoolVar(&cfg.smtRequired, "smt-required", true, "fail fast if a discovered core has no SMT sibling")
	flag.BoolVar(&cfg.jsonOut, "json", false, "also emit the end-of-run report as JSON")
	flag.StringVar(&cfg.historyPath, "history", "", "append the run's summary to a SQLite database at this path")
	flag.Parse()
	cfg.rangeN = *rangeN

	if cfg.durationMS < 0 {
		debug.Fatal("hosk", "-d must be >= 0")
	}
	if cfg.initial < 0 {
		debug.Fatal("hosk", "-i must be >= 0")
	}
	if cfg.threads < 1 {
		debug.Fatal("hosk", "-n must be >= 1")
	}
	if cfg.rangeN <= 0 || cfg.rangeN < int64(cfg.initial) {
		debug.Fatal("hosk", "-r must be > 0 and >= -i")
	}
	if cfg.updatePct < 0 || cfg.updatePct > 100 {
		debug.Fatal("hosk", "-u must be in [0, 100]")
	}
	return cfg
}

// ───────────────────────────── enclave construction ─────────────────────────────

func buildEnclaves(cfg runConfig, threads int, layout *numatopo.Layout, list *datalayer.List, runControl *control.Flags, masterSeed uint64) []*enclave.Enclave {
	numExpected := (cfg.initial / threads) * (100 + cfg.updatePct) / 100
	if numExpected < minExpectedNodes {
		numExpected = minExpectedNodes
	}
	dataCap := numExpected * dataCapMultiplier
	indexCap := numExpected * indexCapMultiplier

	enclaves := make([]*enclave.Enclave, threads)
	for i := 0; i < threads; i++ {
		core := layout.Cores[i%len(layout.Cores)]
		enclaves[i] = enclave.New(enclave.Config{
			ID:         uint32(i),
			AppCPU:     core.Siblings[0],
			HelperCPU:  core.Siblings[1],
			NumaZone:   core.NodeID,
			List:       list,
			Control:    runControl,
			DataCap:    dataCap,
			IndexCap:   indexCap,
			OpChanCap:  opChanCapacity,
			UpdateFreq: 10,
			SleepTime:  0,
			UpdateSeed: rng.DeriveSeed(masterSeed, i+threads),
		})
	}
	return enclaves
}

// ───────────────────────────── population phase ─────────────────────────────

// populate runs every enclave's helper and initial-population workload,
// then returns the last key the final enclave successfully inserted —
// the seed the timed run's "alternate" mode continues from. Mirrors
// test.cpp's population loop: start every helper, start every
// population workload, join each in turn, stop each helper in turn.
func populate(enclaves []*enclave.Enclave, cfg runConfig, masterSeed uint64) uint64 {
	threads := len(enclaves)
	for _, en := range enclaves {
		en.StartHelper(worker.HelperLoop)
	}

	d := cfg.initial / threads
	m := cfg.initial % threads
	lasts := make([]uint64, threads)
	for i, en := range enclaves {
		count := d
		if i < m {
			count = d + 1
		}
		params := worker.PopulateParams{
			Count: count,
			Range: cfg.rangeN,
			Seed:  rng.DeriveSeed(masterSeed, i),
			Last:  &lasts[i],
		}
		en.StartApplication(func(e *enclave.Enclave) {
			worker.InitialPopulate(e, params)
		})
	}

	var lastKey uint64
	for i, en := range enclaves {
		en.JoinApplication()
		lastKey = lasts[i]
	}
	for _, en := range enclaves {
		en.HelperControl.Shutdown()
		en.JoinHelper()
	}
	return lastKey
}

// resetAndRewarmIndexes discards the skewed index every enclave built
// during population, restarts each enclave's helper, and blocks until
// each enclave's index has climbed back to roughly the height a fresh
// helper would settle on for its share of the population — the startup
// handshake test.cpp runs between population and the timed run.
func resetAndRewarmIndexes(enclaves []*enclave.Enclave, initial, threads int) {
	perEnclave := initial / threads
	target := floorLog2(perEnclave) - 1

	for _, en := range enclaves {
		en.ResetIndexLayer()
		en.RestartHelperControl()
		en.StartHelper(worker.HelperLoop)
	}
	for _, en := range enclaves {
		for target > 0 && int(en.Index.Level()) < target {
			time.Sleep(time.Microsecond)
		}
	}
}

func floorLog2(n int) int {
	if n <= 0 {
		return -1
	}
	return bits.Len(uint(n)) - 1
}

// ───────────────────────────── timed run phase ─────────────────────────────

func startTimedRun(enclaves []*enclave.Enclave, cfg runConfig, b *barrier.Barrier, lastKey uint64, masterSeed uint64) {
	threads := len(enclaves)
	for i, en := range enclaves {
		params := worker.AppParams{
			First:     lastKey,
			Range:     cfg.rangeN,
			UpdatePct: cfg.updatePct,
			Alternate: cfg.alternate,
			Effective: cfg.effective,
			Seed:      rng.DeriveSeed(masterSeed, 2*threads+i),
			Barrier:   b,
		}
		en.StartApplication(func(e *enclave.Enclave) {
			worker.ApplicationLoop(e, params)
		})
	}
}

// waitForStopCondition blocks for the timed window (durationMS > 0) or
// until a shutdown signal arrives (durationMS == 0), then returns. It
// never sets the stop flag itself: like test.cpp's main(), the caller
// sets it exactly once, immediately after this returns, regardless of
// which condition woke it. installSignalHandler's own handler only logs
// the signal, matching catcher()'s print-only behavior in the original.
func waitForStopCondition(durationMS int) {
	if durationMS > 0 {
		time.Sleep(time.Duration(durationMS) * time.Millisecond)
		return
	}
	block := make(chan os.Signal, 1)
	signal.Notify(block, syscall.SIGINT, syscall.SIGTERM)
	<-block
}

// installSignalHandler logs SIGHUP/SIGTERM the way the original's
// catcher() does; it does not itself request a shutdown; see
// waitForStopCondition.
func installSignalHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGTERM)
	go func() {
		for sig := range sigChan {
			debug.DropMessage("hosk", "caught signal "+sig.String())
		}
	}()
}

// ───────────────────────────── teardown & report ─────────────────────────────

func teardown(enclaves []*enclave.Enclave) []metrics.PerEnclave {
	per := make([]metrics.PerEnclave, len(enclaves))
	for i, en := range enclaves {
		en.JoinApplication()
		en.HelperControl.Shutdown()
		en.JoinHelper()
		per[i] = metrics.PerEnclave{ID: en.ID, Results: en.Results}
	}
	return per
}

