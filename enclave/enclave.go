// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: enclave.go — per-core runtime pairing an application and
// helper goroutine over one enclave's private arenas and index
//
// Purpose:
//   - Bundles everything one core's application/helper pair needs:
//     its slice of the shared data-layer chain, its own three arenas,
//     its private index, its op channel, and the CPU/NUMA placement
//     both goroutines pin themselves to.
//   - Owns the start/stop lifecycle pthread_create/pthread_join
//     covered in the original: Start launches a goroutine locked to
//     an OS thread and pinned to the given CPU, Join blocks until it
//     returns.
//
// Ground truth: enclave.h/enclave.cpp's enclave class, generalized
// from pthread handles to goroutines + done channels the way
// ring24/pinned_consumer.go pins a consumer goroutine to a core.
// ─────────────────────────────────────────────────────────────────────────────

package enclave

import (
	"runtime"

	"hosk/arena"
	"hosk/control"
	"hosk/datalayer"
	"hosk/debug"
	"hosk/index"
	"hosk/numatopo"
	"hosk/opchan"
)

// Results mirrors app_res: the per-enclave operation tally an
// application goroutine accumulates over its run and hands back at
// Join time.
type Results struct {
	Add      uint64
	Added    uint64
	Remove   uint64
	Removed  uint64
	Contains uint64
	Found    uint64
}

// Enclave is one core's application/helper pair and everything private
// to it. List is the one piece of shared state: the globally visible
// data-layer chain every enclave traverses.
type Enclave struct {
	ID        uint32
	AppCPU    int
	HelperCPU int
	NumaZone  int

	List  *datalayer.List
	Index *index.Index
	Ops   *opchan.Ring

	DataArena  *arena.Arena[datalayer.Node]
	MnodeArena *arena.Arena[Mnode]
	InodeArena *arena.Arena[Inode]

	// Control is the run-wide stop flag every enclave's application
	// goroutine shares; Shutdown on it ends the timed run for everyone
	// at once.
	Control *control.Flags
	// HelperControl is this enclave's own stop flag, distinct from
	// Control: the coordinator stops and restarts a single enclave's
	// helper goroutine (population handshake, index reset) without
	// touching any other enclave or the run-wide application stop.
	HelperControl *control.Flags

	UpdateFreq int    // percent chance per helper loop of a full index maintenance pass
	SleepTime  int    // microseconds the helper sleeps between drain cycles
	UpdateSeed uint64 // seed for the helper's own update-frequency draws

	NumPopulated int

	Results Results

	appDone    chan struct{}
	helperDone chan struct{}
}

// Mnode and Inode are re-exported from the index package purely so
// callers constructing an Enclave's arenas don't need a second import
// just to name the element type.
type (
	Mnode = index.Mnode
	Inode = index.Inode
)

// Config is everything New needs to assemble one enclave.
type Config struct {
	ID         uint32
	AppCPU     int
	HelperCPU  int
	NumaZone   int
	List       *datalayer.List
	Control    *control.Flags
	DataCap    int
	IndexCap   int
	OpChanCap  int
	UpdateFreq int
	SleepTime  int
	UpdateSeed uint64
}

// New allocates one enclave's arenas, op channel, and private index.
// cfg.NumaZone is recorded on the Enclave but not used for allocation:
// the arenas are plain anonymous mappings (see numatopo.AllocPages). The data-layer
// sentinel the index mirrors is list.Sentinel(): every enclave starts
// its own index from the same global starting point.
func New(cfg Config) *Enclave {
	if cfg.List == nil {
		debug.Fatal("enclave", "New called with a nil data-layer list")
	}

	dataArn := arena.New[datalayer.Node]("enclave-data", cfg.DataCap)
	mnodeArn := arena.New[Mnode]("enclave-mnode", cfg.IndexCap)
	inodeArn := arena.New[Inode]("enclave-inode", cfg.IndexCap)

	return &Enclave{
		ID:         cfg.ID,
		AppCPU:     cfg.AppCPU,
		HelperCPU:  cfg.HelperCPU,
		NumaZone:   cfg.NumaZone,
		List:       cfg.List,
		Index:      index.New(cfg.List.Sentinel(), mnodeArn, inodeArn),
		Ops:        opchan.New(cfg.OpChanCap),
		DataArena:  dataArn,
		MnodeArena: mnodeArn,
		InodeArena: inodeArn,
		Control:       cfg.Control,
		HelperControl: control.New(),
		UpdateFreq: cfg.UpdateFreq,
		SleepTime:  cfg.SleepTime,
		UpdateSeed: cfg.UpdateSeed,
	}
}

// ResetIndexLayer discards the private index built so far and rebuilds
// an empty one from the same data-layer sentinel, rewinding (not
// releasing) both index arenas. The coordinator calls this once between
// the population phase and the timed run, discarding the skewed index
// population leaves behind before the helper rebuilds it from a clean
// intermediate chain.
func (e *Enclave) ResetIndexLayer() {
	e.MnodeArena.ResetCursor()
	e.InodeArena.ResetCursor()
	e.Index = index.New(e.List.Sentinel(), e.MnodeArena, e.InodeArena)
}

// RestartHelperControl replaces HelperControl with a fresh, un-stopped
// Flags. The coordinator calls this before re-starting a helper goroutine
// that a prior HelperControl.Shutdown/JoinHelper round already stopped, since a
// stopped Flags never un-stops itself.
func (e *Enclave) RestartHelperControl() {
	e.HelperControl = control.New()
}

// StartApplication launches loop as this enclave's application
// goroutine, locked to an OS thread pinned to AppCPU.
func (e *Enclave) StartApplication(loop func(*Enclave)) {
	e.appDone = make(chan struct{})
	go func() {
		defer close(e.appDone)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := numatopo.PinCurrentThread(e.AppCPU); err != nil {
			debug.DropError("enclave: application pin", err)
		}
		loop(e)
	}()
}

// JoinApplication blocks until the most recent application goroutine
// started by StartApplication returns. The coordinator calls
// StartApplication/JoinApplication once per phase (population, then
// the timed run), reusing the same enclave both times.
func (e *Enclave) JoinApplication() {
	if e.appDone != nil {
		<-e.appDone
	}
}

// StartHelper launches loop as this enclave's helper goroutine, locked
// to an OS thread pinned to HelperCPU.
func (e *Enclave) StartHelper(loop func(*Enclave)) {
	e.helperDone = make(chan struct{})
	go func() {
		defer close(e.helperDone)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if err := numatopo.PinCurrentThread(e.HelperCPU); err != nil {
			debug.DropError("enclave: helper pin", err)
		}
		loop(e)
	}()
}

// JoinHelper blocks until the helper goroutine started by StartHelper
// returns.
func (e *Enclave) JoinHelper() {
	if e.helperDone != nil {
		<-e.helperDone
	}
}
