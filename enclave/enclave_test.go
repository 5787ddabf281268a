package enclave

import (
	"testing"
	"time"

	"hosk/arena"
	"hosk/control"
	"hosk/datalayer"
)

func newTestEnclave(t *testing.T) *Enclave {
	t.Helper()
	sentinelArn := arena.New[datalayer.Node]("test-sentinel", 1)
	list := datalayer.NewList(sentinelArn.Alloc())
	return New(Config{
		ID:         0,
		AppCPU:     0,
		HelperCPU:  0,
		NumaZone:   0,
		List:       list,
		Control:    control.New(),
		DataCap:    256,
		IndexCap:   256,
		OpChanCap:  64,
		UpdateFreq: 10,
		SleepTime:  0,
		UpdateSeed: 7,
	})
}

func TestNewBuildsIndependentHelperAndRunControl(t *testing.T) {
	e := newTestEnclave(t)
	if e.Control == nil || e.HelperControl == nil {
		t.Fatal("New should populate both Control and HelperControl")
	}
	if e.Control == e.HelperControl {
		t.Fatal("Control and HelperControl must be independent flags")
	}
	if e.Control.Stopped() || e.HelperControl.Stopped() {
		t.Fatal("a freshly built enclave should not start stopped")
	}
}

func TestStartJoinApplicationRunsLoopToCompletion(t *testing.T) {
	e := newTestEnclave(t)
	ran := false
	e.StartApplication(func(en *Enclave) {
		ran = true
	})
	e.JoinApplication()
	if !ran {
		t.Fatal("StartApplication should have run the supplied loop")
	}
}

func TestStartJoinHelperStopsOnOwnControl(t *testing.T) {
	e := newTestEnclave(t)
	done := make(chan struct{})
	e.StartHelper(func(en *Enclave) {
		for !en.HelperControl.Stopped() {
		}
		close(done)
	})

	time.Sleep(10 * time.Millisecond)
	e.Control.Shutdown() // the run-wide flag must NOT stop the helper
	select {
	case <-done:
		t.Fatal("helper stopped on the run-wide Control flag, not its own")
	case <-time.After(30 * time.Millisecond):
	}

	e.HelperControl.Shutdown()
	e.JoinHelper()
	select {
	case <-done:
	default:
		t.Fatal("helper should have stopped once its own HelperControl was shut down")
	}
}

func TestResetIndexLayerRebuildsEmptyIndexFromSameSentinel(t *testing.T) {
	e := newTestEnclave(t)
	original := e.Index
	result, _ := e.List.Do(e.List.Sentinel(), 5, 5, datalayer.OpInsert, e.DataArena, e.ID)
	if result != 1 {
		t.Fatal("setup insert should have succeeded")
	}

	e.ResetIndexLayer()

	if e.Index == original {
		t.Fatal("ResetIndexLayer should replace the Index with a fresh one")
	}
	if e.Index.Level() != 1 {
		t.Fatalf("a freshly rebuilt index should start at level 1, got %d", e.Index.Level())
	}
	if e.MnodeArena.Used() != 1 || e.InodeArena.Used() != 1 {
		t.Fatalf("rebuilding should only re-allocate the sentinel pair, got mnode=%d inode=%d",
			e.MnodeArena.Used(), e.InodeArena.Used())
	}
}

func TestRestartHelperControlUnstopsAFreshFlag(t *testing.T) {
	e := newTestEnclave(t)
	e.HelperControl.Shutdown()
	if !e.HelperControl.Stopped() {
		t.Fatal("setup: expected HelperControl to be stopped")
	}

	e.RestartHelperControl()
	if e.HelperControl.Stopped() {
		t.Fatal("RestartHelperControl should replace it with an un-stopped flag")
	}
}
