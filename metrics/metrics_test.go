package metrics

import (
	"bytes"
	"strings"
	"testing"

	"hosk/enclave"
)

func TestAggregateSumsAcrossEnclaves(t *testing.T) {
	per := []PerEnclave{
		{ID: 0, Results: enclave.Results{Add: 10, Added: 8, Remove: 5, Removed: 4, Contains: 20, Found: 15}},
		{ID: 1, Results: enclave.Results{Add: 6, Added: 5, Remove: 3, Removed: 2, Contains: 12, Found: 9}},
	}
	s := Aggregate(1000, 2, 10000, 42, 50, true, false, 100, per)

	if s.Reads != 32 {
		t.Fatalf("expected Reads=32, got %d", s.Reads)
	}
	if s.Adds != 13 || s.Removes != 6 {
		t.Fatalf("expected Adds=13 Removes=6, got Adds=%d Removes=%d", s.Adds, s.Removes)
	}
	if s.SizeDelta != 7 {
		t.Fatalf("expected SizeDelta=7, got %d", s.SizeDelta)
	}
	if s.ExpectedSize != 107 {
		t.Fatalf("expected ExpectedSize=107, got %d", s.ExpectedSize)
	}
}

func TestReportIncludesPerEnclaveAndTotals(t *testing.T) {
	per := []PerEnclave{
		{ID: 3, Results: enclave.Results{Add: 1, Added: 1, Remove: 0, Removed: 0, Contains: 2, Found: 2}},
	}
	s := Aggregate(500, 1, 1000, 1, 10, false, false, 0, per)
	s.FinalSize = s.ExpectedSize

	var buf bytes.Buffer
	Report(&buf, s)
	out := buf.String()

	if !strings.Contains(out, "Thread 3") {
		t.Fatal("report should list per-enclave thread id")
	}
	if !strings.Contains(out, "Set size") {
		t.Fatal("report should print the set size summary line")
	}
	if !strings.Contains(out, "#txs") {
		t.Fatal("report should print the total transaction rate line")
	}
}

func TestReportJSONRoundTrips(t *testing.T) {
	s := Aggregate(500, 1, 1000, 1, 10, false, false, 0, nil)
	var buf bytes.Buffer
	if err := ReportJSON(&buf, s); err != nil {
		t.Fatalf("ReportJSON should succeed: %v", err)
	}
	if !strings.Contains(buf.String(), "\"duration_ms\"") {
		t.Fatalf("expected JSON output to contain duration_ms field, got %q", buf.String())
	}
}
