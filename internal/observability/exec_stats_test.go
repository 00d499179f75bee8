package observability

import (
	"sync"
	"testing"
	"time"
)

// TestRecordConcurrent tests concurrent Record calls for race conditions.
func TestRecordConcurrent(t *testing.T) {
	s := NewExecStats(time.Hour)
	var wg sync.WaitGroup
	numGoroutines := 10
	recordsPerGoroutine := 100

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				s.Record("execute", "PeriodicValues", "Success", time.Millisecond)
				s.Record("schedule", "", "Approved", time.Millisecond)
			}
		}()
	}

	wg.Wait()

	expected := int64(numGoroutines * recordsPerGoroutine)
	for _, name := range []string{"execute", "schedule"} {
		c, ok := s.Entry(name)
		if !ok {
			t.Fatalf("missing counter %s", name)
		}
		if c.Count != expected {
			t.Errorf("expected count %d for %s, got %d", expected, name, c.Count)
		}
		if c.Total != time.Duration(expected)*time.Millisecond {
			t.Errorf("total for %s = %v", name, c.Total)
		}
	}

	snap := s.Snapshot()
	if len(snap.ExtractionTypes) != 1 || snap.ExtractionTypes[0].Name != "PeriodicValues" {
		t.Errorf("extraction types = %+v", snap.ExtractionTypes)
	}
}

// TestSnapshotOrdering tests that Snapshot sorts by count.
func TestSnapshotOrdering(t *testing.T) {
	s := NewExecStats(time.Hour)

	for i := 0; i < 3; i++ {
		s.Record("hello", "", "ok", 0)
	}
	for i := 0; i < 7; i++ {
		s.Record("execute", "PeriodicStatistics", "Success", 0)
	}
	s.Record("schedule", "", "Denied", 0)

	snap := s.Snapshot()
	want := []string{"execute", "hello", "schedule"}
	if len(snap.Entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(snap.Entries), len(want))
	}
	for i, name := range want {
		if snap.Entries[i].Name != name {
			t.Errorf("entry %d = %s, want %s", i, snap.Entries[i].Name, name)
		}
	}
}

// TestOutcomes tests that each outcome is counted separately.
func TestOutcomes(t *testing.T) {
	s := NewExecStats(time.Hour)
	s.Record("execute", "PeriodicValues", "Success", 0)
	s.Record("execute", "PeriodicValues", "Success", 0)
	s.Record("execute", "RawValues", "UNSUPPORTED_CONVERSION", 0)
	s.Record("execute", "PeriodicValues", "Missing input data", 0)

	c, _ := s.Entry("execute")
	if c.Outcomes["Success"] != 2 || c.Outcomes["UNSUPPORTED_CONVERSION"] != 1 || c.Outcomes["Missing input data"] != 1 {
		t.Errorf("outcomes = %v", c.Outcomes)
	}

	// Copies must not alias the tracker.
	c.Outcomes["Success"] = 100
	again, _ := s.Entry("execute")
	if again.Outcomes["Success"] != 2 {
		t.Error("Entry returned a shared map")
	}
}

// TestPruneRemovesOldEntries tests that idle counters are dropped.
func TestPruneRemovesOldEntries(t *testing.T) {
	window := 100 * time.Millisecond
	s := NewExecStats(window)

	s.Record("execute", "PeriodicValues", "Success", 0)
	if len(s.Snapshot().Entries) != 1 {
		t.Fatal("expected 1 entry before prune")
	}

	time.Sleep(window + 50*time.Millisecond)
	s.Prune()

	snap := s.Snapshot()
	if len(snap.Entries) != 0 || len(snap.ExtractionTypes) != 0 {
		t.Errorf("expected empty snapshot after prune, got %+v", snap)
	}
}

// TestPruneWithoutWindow tests that a zero window keeps everything.
func TestPruneWithoutWindow(t *testing.T) {
	s := NewExecStats(0)
	s.Record("execute", "", "Success", 0)
	s.Prune()
	if _, ok := s.Entry("execute"); !ok {
		t.Error("entry should survive prune with no window")
	}
}

// TestEntryMissing tests lookups of unknown entry points.
func TestEntryMissing(t *testing.T) {
	s := NewExecStats(time.Hour)
	if _, ok := s.Entry("absent"); ok {
		t.Error("expected no counter")
	}
	if snap := s.Snapshot(); len(snap.Entries) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}
