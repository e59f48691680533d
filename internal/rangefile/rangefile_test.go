package rangefile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllocateExclusiveAndDisjoint(t *testing.T) {
	rf := New(100, 25)
	dest := filepath.Join(t.TempDir(), "out.bin")

	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	seen := map[int64]bool{}
	for i := 0; i < 4; i++ {
		iv, ok := rf.Allocate()
		if !ok {
			t.Fatalf("allocate %d: expected an interval", i)
		}

		for b := iv.Start; b <= iv.End; b++ {
			if seen[b] {
				t.Fatalf("byte %d allocated twice", b)
			}
			seen[b] = true
		}
	}

	if _, ok := rf.Allocate(); ok {
		t.Fatalf("expected no more intervals to allocate")
	}

	if len(seen) != 100 {
		t.Fatalf("allocated %d bytes total, want 100", len(seen))
	}
}

func TestFillDeallocateFilledGoesToFinished(t *testing.T) {
	rf := New(10, 10)
	dest := filepath.Join(t.TempDir(), "out.bin")

	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	iv, ok := rf.Allocate()
	if !ok {
		t.Fatal("expected an interval")
	}

	updated, err := rf.Fill(iv, []byte("0123456789"), 10)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}

	if !rf.Deallocate(updated) {
		t.Fatal("deallocate should succeed")
	}

	if !rf.IsFull() {
		t.Fatal("expected file to be full after filling its only interval")
	}
}

func TestDeallocatePendingReturnsToAvailable(t *testing.T) {
	rf := New(10, 10)
	dest := filepath.Join(t.TempDir(), "out.bin")

	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	iv, _ := rf.Allocate()

	if !rf.Deallocate(iv) {
		t.Fatal("deallocate should succeed")
	}

	again, ok := rf.Allocate()
	if !ok {
		t.Fatal("expected the interval to be allocatable again")
	}

	if again.Start != iv.Start || again.End != iv.End {
		t.Fatalf("got %v, want same bounds as %v", again, iv)
	}
}

func TestDeallocatePartialSplitsIntoFinishedAndAvailable(t *testing.T) {
	rf := New(10, 10)
	dest := filepath.Join(t.TempDir(), "out.bin")

	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	iv, _ := rf.Allocate()

	updated, err := rf.Fill(iv, []byte("01234"), 5)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}

	if !rf.Deallocate(updated) {
		t.Fatal("deallocate should succeed")
	}

	rest, ok := rf.Allocate()
	if !ok {
		t.Fatal("expected the unfilled tail to be allocatable")
	}

	if rest.Start != 5 || rest.End != 9 {
		t.Fatalf("tail = %v, want [5,9]", rest)
	}

	if rf.Processed() != 5 {
		t.Fatalf("processed = %d, want 5", rf.Processed())
	}
}

func TestDumpAndReopenRestoresAvailableAndFinished(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	rf := New(20, 10)
	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	first, _ := rf.Allocate()
	updated, err := rf.Fill(first, make([]byte, 10), 10)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}

	if !rf.Deallocate(updated) {
		t.Fatal("deallocate should succeed")
	}

	if err := rf.Dump(); err != nil {
		t.Fatalf("dump: %v", err)
	}

	if err := rf.Close(false); err != nil {
		t.Fatalf("close: %v", err)
	}

	rf2 := New(20, 10)
	if err := rf2.Open(dest); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if rf2.Processed() != 10 {
		t.Fatalf("processed after reopen = %d, want 10", rf2.Processed())
	}

	iv, ok := rf2.Allocate()
	if !ok {
		t.Fatal("expected the remaining half to be allocatable after restore")
	}

	if iv.Start != 10 || iv.End != 19 {
		t.Fatalf("restored available interval = %v, want [10,19]", iv)
	}
}

func TestReopenWithInFlightAllocationDiscardsReservedBytes(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	rf := New(20, 10)
	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	iv, _ := rf.Allocate()

	if _, err := rf.Fill(iv, make([]byte, 5), 5); err != nil {
		t.Fatalf("fill: %v", err)
	}

	// Crash: dump while the interval is still allocated (Pending/Partial),
	// then "restart" without deallocating or closing cleanly.
	if err := rf.Dump(); err != nil {
		t.Fatalf("dump: %v", err)
	}

	rf2 := New(20, 10)
	if err := rf2.Open(dest); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if rf2.Processed() != 0 {
		t.Fatalf("processed after crash-restore = %d, want 0 (partial write discarded)", rf2.Processed())
	}

	restored, ok := rf2.Allocate()
	if !ok {
		t.Fatal("expected the interval to be allocatable again from its start")
	}

	if restored.Start != 0 || restored.Position != 0 {
		t.Fatalf("restored interval = %v, want Position reset to Start", restored)
	}
}

func TestReopenWithSizeMismatchDiscardsMetadata(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	rf := New(20, 10)
	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	iv, _ := rf.Allocate()
	updated, err := rf.Fill(iv, make([]byte, 10), 10)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}

	rf.Deallocate(updated)

	if err := rf.Dump(); err != nil {
		t.Fatalf("dump: %v", err)
	}

	if err := rf.Close(false); err != nil {
		t.Fatalf("close: %v", err)
	}

	rf2 := New(999, 10) // different bytesTotal
	if err := rf2.Open(dest); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if rf2.Processed() != 0 {
		t.Fatalf("processed after size-mismatch reopen = %d, want 0", rf2.Processed())
	}

	if _, err := os.Stat(MetaPath(dest)); !os.IsNotExist(err) {
		t.Fatalf("expected stale metadata to be removed, stat err = %v", err)
	}
}

func TestCloseRejectsOutstandingAllocations(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	rf := New(10, 10)
	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	rf.Allocate()

	if err := rf.Close(false); err != ErrAllocatedNotEmpty {
		t.Fatalf("close err = %v, want ErrAllocatedNotEmpty", err)
	}
}

func TestCloseFinishedRequiresFullCoverage(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	rf := New(10, 10)
	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := rf.Close(true); err != ErrInvariantViolation {
		t.Fatalf("close err = %v, want ErrInvariantViolation", err)
	}
}

func TestCloseFinishedPromotesTempFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")

	rf := New(5, 5)
	if err := rf.Open(dest); err != nil {
		t.Fatalf("open: %v", err)
	}

	iv, _ := rf.Allocate()
	updated, err := rf.Fill(iv, []byte("hello"), 5)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}

	rf.Deallocate(updated)

	if err := rf.Close(true); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected final file to exist: %v", err)
	}

	if _, err := os.Stat(TempPath(dest)); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be gone, stat err = %v", err)
	}
}
