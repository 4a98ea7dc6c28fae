package database

import (
	"testing"
)

func TestSetGetBasic(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.Set("a", "1"); err != nil {
		t.Fatal(err)
	}

	v, ok, err := db.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v != "1" {
		t.Fatalf("expected (1, true), got (%q, %v)", v, ok)
	}

	if _, ok, err := db.Get("absent"); err != nil || ok {
		t.Fatalf("expected absent key to miss, got ok=%v err=%v", ok, err)
	}
}

func TestGetPrefersMemtableOverSegments(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	// The first value is flushed to a segment; the second stays in the
	// memtable, well under the default MAX_MEMORY_USAGE.
	if err := db.Set("a", "old"); err != nil {
		t.Fatal(err)
	}
	if err := db.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(db.Segments()) != 1 {
		t.Fatalf("expected one segment after first flush, got %d", len(db.Segments()))
	}

	if err := db.Set("a", "new"); err != nil {
		t.Fatal(err)
	}

	v, ok, err := db.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v != "new" {
		t.Fatalf("expected memtable value to shadow segment value, got %q", v)
	}
}

func TestGetFallsThroughToOlderSegments(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir, WithMaxMemoryUsage(1))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := db.Set("b", "2"); err != nil {
		t.Fatal(err)
	}

	v, ok, err := db.Get("a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v != "1" {
		t.Fatalf("expected fall-through to the older segment holding a=1, got %q ok=%v", v, ok)
	}
}

func TestFlushEmptiesMemtableAndProducesSegment(t *testing.T) {
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := db.Set("b", "2"); err != nil {
		t.Fatal(err)
	}

	if err := db.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(db.Segments()) != 1 {
		t.Fatalf("expected one segment after flush, got %d", len(db.Segments()))
	}
	if db.mem.Usage() != 0 {
		t.Fatalf("expected memtable to be empty after flush, usage=%d", db.mem.Usage())
	}

	v, ok, err := db.Get("a")
	if err != nil || !ok || v != "1" {
		t.Fatalf("expected a=1 still reachable after flush, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestRecoveryReplaysUnflushedWrites(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := db.Set("b", "2"); err != nil {
		t.Fatal(err)
	}
	// Simulate a crash: close without an explicit Flush, leaving both
	// writes only in the write-ahead log.
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	for k, want := range map[string]string{"a": "1", "b": "2"} {
		v, ok, err := reopened.Get(k)
		if err != nil || !ok || v != want {
			t.Fatalf("recovery mismatch for %q: got %q ok=%v err=%v", k, v, ok, err)
		}
	}
}

func TestRecoveryAfterFlushDoesNotReplayTruncatedLog(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Set("a", "1"); err != nil {
		t.Fatal(err)
	}
	if err := db.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := db.Set("b", "2"); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	if len(reopened.Segments()) != 1 {
		t.Fatalf("expected exactly one segment on reopen, got %d", len(reopened.Segments()))
	}

	for k, want := range map[string]string{"a": "1", "b": "2"} {
		v, ok, err := reopened.Get(k)
		if err != nil || !ok || v != want {
			t.Fatalf("mismatch for %q: got %q ok=%v err=%v", k, v, ok, err)
		}
	}
}
