package segment

import (
	"iter"
	"path/filepath"
	"sort"
	"testing"
)

func seqOf(pairs [][2]string) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, p := range pairs {
			if !yield(p[0], p[1]) {
				return
			}
		}
	}
}

func sortedPairs(m map[string]string) [][2]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][2]string, 0, len(m))
	for _, k := range keys {
		out = append(out, [2]string{k, m[k]})
	}
	return out
}

func TestSegmentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000.seg")

	data := map[string]string{
		"alpha":   "1",
		"bravo":   "2",
		"charlie": "3",
		"delta":   "4",
		"echo":    "5",
	}
	pairs := sortedPairs(data)

	s, err := Create(path, 7, seqOf(pairs), WithBlockSize(8))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.SequenceNumber() != 7 {
		t.Fatalf("expected sequence number 7, got %d", s.SequenceNumber())
	}

	got := map[string]string{}
	for k, v := range s.Scan() {
		got[k] = v
	}
	if len(got) != len(data) {
		t.Fatalf("expected %d entries from scan, got %d", len(data), len(got))
	}
	for k, v := range data {
		if got[k] != v {
			t.Fatalf("scan mismatch for %q: got %q want %q", k, got[k], v)
		}
	}
}

func TestSegmentPointGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000.seg")

	pairs := sortedPairs(map[string]string{"a": "1", "m": "2", "z": "3"})
	s, err := Create(path, 1, seqOf(pairs))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for _, p := range pairs {
		v, ok, err := s.Get(p[0])
		if err != nil {
			t.Fatal(err)
		}
		if !ok || v != p[1] {
			t.Fatalf("get(%q) = (%q, %v), want (%q, true)", p[0], v, ok, p[1])
		}
	}

	if _, ok, err := s.Get("absent"); err != nil || ok {
		t.Fatalf("expected absent key to miss cleanly, got ok=%v err=%v", ok, err)
	}
}

func TestSegmentLoadAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000.seg")

	pairs := sortedPairs(map[string]string{"a": "1", "b": "2"})
	s, err := Create(path, 42, seqOf(pairs))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	defer loaded.Close()

	if loaded.SequenceNumber() != 42 {
		t.Fatalf("expected sequence 42, got %d", loaded.SequenceNumber())
	}
	v, ok, err := loaded.Get("a")
	if err != nil || !ok || v != "1" {
		t.Fatalf("expected (1, true), got (%v, %v, %v)", v, ok, err)
	}
}

func TestSegmentWithoutMmap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000.seg")

	pairs := sortedPairs(map[string]string{"a": "1", "b": "2", "c": "3"})
	mmapped, err := Create(path, 1, seqOf(pairs))
	if err != nil {
		t.Fatal(err)
	}
	defer mmapped.Close()

	plain, err := Load(path, WithoutMmap())
	if err != nil {
		t.Fatal(err)
	}
	defer plain.Close()

	for _, p := range pairs {
		mv, _, _ := mmapped.Get(p[0])
		pv, _, _ := plain.Get(p[0])
		if mv != pv || mv != p[1] {
			t.Fatalf("mmap/non-mmap mismatch for %q: mmap=%q plain=%q", p[0], mv, pv)
		}
	}
}

func TestSegmentEmptyIterator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000.seg")

	s, err := Create(path, 1, seqOf(nil))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	count := 0
	for range s.Scan() {
		count++
	}
	if count != 0 {
		t.Fatalf("expected empty segment to yield nothing, got %d entries", count)
	}

	if _, ok, err := s.Get("anything"); err != nil || ok {
		t.Fatalf("expected miss on empty segment, got ok=%v err=%v", ok, err)
	}
}

func TestClosestBefore(t *testing.T) {
	index := []indexEntry{
		{key: "b", offset: 10},
		{key: "d", offset: 20},
		{key: "f", offset: 30},
	}

	if _, ok := closestBefore("a", index); ok {
		t.Fatal("expected no match when target precedes smallest key")
	}
	if e, ok := closestBefore("b", index); !ok || e.offset != 10 {
		t.Fatalf("expected exact hit on smallest key, got %+v %v", e, ok)
	}
	if e, ok := closestBefore("c", index); !ok || e.offset != 10 {
		t.Fatalf("expected closest-before b for target c, got %+v %v", e, ok)
	}
	if e, ok := closestBefore("z", index); !ok || e.offset != 30 {
		t.Fatalf("expected last entry for target beyond largest key, got %+v %v", e, ok)
	}
	if _, ok := closestBefore("a", nil); ok {
		t.Fatal("expected no match on empty index")
	}
}

func TestSegmentBloomNeverFalseNegative(t *testing.T) {
	path := filepath.Join(t.TempDir(), "000.seg")

	keys := make(map[string]string)
	for i := 0; i < 500; i++ {
		k := string(rune('a'+i%26)) + string(rune('A'+(i/26)%26))
		keys[k] = k + "-value"
	}
	pairs := sortedPairs(keys)

	s, err := Create(path, 1, seqOf(pairs), WithBlockSize(64))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for k, v := range keys {
		got, ok, err := s.Get(k)
		if err != nil {
			t.Fatal(err)
		}
		if !ok || got != v {
			t.Fatalf("bloom filter produced a false negative for key %q", k)
		}
	}
}
