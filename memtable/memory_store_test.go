package memtable

import "testing"

func TestMemoryStoreSetGet(t *testing.T) {
	m := NewMemoryStore()

	m.Set("key", "value")

	v, ok := m.Get("key")
	if !ok || v != "value" {
		t.Fatalf("expected (value, true), got (%v, %v)", v, ok)
	}

	if _, ok := m.Get("absent"); ok {
		t.Fatal("expected absent key to miss")
	}
}

func TestMemoryStoreUsageAccounting(t *testing.T) {
	m := NewMemoryStore()

	if m.Usage() != 0 {
		t.Fatalf("expected 0 usage on empty store, got %d", m.Usage())
	}

	m.Set("key", "value")
	want := len("key") + len("value")
	if m.Usage() != want {
		t.Fatalf("expected usage %d after first set, got %d", want, m.Usage())
	}

	m.Set("key", "a different value")
	want = len("key") + len("a different value")
	if m.Usage() != want {
		t.Fatalf("expected usage %d after overwrite, got %d", want, m.Usage())
	}
}

func TestMemoryStoreUsageAcrossManyKeys(t *testing.T) {
	m := NewMemoryStore()

	entries := map[string]string{
		"a": "1", "bb": "22", "ccc": "333",
	}

	want := 0
	for k, v := range entries {
		m.Set(k, v)
		want += len(k) + len(v)
	}

	if m.Usage() != want {
		t.Fatalf("expected usage %d, got %d", want, m.Usage())
	}
}

func TestMemoryStoreIterOrder(t *testing.T) {
	m := NewMemoryStore()

	for _, k := range []string{"delta", "alpha", "charlie", "bravo"} {
		m.Set(k, k+"-value")
	}

	var got []string
	for rec := range m.Iter() {
		got = append(got, rec.Key)
	}

	want := []string{"alpha", "bravo", "charlie", "delta"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("iteration order mismatch at %d: got %s want %s", i, got[i], want[i])
		}
	}
}
