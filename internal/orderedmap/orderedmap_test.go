package orderedmap

import (
	"slices"
	"testing"
)

func TestInsertionOrder(t *testing.T) {
	m := New[int32, string]()
	m.Set(3, "c")
	m.Set(1, "a")
	m.Set(2, "b")

	var keys []int32
	for k := range m.All() {
		keys = append(keys, k)
	}
	if want := []int32{3, 1, 2}; !slices.Equal(keys, want) {
		t.Errorf("iteration order = %v, want %v", keys, want)
	}
}

func TestSetKeepsPosition(t *testing.T) {
	m := New[int32, string]()
	m.Set(1, "a")
	m.Set(2, "b")
	m.Set(1, "a2")

	k, v, ok := m.Oldest()
	if !ok || k != 1 || v != "a2" {
		t.Errorf("Oldest() = %v, %q, %t; want 1, \"a2\", true", k, v, ok)
	}
}

func TestDeleteOldest(t *testing.T) {
	m := New[int32, string]()
	m.Set(1, "a")
	m.Set(2, "b")
	m.Set(3, "c")

	k, _, ok := m.Oldest()
	if !ok {
		t.Fatal("Oldest() on a populated map reported empty")
	}
	if !m.Delete(k) {
		t.Fatalf("Delete(%d) reported missing", k)
	}
	if m.Delete(k) {
		t.Fatalf("second Delete(%d) reported present", k)
	}

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if k, _, _ := m.Oldest(); k != 2 {
		t.Errorf("Oldest() after delete = %d, want 2", k)
	}
}

func TestNilMap(t *testing.T) {
	var m *Map[string, int]
	if _, ok := m.Get("x"); ok {
		t.Error("Get on nil map reported a value")
	}
	if m.Len() != 0 {
		t.Errorf("Len on nil map = %d, want 0", m.Len())
	}
	if m.Delete("x") {
		t.Error("Delete on nil map reported present")
	}
	for range m.All() {
		t.Fatal("All on nil map yielded a pair")
	}
}
