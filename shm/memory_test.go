package shm

import (
	"bytes"
	"testing"
)

func TestAllocate(t *testing.T) {
	m, err := Allocate("test input", 64)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if m.Size() != 64 {
		t.Errorf("expected size 64, got %d", m.Size())
	}
	if m.Name() != "test input" {
		t.Errorf("expected name %q, got %q", "test input", m.Name())
	}

	for _, b := range m.Bytes() {
		if b != 0 {
			t.Fatal("pool not zero filled")
		}
	}

	copy(m.Bytes(), []byte{1, 2, 3, 4})
	got, err := m.Slice(0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("expected [1 2 3 4], got %v", got)
	}
}

func TestAllocateInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := Allocate("bad", size); err == nil {
			t.Errorf("size %d: expected error", size)
		}
	}
}

func TestSliceBounds(t *testing.T) {
	m := MustAllocate("bounds", 16)
	defer m.Close()

	cases := []struct {
		offset, length int
		ok             bool
	}{
		{0, 16, true},
		{8, 8, true},
		{16, 0, true},
		{0, 17, false},
		{8, 9, false},
		{-1, 4, false},
		{4, -1, false},
	}

	for _, tt := range cases {
		_, err := m.Slice(tt.offset, tt.length)
		if tt.ok && err != nil {
			t.Errorf("[%d:+%d): unexpected error %v", tt.offset, tt.length, err)
		} else if !tt.ok && err == nil {
			t.Errorf("[%d:+%d): expected error", tt.offset, tt.length)
		}
	}
}

func TestKeyUnique(t *testing.T) {
	a := MustAllocate("a", 8)
	defer a.Close()
	b := MustAllocate("b", 8)
	defer b.Close()

	if a.Key() == b.Key() {
		t.Errorf("distinct pools share key %d", a.Key())
	}
}

func TestClone(t *testing.T) {
	m := MustAllocate("orig", 8)
	defer m.Close()
	copy(m.Bytes(), []byte{9, 8, 7, 6, 5, 4, 3, 2})

	c, err := m.Clone()
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if !bytes.Equal(c.Bytes(), m.Bytes()) {
		t.Errorf("clone contents differ: %v vs %v", c.Bytes(), m.Bytes())
	}
	if c.Key() == m.Key() {
		t.Error("clone shares key with original")
	}

	// writes must not leak between pools
	c.Bytes()[0] = 0xff
	if m.Bytes()[0] == 0xff {
		t.Error("clone aliases original backing store")
	}
}

func TestCloseIdempotent(t *testing.T) {
	m := MustAllocate("close", 8)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
