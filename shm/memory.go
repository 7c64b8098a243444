// Package shm provides the driver-visible memory pools that models and
// requests reference by pool index. On linux pools are backed by
// anonymous shared memory so they can cross a driver boundary; other
// platforms fall back to process heap.
package shm

import (
	"fmt"
	"sync/atomic"
)

var nextKey atomic.Int64

// Memory is a single contiguous pool.
type Memory struct {
	name string
	key  int64
	data []byte
	fd   int

	closed bool
}

// Allocate creates a pool of size bytes, zero filled.
func Allocate(name string, size int) (*Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid allocation size %d for %q", size, name)
	}

	m, err := allocate(name, size)
	if err != nil {
		return nil, fmt.Errorf("shm: allocate %q: %w", name, err)
	}

	m.name = name
	m.key = nextKey.Add(1)
	return m, nil
}

// MustAllocate is Allocate for statically sized pools known to be valid.
func MustAllocate(name string, size int) *Memory {
	m, err := Allocate(name, size)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Size() int { return len(m.data) }

// Key identifies the pool across requests. Two requests referencing
// the same pool carry the same key, which burst channels rely on to
// reuse driver-side mappings.
func (m *Memory) Key() int64 { return m.key }

// Bytes exposes the full backing store. The slice stays valid until
// Close.
func (m *Memory) Bytes() []byte { return m.data }

// Slice returns the window [offset, offset+length), refusing
// out-of-bounds access rather than truncating.
func (m *Memory) Slice(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(m.data) {
		return nil, fmt.Errorf("shm: slice [%d:+%d) out of bounds for %q (%d bytes)", offset, length, m.name, len(m.data))
	}
	return m.data[offset : offset+length], nil
}

// Clone allocates a new pool of the same size holding a copy of the
// contents. The clone has its own key.
func (m *Memory) Clone() (*Memory, error) {
	c, err := Allocate(m.name, len(m.data))
	if err != nil {
		return nil, err
	}
	copy(c.data, m.data)
	return c, nil
}

// Close releases the backing store. Closing twice is a no-op.
func (m *Memory) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	return m.free()
}
