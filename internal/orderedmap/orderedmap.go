// Package orderedmap provides a generic map that maintains insertion
// order. Burst channels use it for slot tables, where eviction must
// drop the least recently inserted mapping first. It wraps
// github.com/wk8/go-ordered-map/v2 to encapsulate the dependency.
package orderedmap

import (
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Map is a generic ordered map that maintains insertion order.
type Map[K comparable, V any] struct {
	om *orderedmap.OrderedMap[K, V]
}

// New creates a new empty ordered map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		om: orderedmap.New[K, V](),
	}
}

// Get retrieves a value by key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	if m == nil || m.om == nil {
		var zero V
		return zero, false
	}
	return m.om.Get(key)
}

// Set sets a key-value pair. An existing key keeps its position in
// the iteration order; a new key is appended to the end.
func (m *Map[K, V]) Set(key K, value V) {
	if m == nil {
		return
	}
	if m.om == nil {
		m.om = orderedmap.New[K, V]()
	}
	m.om.Set(key, value)
}

// Delete removes a key, reporting whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	if m == nil || m.om == nil {
		return false
	}
	_, present := m.om.Delete(key)
	return present
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	if m == nil || m.om == nil {
		return 0
	}
	return m.om.Len()
}

// Oldest returns the least recently inserted key and its value. The
// third result is false when the map is empty.
func (m *Map[K, V]) Oldest() (K, V, bool) {
	if m == nil || m.om == nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	pair := m.om.Oldest()
	if pair == nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	return pair.Key, pair.Value, true
}

// All returns an iterator over all key-value pairs in insertion order.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if m == nil || m.om == nil {
			return
		}
		for pair := m.om.Oldest(); pair != nil; pair = pair.Next() {
			if !yield(pair.Key, pair.Value) {
				return
			}
		}
	}
}
