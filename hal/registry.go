package hal

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]func() (Device, error))
)

// Register makes a driver available under name. Drivers register from
// an init function in their own package.
func Register(name string, f func() (Device, error)) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if _, ok := drivers[name]; ok {
		panic("hal: driver already registered: " + name)
	}

	drivers[name] = f
}

// Open instantiates the driver registered under name.
func Open(name string) (Device, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("hal: unknown driver %q (have %v)", name, Drivers())
	}

	return f()
}

// Drivers lists the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	return slices.Sorted(maps.Keys(drivers))
}
