package units

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/binpipe/internal/unit"
)

var (
	ErrUnitExists  = errors.New("units: unit already registered")
	ErrUnknownUnit = errors.New("units: unknown unit")
)

// Factory produces a fresh, unconfigured unit instance.
type Factory func() unit.Unit

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

// Register adds a factory under its unit's name. Registration happens at
// init time; the table is read-only afterwards.
func Register(f Factory) {
	name := f().Name()
	mu.Lock()
	defer mu.Unlock()
	if _, ok := registry[name]; ok {
		panic(fmt.Errorf("%w: %s", ErrUnitExists, name))
	}
	registry[name] = f
}

// New resolves a unit by name.
func New(name string) (unit.Unit, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
	}
	return f(), nil
}

// Known reports whether name resolves to a unit.
func Known(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[name]
	return ok
}

// Names lists registered units in stable order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
