package plugin

import (
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/t1sbridge/internal/core"
)

// SourceFactory creates a new, uninitialised source.
type SourceFactory func() Source

type registry[F any] struct {
	mu        sync.RWMutex
	kind      string
	factories map[string]F
}

func newRegistry[F any](kind string) *registry[F] {
	return &registry[F]{kind: kind, factories: make(map[string]F)}
}

// Register panics on duplicate names, like database/sql drivers.
func (r *registry[F]) Register(name string, f F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		panic(fmt.Sprintf("plugin: %s %q registered twice", r.kind, name))
	}
	r.factories[name] = f
}

func (r *registry[F]) Get(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%s %q: %w", r.kind, name, core.ErrPluginNotFound)
	}
	return f, nil
}

func (r *registry[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *registry[F]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]F)
}

var sourceReg = newRegistry[SourceFactory]("source")

// RegisterSource registers a source factory. Sources call it from init.
func RegisterSource(name string, f SourceFactory) {
	sourceReg.Register(name, f)
}

// GetSourceFactory returns the factory registered under name.
func GetSourceFactory(name string) (SourceFactory, error) {
	return sourceReg.Get(name)
}

// SourceNames lists registered sources in sorted order.
func SourceNames() []string {
	return sourceReg.Names()
}
