// Package registry selects a ledger backend by name at runtime.
//
// Backends are linked at build time: a backend package registers itself in
// init(), and a binary enables it with a (usually blank) import:
//
//	import _ "xdao.co/calm/ledger/registry/builtin"
package registry

import (
	"flag"
	"fmt"
	"sort"
	"sync"

	"xdao.co/calm/ledger"
)

// Backend is a named way to open a ledger.Store.
type Backend struct {
	Name        string
	Description string

	// RegisterFlags adds backend-specific flags to fs.
	// It must be safe to call exactly once per process.
	RegisterFlags func(fs *flag.FlagSet)

	// Open constructs the store from values parsed into flags registered by
	// RegisterFlags. config holds overrides keyed by flag name; values
	// present in config win over flag values. The close function is optional.
	Open func(config map[string]string) (ledger.Store, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("registry: backend name is required")
	}
	if b.RegisterFlags == nil {
		return fmt.Errorf("registry: backend %q missing RegisterFlags", b.Name)
	}
	if b.Open == nil {
		return fmt.Errorf("registry: backend %q missing Open", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("registry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns all backends, sorted by name.
func List() []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names, sorted.
func Names() []string {
	bs := List()
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// RegisterFlags registers flags for all backends.
//
// This enables single-pass flag parsing (Go's flag package rejects unknown flags).
func RegisterFlags(fs *flag.FlagSet) {
	for _, b := range List() {
		b.RegisterFlags(fs)
	}
}

// Open opens the named backend from its flags.
func Open(name string) (ledger.Store, func() error, error) {
	return OpenWithConfig(name, nil)
}

// OpenWithConfig opens the named backend with config overriding its flags.
func OpenWithConfig(name string, config map[string]string) (ledger.Store, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unknown ledger backend %q", name)
	}
	return b.Open(config)
}

// Value returns config[key] if set, else fallback.
func Value(config map[string]string, key, fallback string) string {
	if v, ok := config[key]; ok {
		return v
	}
	return fallback
}
