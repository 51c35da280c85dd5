package gpu

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Options are handed to a backend factory by Open.
type Options struct {
	// Window is the native window the device renders into, a *glfw.Window for
	// the bundled backends. Headless backends ignore it.
	Window any
	// Present is called by EndFrame on backends that do not own presentation
	// (the GL backend swaps through the window).
	Present func()
	// FramebufferSize reports the drawable size in pixels.
	FramebufferSize func() (int, int)
	Label           string
}

// Factory creates a device for a registered backend.
type Factory func(Options) (Device, error)

var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
)

// Register makes a backend available by name. It panics on a nil factory or
// a duplicate name, both of which are programming errors caught at init time.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("gpu: Register factory is nil")
	}
	if _, dup := backends[name]; dup {
		panic("gpu: Register called twice for " + name)
	}
	backends[name] = factory
}

// Unregister removes a backend. Intended for tests.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Open creates a device from the named backend.
func Open(name string, opts Options) (Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.Wrapf(ErrUnknownBackend, "%q (forgotten import?)", name)
	}
	dev, err := factory(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "gpu: open %q", name)
	}
	return dev, nil
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
