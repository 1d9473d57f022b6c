package manager

import (
	"fmt"
	"sync"
)

// HandleRegistry enforces that at most one runtime handle is live (anything
// but unloaded) at a time.
type HandleRegistry struct {
	mu   sync.Mutex
	live *Handle
}

// processRegistry is shared by every Manager that does not bring its own.
var processRegistry = &HandleRegistry{}

// NewHandleRegistry returns an isolated registry.
func NewHandleRegistry() *HandleRegistry { return &HandleRegistry{} }

func (r *HandleRegistry) claim(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live != nil && r.live != h {
		return fmt.Errorf("another runtime is live in this process")
	}
	r.live = h
	return nil
}

func (r *HandleRegistry) release(h *Handle) {
	r.mu.Lock()
	if r.live == h {
		r.live = nil
	}
	r.mu.Unlock()
}

// Live reports whether some handle currently holds the registry.
func (r *HandleRegistry) Live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live != nil
}
