package extensibility

import (
	"context"
	"sync"

	"github.com/comalice/trackcoord/internal/primitives"
)

// ExecutionMode is what a SimulatedHost currently grants.
type ExecutionMode string

const (
	ModeIdle       ExecutionMode = "idle"
	ModeForeground ExecutionMode = "foreground"
	ModeBackground ExecutionMode = "background"
)

// SimulatedHost mimics a mobile runtime: promotion to continuous foreground
// execution is refused unless the app is visible or exempt.
type SimulatedHost struct {
	mu      sync.Mutex
	visible bool
	exempt  bool
	mode    ExecutionMode
}

func NewSimulatedHost(visible bool) *SimulatedHost {
	return &SimulatedHost{visible: visible, mode: ModeIdle}
}

// SetVisible toggles whether the app is in front of the user.
func (h *SimulatedHost) SetVisible(visible bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.visible = visible
}

// SetExempt grants or revokes the background start exemption.
func (h *SimulatedHost) SetExempt(exempt bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exempt = exempt
}

func (h *SimulatedHost) RequestForeground(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mode == ModeForeground {
		return nil
	}
	if !h.visible && !h.exempt {
		return primitives.ErrExecutionRefused
	}
	h.mode = ModeForeground
	return nil
}

func (h *SimulatedHost) RequestBackground(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mode = ModeBackground
	return nil
}

func (h *SimulatedHost) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mode = ModeIdle
	return nil
}

func (h *SimulatedHost) Mode() ExecutionMode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mode
}
