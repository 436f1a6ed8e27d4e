package swarm

import (
	"fmt"
	"sync"

	"callpilot/models"
)

// ModeDefault holds the process-wide default call mode, adjustable at runtime
// through the settings endpoint.
type ModeDefault struct {
	mu   sync.RWMutex
	mode models.CallMode
}

// NewModeDefault seeds the default from the SIMULATED_CALLS config flag.
func NewModeDefault(simulatedCalls bool) *ModeDefault {
	mode := models.CallModeReal
	if simulatedCalls {
		mode = models.CallModeSimulated
	}
	return &ModeDefault{mode: mode}
}

// Get returns the current server-wide default.
func (m *ModeDefault) Get() models.CallMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// Set changes the server-wide default. The default must be concrete, so
// "auto" is rejected.
func (m *ModeDefault) Set(mode models.CallMode) error {
	if mode == models.CallModeAuto || !models.ValidCallMode(mode) {
		return fmt.Errorf("mode must be one of real, simulated, hybrid")
	}
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	return nil
}

// Resolve maps a campaign's requested mode to an effective one.
func (m *ModeDefault) Resolve(requested models.CallMode) models.CallMode {
	if requested == models.CallModeAuto || requested == "" {
		return m.Get()
	}
	return requested
}
