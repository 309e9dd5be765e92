package circuit

import (
	"sync"
	"time"
)

// Preset thresholds. RPC endpoints flap more and recover faster than the
// shared price index, which throttles aggressively once tripped.
const (
	RPCFailureThreshold = 5
	RPCRecoveryTimeout  = 90 * time.Second

	PriceFailureThreshold = 3
	PriceRecoveryTimeout  = 120 * time.Second
)

// Manager lazily creates one breaker per named dependency and hands back
// the same instance on every call.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*Breaker)}
}

// Get returns the breaker registered under name, creating it with the given
// thresholds on first use. Later calls ignore the thresholds.
func (m *Manager) Get(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[name]; ok {
		return b
	}
	b := New(name, failureThreshold, recoveryTimeout)
	m.breakers[name] = b
	return b
}

// Stats returns snapshots for every registered breaker.
func (m *Manager) Stats() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Stats, 0, len(m.breakers))
	for _, b := range m.breakers {
		out = append(out, b.Stats())
	}
	return out
}

// ResetAll closes every registered breaker.
func (m *Manager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.breakers {
		b.Reset()
	}
}
