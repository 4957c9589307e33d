package status

import (
	"log/slog"
	"sync"

	"github.com/smazurov/lednode/internal/events"
)

// Manager subscribes to connectivity events and keeps the indicator in step:
// solid while associated, heartbeat while the supervisor is reconnecting.
type Manager struct {
	controller  Controller
	eventBus    *events.Bus
	unsubscribe []func()
	logger      *slog.Logger

	mu      sync.Mutex
	pattern string
}

// NewManager creates a manager driving controller from eventBus.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Start shows the heartbeat until the first connectivity event arrives.
func (m *Manager) Start() {
	m.apply(PatternHeartbeat)
	m.unsubscribe = append(m.unsubscribe,
		m.eventBus.Subscribe(func(e events.ConnectivityChangedEvent) {
			if e.Connected {
				m.apply(PatternSolid)
			} else {
				m.apply(PatternHeartbeat)
			}
		}),
	)
	m.logger.Info("Status LED manager started", "led", m.controller.Name())
}

// Stop unsubscribes and switches the indicator off.
func (m *Manager) Stop() {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.unsubscribe = nil
	m.apply(PatternOff)
	m.logger.Info("Status LED manager stopped")
}

// Pattern returns the last pattern applied.
func (m *Manager) Pattern() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pattern
}

func (m *Manager) apply(pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pattern == pattern {
		return
	}
	if err := m.controller.Set(pattern); err != nil {
		m.logger.Warn("Failed to set status LED", "pattern", pattern, "error", err)
		return
	}
	m.pattern = pattern
	m.logger.Debug("Status LED updated", "pattern", pattern)
}
