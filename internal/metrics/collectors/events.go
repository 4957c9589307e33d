// Package collectors keeps metrics in step with bus events.
package collectors

import (
	"log/slog"
	"sync"

	"github.com/smazurov/lednode/internal/events"
	"github.com/smazurov/lednode/internal/logging"
	"github.com/smazurov/lednode/internal/metrics"
)

// EventCollector subscribes to the event bus and mirrors connectivity and
// effect changes into gauges.
type EventCollector struct {
	logger   *slog.Logger
	bus      *events.Bus
	mu       sync.Mutex
	unsubs   []func()
	stopOnce sync.Once
}

// NewEventCollector creates a collector for bus.
func NewEventCollector(bus *events.Bus) *EventCollector {
	return &EventCollector{
		logger: logging.GetLogger("metrics"),
		bus:    bus,
	}
}

// Start subscribes to the bus.
func (c *EventCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubs = append(c.unsubs,
		c.bus.Subscribe(func(e events.ConnectivityChangedEvent) {
			metrics.SetConnected(e.Transport, e.Connected)
		}),
		c.bus.Subscribe(func(e events.EffectChangedEvent) {
			metrics.SetActiveEffect(e.Effect)
		}),
	)
	c.logger.Debug("Event collector started")
}

// Stop removes all subscriptions.
func (c *EventCollector) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, unsub := range c.unsubs {
			unsub()
		}
		c.unsubs = nil
	})
}
