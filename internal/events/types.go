package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeConnectivityChanged uint32 = iota + 1
	TypeEffectChanged
	TypeRecovery
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ConnectivityChangedEvent is published by the supervisor whenever a
// connection attempt fails or the transport becomes associated again.
type ConnectivityChangedEvent struct {
	Connected bool      `json:"connected" doc:"Whether the transport is associated"`
	Transport string    `json:"transport" example:"coprocessor" doc:"Transport backend kind"`
	Attempt   int       `json:"attempt" example:"3" doc:"Connect attempt number, 0 when no attempt was made"`
	Error     string    `json:"error,omitempty" doc:"Last connect error"`
	Timestamp time.Time `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for ConnectivityChangedEvent.
func (e ConnectivityChangedEvent) Type() uint32 { return TypeConnectivityChanged }

// EffectChangedEvent is published by the control loop after a command
// changed what the strip shows.
type EffectChangedEvent struct {
	Effect    string    `json:"effect" example:"rainbowchase" doc:"Active effect, empty for a manual fill"`
	Route     string    `json:"route" example:"/rainbowchase" doc:"Route that caused the change"`
	Color     [3]uint8  `json:"color" doc:"Color of the active effect or fill"`
	Timestamp time.Time `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for EffectChangedEvent.
func (e EffectChangedEvent) Type() uint32 { return TypeEffectChanged }

// RecoveryEvent is published by the control loop each time it leaves the
// recover state.
type RecoveryEvent struct {
	Cause     string        `json:"cause" doc:"Fault that triggered recovery"`
	From      string        `json:"from" example:"render" doc:"Loop state the fault was raised in"`
	Duration  time.Duration `json:"duration" doc:"Time spent re-establishing connectivity"`
	Err       string        `json:"error,omitempty" doc:"Error returned by the supervisor, if any"`
	Timestamp time.Time     `json:"timestamp" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecoveryEvent.
func (e RecoveryEvent) Type() uint32 { return TypeRecovery }
