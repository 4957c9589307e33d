// Package status drives the board's on-board indicator LED from the
// connectivity state of the network transport.
package status

// Patterns understood by every Controller.
const (
	PatternSolid     = "solid"
	PatternHeartbeat = "heartbeat"
	PatternOff       = "off"
)

// Controller abstracts the indicator LED across boards.
type Controller interface {
	// Set switches the indicator to one of the Pattern constants.
	Set(pattern string) error

	// Name returns the LED being driven, empty for the no-op controller.
	Name() string
}
