package status

import "log/slog"

// noop implements Controller for boards without a usable indicator.
type noop struct {
	logger *slog.Logger
}

func newNoop(logger *slog.Logger) *noop {
	return &noop{logger: logger}
}

// Set logs the request but performs no LED control.
func (n *noop) Set(pattern string) error {
	n.logger.Debug("Status LED not available (no-op)", "pattern", pattern)
	return nil
}

func (n *noop) Name() string { return "" }
