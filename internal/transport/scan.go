package transport

import (
	"context"
	"log/slog"
)

// LogNetworks logs the hardware identity, when the handle reports one, and
// every network a scan finds. It returns the identity (zero when unknown) and
// the networks seen.
func LogNetworks(ctx context.Context, logger *slog.Logger, h Handle) (Identity, []Network) {
	var id Identity
	if idr, ok := h.(Identifier); ok {
		var err error
		if id, err = idr.Identity(ctx); err != nil {
			logger.Warn("Failed to read network hardware identity", "error", err)
			id = Identity{}
		} else {
			logger.Info("Network hardware", "transport", string(h.Kind()), "firmware", id.Firmware, "mac", id.MAC)
		}
	}

	var seen []Network
	for n := range h.ScanNetworks(ctx) {
		logger.Info("Available network", "ssid", n.SSID, "rssi", n.RSSI, "channel", n.Channel)
		seen = append(seen, n)
	}
	logger.Info("Network scan complete", "count", len(seen))
	return id, seen
}
