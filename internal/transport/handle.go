// Package transport abstracts how the device reaches the network: through an
// ESP-AT co-processor on a serial bus or through the host's own Wi-Fi radio.
// The variant is chosen once by New; nothing else branches on it.
package transport

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"github.com/smazurov/lednode/internal/config"
	"github.com/smazurov/lednode/internal/logging"
)

// Kind tags a Handle variant.
type Kind string

// Handle variants.
const (
	KindCoprocessorBus Kind = "coprocessor"
	KindNativeRadio    Kind = "radio"
)

// Handle is a network transport. Connect makes a single association attempt;
// retrying is the supervisor's job.
type Handle interface {
	Kind() Kind
	Connect(ctx context.Context, creds config.Credentials) error
	IsConnected(ctx context.Context) bool
	// ScanNetworks returns a lazy, finite sequence that may be ranged over
	// once.
	ScanNetworks(ctx context.Context) iter.Seq[Network]
	// NewHTTPClient returns a client whose connections go through this
	// transport.
	NewHTTPClient() *http.Client
	Close() error
}

// Network is one access point seen by a scan.
type Network struct {
	SSID    string `json:"ssid"`
	RSSI    int    `json:"rssi" doc:"Signal strength in dBm"`
	Channel int    `json:"channel"`
}

// Identity describes the network hardware.
type Identity struct {
	Firmware string `json:"firmware,omitempty"`
	MAC      string `json:"mac,omitempty"`
}

// Identifier is implemented by handles that can report their hardware
// identity.
type Identifier interface {
	Identity(ctx context.Context) (Identity, error)
}

func transportLogger(kind Kind, attrs ...any) *slog.Logger {
	logger := logging.GetLogger("transport").With("transport", string(kind))
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
