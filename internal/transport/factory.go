package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smazurov/lednode/internal/faults"
)

// Backend names accepted by Config.Backend.
const (
	BackendCoprocessor = "coprocessor"
	BackendRadio       = "radio"
	BackendAuto        = "auto"
)

// Config selects and parameterizes the transport.
type Config struct {
	Backend   string
	Serial    SerialConfig
	Interface string
}

var (
	openCoprocessor = func(ctx context.Context, cfg SerialConfig) (Handle, error) { return OpenCoprocessor(ctx, cfg) }
	openRadio       = func(ctx context.Context, iface string) (Handle, error) { return OpenRadio(ctx, iface) }
)

// New opens the transport named by cfg.Backend. Auto tries the co-processor
// first and falls back to the radio.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Handle, error) {
	switch cfg.Backend {
	case BackendCoprocessor:
		return openCoprocessor(ctx, cfg.Serial)
	case BackendRadio:
		return openRadio(ctx, cfg.Interface)
	case BackendAuto, "":
		h, err := openCoprocessor(ctx, cfg.Serial)
		if err == nil {
			logger.Info("Using coprocessor transport", "port", cfg.Serial.Port)
			return h, nil
		}
		logger.Info("Coprocessor not available, trying native radio", "port", cfg.Serial.Port, "error", err)
		h, radioErr := openRadio(ctx, cfg.Interface)
		if radioErr != nil {
			return nil, fmt.Errorf("no transport available: coprocessor: %v; radio: %w", err, radioErr)
		}
		logger.Info("Using native radio transport")
		return h, nil
	default:
		return nil, faults.Configuration("open transport",
			fmt.Sprintf("unknown backend %q (want %s, %s or %s)", cfg.Backend, BackendCoprocessor, BackendRadio, BackendAuto))
	}
}
