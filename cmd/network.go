// Package cmd holds the diagnostic subcommands. They share the daemon's
// configuration file and secrets but never touch the strip.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/lednode/internal/config"
	"github.com/smazurov/lednode/internal/logging"
	"github.com/smazurov/lednode/internal/supervisor"
	"github.com/smazurov/lednode/internal/transport"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.toml"

// networkOptions is the subset of the daemon options the subcommands need.
type networkOptions struct {
	Config                 string
	Secrets                string `toml:"secrets.file" env:"SECRETS_FILE"`
	TransportBackend       string `toml:"transport.backend" env:"TRANSPORT_BACKEND"`
	TransportSerialPort    string `toml:"transport.serial_port" env:"TRANSPORT_SERIAL_PORT"`
	TransportBaudRate      int    `toml:"transport.baud_rate" env:"TRANSPORT_BAUD_RATE"`
	TransportInterface     string `toml:"transport.interface" env:"TRANSPORT_INTERFACE"`
	TransportRetryInterval string `toml:"transport.retry_interval" env:"TRANSPORT_RETRY_INTERVAL"`
	TransportMaxAttempts   int    `toml:"transport.max_attempts" env:"TRANSPORT_MAX_ATTEMPTS"`
}

func defaultNetworkOptions(configPath string) networkOptions {
	return networkOptions{
		Config:                 configPath,
		Secrets:                "secrets.toml",
		TransportBackend:       transport.BackendAuto,
		TransportSerialPort:    "/dev/ttyS1",
		TransportBaudRate:      115200,
		TransportRetryInterval: supervisor.DefaultRetryInterval.String(),
		TransportMaxAttempts:   5,
	}
}

// configPath returns the --config flag inherited from the root command.
func configPath(c *cobra.Command) string {
	if f := c.Flag("config"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	return defaultConfigPath
}

// initLogging applies the [logging] table of the config file, if any.
func initLogging(path string) *slog.Logger {
	cfg, err := config.LoadLoggingConfig(path)
	logging.Initialize(cfg)
	logger := logging.GetLogger("cli")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Debug("Using default logging", "error", err)
	}
	return logger
}

// network is an open transport plus its supervisor.
type network struct {
	handle transport.Handle
	sup    *supervisor.Supervisor
	creds  config.Credentials
}

func (n *network) Close() error { return n.handle.Close() }

func openNetwork(ctx context.Context, c *cobra.Command, logger *slog.Logger) (*network, error) {
	opts := defaultNetworkOptions(configPath(c))
	if err := config.LoadConfig(&opts, nil); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	creds, err := config.LoadCredentials(opts.Secrets)
	if err != nil {
		return nil, err
	}

	handle, err := transport.New(ctx, transport.Config{
		Backend:   opts.TransportBackend,
		Serial:    transport.SerialConfig{Port: opts.TransportSerialPort, BaudRate: opts.TransportBaudRate},
		Interface: opts.TransportInterface,
	}, logging.GetLogger("transport"))
	if err != nil {
		return nil, err
	}

	policy := supervisor.DefaultPolicy()
	if d, err := time.ParseDuration(opts.TransportRetryInterval); err == nil && d > 0 {
		policy.RetryInterval = d
	}
	policy.MaxAttempts = opts.TransportMaxAttempts
	logger.Debug("Opened transport", "transport", handle.Kind(), "max_attempts", policy.MaxAttempts)

	return &network{
		handle: handle,
		sup:    supervisor.New(handle, creds, supervisor.WithPolicy(policy)),
		creds:  creds,
	}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
