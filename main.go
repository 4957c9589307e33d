package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/lednode/cmd"
	"github.com/smazurov/lednode/internal/api"
	"github.com/smazurov/lednode/internal/config"
	"github.com/smazurov/lednode/internal/events"
	"github.com/smazurov/lednode/internal/faults"
	"github.com/smazurov/lednode/internal/feeds"
	"github.com/smazurov/lednode/internal/led"
	"github.com/smazurov/lednode/internal/led/status"
	"github.com/smazurov/lednode/internal/logging"
	"github.com/smazurov/lednode/internal/loop"
	"github.com/smazurov/lednode/internal/metrics/collectors"
	"github.com/smazurov/lednode/internal/metrics/exporters"
	"github.com/smazurov/lednode/internal/supervisor"
	"github.com/smazurov/lednode/internal/systemd"
	"github.com/smazurov/lednode/internal/timesync"
	"github.com/smazurov/lednode/internal/transport"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config  string `help:"Path to configuration file" short:"c" default:"config.toml"`
	Secrets string `help:"Path to secrets file" default:"secrets.toml" toml:"secrets.file" env:"SECRETS_FILE"`

	// Server settings
	Port      string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	StaticDir string `help:"Static asset directory, must contain index.html" default:"static" toml:"server.static_dir" env:"SERVER_STATIC_DIR"`

	// Auth settings, empty disables auth on the diagnostic routes
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Transport settings
	TransportBackend       string `help:"Network transport (auto, coprocessor, radio)" default:"auto" toml:"transport.backend" env:"TRANSPORT_BACKEND"`
	TransportSerialPort    string `help:"Co-processor serial port" default:"/dev/ttyS1" toml:"transport.serial_port" env:"TRANSPORT_SERIAL_PORT"`
	TransportBaudRate      int    `help:"Co-processor baud rate" default:"115200" toml:"transport.baud_rate" env:"TRANSPORT_BAUD_RATE"`
	TransportInterface     string `help:"Wi-Fi interface for the radio backend, empty picks the first" default:"" toml:"transport.interface" env:"TRANSPORT_INTERFACE"`
	TransportRetryInterval string `help:"Pause between connect attempts" default:"2s" toml:"transport.retry_interval" env:"TRANSPORT_RETRY_INTERVAL"`
	TransportMaxAttempts   int    `help:"Connect attempts before giving up, 0 retries forever" default:"0" toml:"transport.max_attempts" env:"TRANSPORT_MAX_ATTEMPTS"`

	// Strip settings
	StripDriver     string `help:"Pixel driver (opc, memory)" default:"opc" toml:"strip.driver" env:"STRIP_DRIVER"`
	StripPixels     int    `help:"Number of pixels" default:"320" toml:"strip.pixels" env:"STRIP_PIXELS"`
	StripBrightness string `help:"Brightness between 0 and 1" default:"0.1" toml:"strip.brightness" env:"STRIP_BRIGHTNESS"`
	StripAddress    string `help:"OPC server address" default:"localhost:7890" toml:"strip.address" env:"STRIP_ADDRESS"`
	StripChannel    int    `help:"OPC channel" default:"0" toml:"strip.channel" env:"STRIP_CHANNEL"`

	// Loop settings
	LoopFrameInterval string `help:"Pause between animation frames" default:"10ms" toml:"loop.frame_interval" env:"LOOP_FRAME_INTERVAL"`

	// Cloud settings
	FeedsNames  string `help:"Comma separated temperature feeds" default:"upstairs,downstairs,basement" toml:"feeds.names" env:"FEEDS_NAMES"`
	TimeOnStart bool   `help:"Seed the clock from the time service at startup" default:"true" toml:"time.on_start" env:"TIME_ON_START"`

	// Status LED settings
	StatusLED bool `help:"Drive the board status LED from connectivity" default:"true" toml:"status.enabled" env:"STATUS_ENABLED"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingTransport  string `help:"Transport logging level" default:"info" toml:"logging.transport" env:"LOGGING_TRANSPORT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingLoop       string `help:"Control loop logging level" default:"info" toml:"logging.loop" env:"LOGGING_LOOP"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingCloud      string `help:"Time and feed client logging level" default:"info" toml:"logging.cloud" env:"LOGGING_CLOUD"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:  o.LoggingLevel,
		Format: o.LoggingFormat,
		Modules: map[string]string{
			"transport":  o.LoggingTransport,
			"supervisor": o.LoggingSupervisor,
			"loop":       o.LoggingLoop,
			"api":        o.LoggingAPI,
			"http":       o.LoggingAPI,
			"timesync":   o.LoggingCloud,
			"feeds":      o.LoggingCloud,
		},
	}
}

func (o *Options) stripConfig() (led.StripConfig, error) {
	brightness, err := strconv.ParseFloat(o.StripBrightness, 64)
	if err != nil || brightness < 0 || brightness > 1 {
		return led.StripConfig{}, faults.Configuration("strip", "brightness must be a number between 0 and 1, got "+strconv.Quote(o.StripBrightness))
	}
	if o.StripChannel < 0 || o.StripChannel > 255 {
		return led.StripConfig{}, faults.Configuration("strip", "OPC channel must be between 0 and 255, got "+strconv.Itoa(o.StripChannel))
	}
	return led.StripConfig{
		Driver:     o.StripDriver,
		Pixels:     o.StripPixels,
		Brightness: brightness,
		Address:    o.StripAddress,
		Channel:    uint8(o.StripChannel),
	}, nil
}

func (o *Options) transportConfig() transport.Config {
	return transport.Config{
		Backend:   o.TransportBackend,
		Serial:    transport.SerialConfig{Port: o.TransportSerialPort, BaudRate: o.TransportBaudRate},
		Interface: o.TransportInterface,
	}
}

func (o *Options) retryPolicy() supervisor.Policy {
	policy := supervisor.DefaultPolicy()
	if d, err := time.ParseDuration(o.TransportRetryInterval); err == nil && d > 0 {
		policy.RetryInterval = d
	}
	policy.MaxAttempts = o.TransportMaxAttempts
	return policy
}

func (o *Options) feedNames() []string {
	var names []string
	for name := range strings.SplitSeq(o.FeedsNames, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return feeds.DefaultFeeds
	}
	return names
}

// offline stands in for the supervisor when no transport could be opened.
type offline struct{}

func (offline) EnsureConnected(context.Context) error { return nil }

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	var root *cobra.Command

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, root); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		ctx, cancel := context.WithCancel(context.Background())

		eventBus := events.New()
		eventCollector := collectors.NewEventCollector(eventBus)
		notifier := systemd.NewNotifier()

		var statusManager *status.Manager
		if opts.StatusLED {
			statusManager = status.NewManager(status.New("", logger), eventBus, logger)
		}

		var watcher *config.Watcher[logging.Config]
		if opts.Config != "" {
			watcher = config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logger)
			watcher.OnReload(func(cfg logging.Config) {
				logger.Info("Reloading logging configuration", "level", cfg.Level)
				logging.Initialize(cfg)
			})
		}

		var server *api.Server
		var stripCloser interface{ Close() error }
		var handle transport.Handle

		hooks.OnStart(func() {
			defer cancel()

			if err := config.CheckStaticDir(opts.StaticDir); err != nil {
				fatal(logger, "Static assets missing", err)
			}
			creds, err := config.LoadCredentials(opts.Secrets)
			if err != nil {
				fatal(logger, "Failed to load secrets", err)
			}
			logger.Debug("Loaded credentials", "credentials", creds)

			stripCfg, err := opts.stripConfig()
			if err != nil {
				fatal(logger, "Invalid strip configuration", err)
			}
			strip, err := led.NewStrip(stripCfg)
			if err != nil {
				fatal(logger, "Failed to create strip", err)
			}
			if c, ok := strip.(interface{ Close() error }); ok {
				stripCloser = c
			}
			if c, ok := strip.(interface{ Connect() error }); ok {
				if err := c.Connect(); err != nil {
					logger.Warn("Strip not reachable, redialing in the background", "error", err)
				}
			}

			palette := led.NewPalette(led.Blue, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
			state := led.NewState(strip, palette, led.Blue)
			state.Fill(led.Blue)
			if err := state.Render(time.Now()); err != nil {
				logger.Warn("Initial fill failed", "error", err)
			}

			eventCollector.Start()
			if statusManager != nil {
				statusManager.Start()
			}
			if watcher != nil {
				if err := watcher.Start(); err != nil {
					logger.Warn("Config watcher not started", "error", err)
				}
			}

			var sup loop.Supervisor = offline{}
			apiOpts := &api.Options{
				AuthUsername:      opts.AuthUsername,
				AuthPassword:      opts.AuthPassword,
				StaticDir:         opts.StaticDir,
				Routes:            api.DefaultRoutes(palette),
				FeedNames:         opts.feedNames(),
				EventBus:          eventBus,
				PrometheusHandler: exporters.HTTPHandler(),
			}

			initial := led.EffectRainbow
			handle, err = transport.New(ctx, opts.transportConfig(), logging.GetLogger("transport"))
			switch {
			case err == nil:
				s := supervisor.New(handle, creds,
					supervisor.WithPolicy(opts.retryPolicy()),
					supervisor.WithPublisher(eventBus))
				sup = s
				initial = led.EffectRainbowChase

				identity, _ := transport.LogNetworks(ctx, logger, handle)
				apiOpts.Firmware = identity.Firmware

				notifier.Status("connecting to " + creds.SSID)
				if err := s.EnsureConnected(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					logger.Error("Network not connected, continuing offline", "error", err)
				}

				client := handle.NewHTTPClient()
				apiOpts.Network = handle
				apiOpts.Transport = string(handle.Kind())
				apiOpts.Time = timesync.New(creds, s, client)
				apiOpts.Feeds = feeds.New(creds, s, client)
			case faults.IsConfiguration(err):
				fatal(logger, "Invalid transport configuration", err)
			default:
				logger.Warn("No network transport available, running offline", "error", err)
			}

			if err := state.Select(initial); err != nil {
				logger.Error("Failed to select initial effect", "effect", initial, "error", err)
			}

			clock := timesync.NewSoftClock()
			apiOpts.Clock = clock

			frameInterval, err := time.ParseDuration(opts.LoopFrameInterval)
			if err != nil {
				frameInterval = loop.DefaultFrameInterval
			}
			controlLoop := loop.New(state, apiOpts.Routes, sup,
				loop.WithFrameInterval(frameInterval),
				loop.WithPublisher(eventBus),
				loop.WithWatchdog(notifier.Watchdog))
			apiOpts.Loop = controlLoop

			server = api.NewServer(apiOpts)

			if opts.TimeOnStart && apiOpts.Time != nil {
				go func() {
					if _, err := apiOpts.Time.FetchLocalTime(ctx, "", clock); err != nil {
						logger.Warn("Could not seed clock", "error", err)
					}
				}()
			}

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "port", opts.Port)
				serverErr <- server.Start(opts.Port)
			}()

			notifier.Ready()
			notifier.Status("running " + initial)

			loopErr := make(chan error, 1)
			go func() { loopErr <- controlLoop.Run(ctx) }()

			select {
			case err := <-serverErr:
				if err != nil {
					fatal(logger, "Failed to start HTTP server", err)
				}
			case err := <-loopErr:
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Control loop stopped", "error", err)
				}
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			notifier.Stopping()
			cancel()

			if server != nil {
				if err := server.Stop(); err != nil {
					logger.Error("Error stopping HTTP server", "error", err)
				}
			}
			if watcher != nil {
				if err := watcher.Stop(); err != nil {
					logger.Warn("Error stopping config watcher", "error", err)
				}
			}
			if statusManager != nil {
				statusManager.Stop()
			}
			eventCollector.Stop()
			if stripCloser != nil {
				if err := stripCloser.Close(); err != nil {
					logger.Warn("Error closing strip", "error", err)
				}
			}
			if handle != nil {
				if err := handle.Close(); err != nil {
					logger.Warn("Error closing transport", "error", err)
				}
			}
		})
	})

	root = cli.Root()
	root.Use = "lednode"
	root.Short = "LED strip controller with network effects control"

	root.AddCommand(cmd.CreateScanCmd())
	root.AddCommand(cmd.CreateTimeCmd())
	root.AddCommand(cmd.CreateTempsCmd())
	root.AddCommand(cmd.CreateUpdateCmd())

	cli.Run()
}
