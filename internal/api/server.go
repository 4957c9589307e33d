// Package api exposes the command surface and diagnostics over HTTP. Command
// handlers never touch the LED state themselves: they hand a command to the
// control loop and wait for its answer.
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/lednode/internal/events"
	"github.com/smazurov/lednode/internal/logging"
	"github.com/smazurov/lednode/internal/loop"
	"github.com/smazurov/lednode/internal/timesync"
	"github.com/smazurov/lednode/ui"
)

// Commander runs commands on the control loop.
type Commander interface {
	Submit(ctx context.Context, route string, body []byte) loop.Result
}

// Connectivity reports whether the network is up.
type Connectivity interface {
	IsConnected(ctx context.Context) bool
}

// TimeSource fetches the local time.
type TimeSource interface {
	FetchLocalTime(ctx context.Context, location string, sink timesync.ClockSink) (timesync.TimeSample, error)
}

// FeedSource fetches temperatures.
type FeedSource interface {
	FetchFeeds(ctx context.Context, names []string) map[string]*float64
	FetchWeather(ctx context.Context, location string) (string, error)
}

// Options configures the server. Only Routes and Loop are required; the
// diagnostics backed by a nil source answer 503.
type Options struct {
	AuthUsername string
	AuthPassword string
	StaticDir    string

	Routes loop.Routes
	Loop   Commander

	Network   Connectivity
	Transport string
	Firmware  string
	Time      TimeSource
	Clock     timesync.ClockSink
	Feeds     FeedSource
	FeedNames []string
	EventBus  *events.Bus

	PrometheusHandler http.Handler
}

// Server is the HTTP API.
type Server struct {
	api        huma.API
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// basicAuthMiddleware checks HTTP basic credentials on operations that
// declare a security requirement.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	deny := func(ctx huma.Context, msg string, errs ...error) {
		ctx.SetHeader("WWW-Authenticate", `Basic realm="lednode"`)
		huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		var encoded string
		if header := ctx.Header("Authorization"); header != "" {
			var ok bool
			encoded, ok = strings.CutPrefix(header, "Basic ")
			if !ok {
				deny(ctx, "Invalid authentication type")
				return
			}
		} else {
			// EventSource cannot set headers.
			encoded = ctx.Query("auth")
		}
		if encoded == "" {
			deny(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			deny(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			deny(ctx, "Invalid credentials format")
			return
		}
		if user != username || pass != password {
			deny(ctx, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// NewServer builds the API on a fresh ServeMux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("lednode API", "1.0.0")
	config.Info.Description = "LED strip effects, color control and device diagnostics"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api: api,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()

	if opts.StaticDir != "" {
		static := ui.Dir(opts.StaticDir)
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api") {
				http.NotFound(w, r)
				return
			}
			static.ServeHTTP(w, r)
		})
	}

	return server
}

// GetAPI returns the Huma API instance
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called. It returns nil once stopped,
// including when Stop ran first.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	addr := ln.Addr().String()
	s.logger.Info("Starting lednode API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the listener and all connections. It is safe to call from
// another goroutine while Start runs.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	return s.httpServer.Close()
}

func (s *Server) registerRoutes() {
	s.registerDiagnosticRoutes()
	s.registerCommandRoutes()
	s.registerCloudRoutes()
	s.registerSSERoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
