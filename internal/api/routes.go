package api

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/lednode/internal/api/models"
	"github.com/smazurov/lednode/internal/faults"
	"github.com/smazurov/lednode/internal/led"
	"github.com/smazurov/lednode/internal/loop"
)

// Command routes.
const (
	RouteLEDOn  = "/led_on"
	RouteLEDOff = "/led_off"
	RouteColor  = "/ajax/ledcolor"
	RouteState  = "/api/state"
)

// DefaultRoutes builds the command table: on, off, color, state and one
// route per effect in palette.
func DefaultRoutes(palette *led.Palette) loop.Routes {
	routes := loop.Routes{
		RouteLEDOn: {Method: http.MethodGet, Handler: func(s *led.State, _ []byte) (any, error) {
			s.On()
			return nil, nil
		}},
		RouteLEDOff: {Method: http.MethodGet, Handler: func(s *led.State, _ []byte) (any, error) {
			s.Off()
			return nil, nil
		}},
		RouteColor: {Method: http.MethodPost, Handler: setColor},
		RouteState: {Method: http.MethodGet, ReadOnly: true, Handler: func(s *led.State, _ []byte) (any, error) {
			return s.Snapshot(), nil
		}},
	}
	for _, name := range palette.Names() {
		routes["/"+name] = loop.Route{Method: http.MethodGet, Handler: func(s *led.State, _ []byte) (any, error) {
			return nil, s.Select(name)
		}}
	}
	return routes
}

func setColor(s *led.State, body []byte) (any, error) {
	var in models.ColorBody
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, faults.BadRequest("invalid color: %v", err)
	}
	for _, v := range []int{in.R, in.G, in.B} {
		if v < 0 || v > 255 {
			return nil, faults.BadRequest("color channel %d out of range 0-255", v)
		}
	}
	s.SetColor(led.Color{R: uint8(in.R), G: uint8(in.G), B: uint8(in.B)})
	return nil, nil
}

// registerCommandRoutes exposes every state-changing entry of the command
// table. The state route is registered with the diagnostics.
func (s *Server) registerCommandRoutes() {
	for _, path := range slices.Sorted(maps.Keys(s.options.Routes)) {
		route := s.options.Routes[path]
		if route.ReadOnly {
			continue
		}

		op := huma.Operation{
			OperationID:   operationID(path),
			Method:        route.Method,
			Path:          path,
			DefaultStatus: http.StatusOK,
			Tags:          []string{"commands"},
			Errors:        []int{400, 422, 500, 503},
		}

		switch {
		case path == RouteColor:
			op.Summary = "Set color"
			op.Description = "Set the color of the active effect and the color used by led_on"
			huma.Register(s.api, op, func(ctx context.Context, input *models.ColorRequest) (*struct{}, error) {
				body, err := json.Marshal(input.Body)
				if err != nil {
					return nil, huma.Error400BadRequest("invalid color", err)
				}
				return s.command(ctx, path, body)
			})
		case route.Method == http.MethodPost:
			op.Summary = "Command " + path
			huma.Register(s.api, op, func(ctx context.Context, input *struct{ RawBody []byte }) (*struct{}, error) {
				return s.command(ctx, path, input.RawBody)
			})
		default:
			op.Summary = commandSummary(path)
			huma.Register(s.api, op, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
				return s.command(ctx, path, nil)
			})
		}
	}
}

func (s *Server) command(ctx context.Context, path string, body []byte) (*struct{}, error) {
	if _, err := s.submit(ctx, path, body); err != nil {
		return nil, err
	}
	return &struct{}{}, nil
}

// submit runs a command on the loop and maps its status to an API error.
func (s *Server) submit(ctx context.Context, path string, body []byte) (any, error) {
	res := s.options.Loop.Submit(ctx, path, body)
	if res.Status == http.StatusOK {
		return res.Body, nil
	}
	msg := http.StatusText(res.Status)
	if res.Err != nil {
		return nil, huma.NewError(res.Status, msg, res.Err)
	}
	return nil, huma.NewError(res.Status, msg)
}

func operationID(path string) string {
	id := strings.Trim(path, "/")
	id = strings.NewReplacer("/", "-", "_", "-").Replace(id)
	return "command-" + id
}

func commandSummary(path string) string {
	switch path {
	case RouteLEDOn:
		return "Fill with the last color"
	case RouteLEDOff:
		return "Turn the strip off"
	}
	return fmt.Sprintf("Show the %s effect", strings.TrimPrefix(path, "/"))
}
