package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/lednode/internal/api/models"
	"github.com/smazurov/lednode/internal/faults"
	"github.com/smazurov/lednode/internal/led"
	"github.com/smazurov/lednode/internal/metrics"
	"github.com/smazurov/lednode/internal/version"
)

func (s *Server) registerDiagnosticRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Loop counters and network state",
		Tags:        []string{"health"},
	}, func(ctx context.Context, _ *struct{}) (*models.HealthResponse, error) {
		stats := metrics.GetLoopStats()
		data := models.HealthData{
			Status:       "ok",
			Transport:    s.options.Transport,
			Iterations:   stats.Iterations,
			Recoveries:   stats.Recoveries,
			LastRecovery: stats.LastRecovery,
			LastFault:    stats.LastFault,
		}
		if s.options.Network != nil {
			data.Connected = s.options.Network.IsConnected(ctx)
			if !data.Connected {
				data.Status = "degraded"
			}
		}
		return &models.HealthResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Build information and network hardware",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		info.Transport = s.options.Transport
		info.Firmware = s.options.Firmware
		return &models.VersionResponse{Body: info}, nil
	})

	if _, ok := s.options.Routes[RouteState]; ok {
		huma.Register(s.api, huma.Operation{
			OperationID: "get-state",
			Method:      http.MethodGet,
			Path:        RouteState,
			Summary:     "Animation state",
			Description: "Active effect, last color and the color remembered by every effect",
			Tags:        []string{"system"},
			Errors:      []int{503},
		}, func(ctx context.Context, _ *struct{}) (*models.StateResponse, error) {
			body, err := s.submit(ctx, RouteState, nil)
			if err != nil {
				return nil, err
			}
			snap, ok := body.(led.Snapshot)
			if !ok {
				return nil, huma.Error500InternalServerError("unexpected state reply")
			}
			return &models.StateResponse{Body: snap}, nil
		})
	}
}

func (s *Server) registerCloudRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-time",
		Method:      http.MethodGet,
		Path:        "/api/time",
		Summary:     "Local time",
		Description: "Fetch the local time from the time service and seed the device clock",
		Tags:        []string{"cloud"},
		Security:    withAuth(),
		Errors:      []int{401, 502, 503},
	}, func(ctx context.Context, input *models.LocationQuery) (*models.TimeResponse, error) {
		if s.options.Time == nil {
			return nil, huma.Error503ServiceUnavailable("time service not available")
		}
		sample, err := s.options.Time.FetchLocalTime(ctx, input.Location, s.options.Clock)
		if err != nil {
			return nil, cloudError(err)
		}
		return &models.TimeResponse{Body: models.TimeData{
			Local:  sample.Time().Format(time.DateTime),
			Sample: sample,
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-temperatures",
		Method:      http.MethodGet,
		Path:        "/api/temperatures",
		Summary:     "Indoor temperatures",
		Description: "Latest value of each temperature feed; feeds that cannot be read are null",
		Tags:        []string{"cloud"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, input *models.TemperaturesRequest) (*models.TemperaturesResponse, error) {
		if s.options.Feeds == nil {
			return nil, huma.Error503ServiceUnavailable("feed service not available")
		}
		names := input.Feeds
		if len(names) == 0 {
			names = s.options.FeedNames
		}
		values := s.options.Feeds.FetchFeeds(ctx, names)
		data := models.TemperaturesData{Feeds: values}
		for _, name := range names {
			if values[name] == nil {
				data.Missing = append(data.Missing, name)
			}
		}
		return &models.TemperaturesResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-weather",
		Method:      http.MethodGet,
		Path:        "/api/weather",
		Summary:     "Outdoor temperature",
		Tags:        []string{"cloud"},
		Security:    withAuth(),
		Errors:      []int{401, 502, 503},
	}, func(ctx context.Context, input *models.LocationQuery) (*models.WeatherResponse, error) {
		if s.options.Feeds == nil {
			return nil, huma.Error503ServiceUnavailable("weather service not available")
		}
		temp, err := s.options.Feeds.FetchWeather(ctx, input.Location)
		if err != nil {
			return nil, cloudError(err)
		}
		return &models.WeatherResponse{Body: models.WeatherData{Temperature: temp}}, nil
	})
}

// cloudError maps a cloud client error to an HTTP status.
func cloudError(err error) error {
	switch {
	case faults.IsConfiguration(err):
		return huma.Error503ServiceUnavailable("service not configured", err)
	case faults.IsConnectivity(err), errors.Is(err, context.DeadlineExceeded):
		return huma.Error503ServiceUnavailable("network unavailable", err)
	case faults.IsService(err):
		return huma.Error502BadGateway("upstream service failed", err)
	}
	return huma.Error500InternalServerError("request failed", err)
}
