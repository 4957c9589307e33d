package feeds

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"github.com/smazurov/lednode/internal/faults"
	"github.com/smazurov/lednode/internal/metrics"
)

type weatherReply struct {
	Main *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
}

// FetchWeather returns the outdoor temperature at location in whole degrees
// Fahrenheit, formatted like "26 F". An empty location uses the one from the
// secrets file.
func (c *Client) FetchWeather(ctx context.Context, location string) (string, error) {
	const op = "fetch weather"

	creds := c.creds
	if location != "" {
		creds.OpenWeatherLocation = location
	}
	if err := creds.RequireOpenWeather(op); err != nil {
		return "", err
	}
	if c.ensurer != nil {
		if err := c.ensurer.EnsureConnected(ctx); err != nil {
			return "", err
		}
	}

	q := url.Values{}
	q.Set("q", creds.OpenWeatherLocation)
	q.Set("appid", creds.OpenWeatherToken)
	q.Set("units", "metric")

	var reply weatherReply
	err := c.getJSON(ctx, c.weatherURL+"/data/2.5/weather?"+q.Encode(), op, &reply)
	if err == nil && (reply.Main == nil || reply.Main.Temp == nil) {
		err = faults.Service(op, "response has no main.temp", nil)
	}
	if err != nil {
		metrics.IncCloudRequest("weather", metrics.OutcomeError)
		return "", err
	}
	metrics.IncCloudRequest("weather", metrics.OutcomeOK)

	return FormatFahrenheit(*reply.Main.Temp), nil
}

// FormatFahrenheit converts Celsius to Fahrenheit, rounds half to even and
// appends the unit.
func FormatFahrenheit(celsius float64) string {
	f := celsius*9/5 + 32
	return fmt.Sprintf("%d F", int(math.RoundToEven(f)))
}
