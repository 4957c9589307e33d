// Package timesync fetches the local time from the Adafruit IO strftime
// integration and seeds a clock with it.
package timesync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/lednode/internal/config"
	"github.com/smazurov/lednode/internal/faults"
	"github.com/smazurov/lednode/internal/logging"
	"github.com/smazurov/lednode/internal/metrics"
	"github.com/smazurov/lednode/internal/version"
)

const (
	// DefaultBaseURL is the Adafruit IO API host.
	DefaultBaseURL = "https://io.adafruit.com"
	// DefaultLocation is used when neither the caller nor the secrets file
	// name a timezone.
	DefaultLocation = "America/Menominee"
	// LocalTimeFormat is the strftime format FetchLocalTime asks for.
	LocalTimeFormat = "%Y-%m-%d %H:%M:%S.%L %j %u %z %Z"

	requestTimeout = 10 * time.Second
	metricsService = "time"
)

// Ensurer makes sure the network is up before a request goes out.
type Ensurer interface {
	EnsureConnected(ctx context.Context) error
}

// TimeSample is the broken-down local time reported by the service. It has
// no timezone attached.
type TimeSample struct {
	Year    int `json:"year" example:"2024"`
	Month   int `json:"month" example:"3"`
	Day     int `json:"day" example:"5"`
	Hour    int `json:"hour" example:"14"`
	Minute  int `json:"minute" example:"22"`
	Second  int `json:"second" example:"7"`
	Weekday int `json:"weekday" example:"2" doc:"ISO weekday, Monday is 1"`
	YearDay int `json:"yearday" example:"64" doc:"Day of the year, January 1 is 1"`
}

// Time returns the sample as a wall-clock time in UTC.
func (s TimeSample) Time() time.Time {
	return time.Date(s.Year, time.Month(s.Month), s.Day, s.Hour, s.Minute, s.Second, 0, time.UTC)
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// Client talks to the time service over whatever HTTP client the transport
// provides.
type Client struct {
	creds   config.Credentials
	ensurer Ensurer
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

// New creates a time client. ensurer may be nil when the network is known
// to be up.
func New(creds config.Credentials, ensurer Ensurer, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		creds:   creds,
		ensurer: ensurer,
		http:    httpClient,
		baseURL: DefaultBaseURL,
		logger:  logging.GetLogger("timesync"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URLEncode escapes a strftime format the way the time service expects:
// spaces become '+', then '%' and ':' are percent-encoded.
func URLEncode(s string) string {
	s = strings.ReplaceAll(s, " ", "+")
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, ":", "%3A")
	return s
}

// FetchFormattedTime returns the current time at location rendered with the
// strftime format. An empty location falls back to the configured timezone
// and then to DefaultLocation.
func (c *Client) FetchFormattedTime(ctx context.Context, format, location string) (string, error) {
	const op = "fetch time"

	if err := c.creds.RequireAIO(op); err != nil {
		return "", err
	}
	if c.ensurer != nil {
		if err := c.ensurer.EnsureConnected(ctx); err != nil {
			return "", err
		}
	}

	if location == "" {
		location = c.creds.Timezone
	}
	if location == "" {
		location = DefaultLocation
	}

	apiURL := fmt.Sprintf("%s/api/v2/%s/integrations/time/strftime?x-aio-key=%s&tz=%s&fmt=%s",
		c.baseURL, c.creds.AIOUsername, c.creds.AIOKey, location, URLEncode(format))

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("build time request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.IncCloudRequest(metricsService, metrics.OutcomeError)
		return "", faults.Connectivity(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncCloudRequest(metricsService, metrics.OutcomeError)
		return "", faults.Connectivity(op, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.IncCloudRequest(metricsService, metrics.OutcomeError)
		c.logger.Warn("Time service returned an error", "status", resp.StatusCode, "location", location)
		return "", faults.Service(op,
			fmt.Sprintf("error connecting to Adafruit IO, status %d, the response was: %s", resp.StatusCode, body), nil)
	}

	metrics.IncCloudRequest(metricsService, metrics.OutcomeOK)
	return string(body), nil
}

// FetchLocalTime fetches and parses the current time at location. When sink
// is not nil it is set to the result.
func (c *Client) FetchLocalTime(ctx context.Context, location string, sink ClockSink) (TimeSample, error) {
	reply, err := c.FetchFormattedTime(ctx, LocalTimeFormat, location)
	if err != nil {
		return TimeSample{}, err
	}

	sample, err := ParseReply(reply)
	if err != nil {
		return TimeSample{}, err
	}
	c.logger.Debug("Fetched local time", "time", sample.Time().Format(time.DateTime), "yday", sample.YearDay, "wday", sample.Weekday)

	if sink != nil {
		c.logger.Info("Setting clock", "time", sample.Time().Format(time.DateTime))
		sink.SetTime(sample)
	}
	return sample, nil
}

// ParseReply parses a reply rendered with LocalTimeFormat, for example
// "2024-03-05 14:22:07.123 064 2 +0000 UTC".
func ParseReply(reply string) (TimeSample, error) {
	const op = "parse time"

	fields := strings.Split(strings.TrimSpace(reply), " ")
	if len(fields) < 4 {
		return TimeSample{}, faults.Service(op, fmt.Sprintf("unexpected reply %q", reply), nil)
	}

	date, err := atoiAll(strings.Split(fields[0], "-"), 3)
	if err != nil {
		return TimeSample{}, faults.Service(op, fmt.Sprintf("bad date %q", fields[0]), err)
	}
	clock, _, _ := strings.Cut(fields[1], ".")
	hms, err := atoiAll(strings.Split(clock, ":"), 3)
	if err != nil {
		return TimeSample{}, faults.Service(op, fmt.Sprintf("bad time %q", fields[1]), err)
	}
	days, err := atoiAll(fields[2:4], 2)
	if err != nil {
		return TimeSample{}, faults.Service(op, fmt.Sprintf("bad day fields %q", fields[2:4]), err)
	}

	return TimeSample{
		Year:    date[0],
		Month:   date[1],
		Day:     date[2],
		Hour:    hms[0],
		Minute:  hms[1],
		Second:  hms[2],
		YearDay: days[0],
		Weekday: days[1],
	}, nil
}

func atoiAll(parts []string, want int) ([]int, error) {
	if len(parts) != want {
		return nil, fmt.Errorf("want %d fields, got %d", want, len(parts))
	}
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
