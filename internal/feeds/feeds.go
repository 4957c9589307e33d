// Package feeds reads indoor temperatures from Adafruit IO feeds and the
// outdoor temperature from OpenWeatherMap.
package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
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
	// DefaultAIOBaseURL is the Adafruit IO API host.
	DefaultAIOBaseURL = "https://io.adafruit.com"
	// DefaultWeatherBaseURL is the OpenWeatherMap API host.
	DefaultWeatherBaseURL = "http://api.openweathermap.org"

	requestTimeout = 10 * time.Second
)

// DefaultFeeds are the indoor temperature feeds read at startup.
var DefaultFeeds = []string{"upstairs", "downstairs", "basement"}

// Ensurer makes sure the network is up before a request goes out.
type Ensurer interface {
	EnsureConnected(ctx context.Context) error
}

// Option configures a Client.
type Option func(*Client)

// WithAIOBaseURL points feed lookups at a different host.
func WithAIOBaseURL(u string) Option {
	return func(c *Client) { c.aioURL = strings.TrimRight(u, "/") }
}

// WithWeatherBaseURL points weather lookups at a different host.
func WithWeatherBaseURL(u string) Option {
	return func(c *Client) { c.weatherURL = strings.TrimRight(u, "/") }
}

// Client reads feeds and weather over the transport's HTTP client.
type Client struct {
	creds      config.Credentials
	ensurer    Ensurer
	http       *http.Client
	aioURL     string
	weatherURL string
	logger     *slog.Logger
}

// New creates a feed client. ensurer may be nil.
func New(creds config.Credentials, ensurer Ensurer, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		creds:      creds,
		ensurer:    ensurer,
		http:       httpClient,
		aioURL:     DefaultAIOBaseURL,
		weatherURL: DefaultWeatherBaseURL,
		logger:     logging.GetLogger("feeds"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type feedDescriptor struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type feedData struct {
	Value json.RawMessage `json:"value"`
}

// FetchFeeds returns the latest value of every named feed. A feed that cannot
// be read maps to nil; the call itself never fails.
func (c *Client) FetchFeeds(ctx context.Context, names []string) map[string]*float64 {
	out := make(map[string]*float64, len(names))
	for _, name := range names {
		out[name] = nil
	}
	defer c.http.CloseIdleConnections()

	if err := c.creds.RequireAIO("fetch feeds"); err != nil {
		c.logger.Warn("Skipping feed lookups", "error", err)
		return out
	}
	if c.ensurer != nil {
		if err := c.ensurer.EnsureConnected(ctx); err != nil {
			c.logger.Warn("Skipping feed lookups", "error", err)
			return out
		}
	}

	for _, name := range names {
		v, err := c.fetchFeed(ctx, name)
		if err != nil {
			metrics.IncCloudRequest("feeds", metrics.OutcomeMissing)
			c.logger.Warn("Can't get feed", "feed", name, "error", faults.PartialResult("fetch feed", err))
			continue
		}
		metrics.IncCloudRequest("feeds", metrics.OutcomeOK)
		out[name] = &v
	}
	return out
}

func (c *Client) fetchFeed(ctx context.Context, name string) (float64, error) {
	base := fmt.Sprintf("%s/api/v2/%s/feeds/", c.aioURL, url.PathEscape(c.creds.AIOUsername))

	var desc feedDescriptor
	if err := c.getJSON(ctx, base+url.PathEscape(name), "feed "+name, &desc); err != nil {
		return 0, err
	}
	if desc.Key == "" {
		return 0, faults.Service("feed "+name, "descriptor has no key", nil)
	}

	var data feedData
	if err := c.getJSON(ctx, base+url.PathEscape(desc.Key)+"/data/last", "feed "+desc.Key+" data", &data); err != nil {
		return 0, err
	}
	return parseValue(data.Value)
}

// parseValue accepts the value both as a JSON string and as a bare number.
func parseValue(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, faults.Service("feed value", fmt.Sprintf("not a number: %q", string(raw)), err)
	}
	return v, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL, op string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	if strings.HasPrefix(rawURL, c.aioURL) {
		req.Header.Set("X-AIO-Key", c.creds.AIOKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return faults.Connectivity(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return faults.Service(op, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return faults.Service(op, "failed to decode response", err)
	}
	return nil
}
