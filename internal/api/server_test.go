package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/smazurov/lednode/internal/api/models"
	"github.com/smazurov/lednode/internal/events"
	"github.com/smazurov/lednode/internal/faults"
	"github.com/smazurov/lednode/internal/led"
	"github.com/smazurov/lednode/internal/loop"
	"github.com/smazurov/lednode/internal/timesync"
)

type noopSupervisor struct{}

func (noopSupervisor) EnsureConnected(context.Context) error { return nil }

type fakeNetwork bool

func (f fakeNetwork) IsConnected(context.Context) bool { return bool(f) }

type fakeTime struct {
	sample timesync.TimeSample
	err    error
	gotLoc string
}

func (f *fakeTime) FetchLocalTime(_ context.Context, location string, sink timesync.ClockSink) (timesync.TimeSample, error) {
	f.gotLoc = location
	if f.err != nil {
		return timesync.TimeSample{}, f.err
	}
	if sink != nil {
		sink.SetTime(f.sample)
	}
	return f.sample, nil
}

type fakeFeeds struct {
	values  map[string]*float64
	weather string
	err     error
}

func (f *fakeFeeds) FetchFeeds(_ context.Context, names []string) map[string]*float64 {
	out := make(map[string]*float64, len(names))
	for _, n := range names {
		out[n] = f.values[n]
	}
	return out
}

func (f *fakeFeeds) FetchWeather(context.Context, string) (string, error) {
	return f.weather, f.err
}

// startLoop runs a real control loop over a memory strip for the test.
func startLoop(t *testing.T) (*loop.Loop, loop.Routes, *led.MemoryStrip) {
	t.Helper()
	strip := led.NewMemoryStrip(8, 1)
	palette := led.NewPalette(led.Blue, rand.New(rand.NewPCG(5, 6)))
	state := led.NewState(strip, palette, led.Blue)
	routes := DefaultRoutes(palette)
	l := loop.New(state, routes, noopSupervisor{}, loop.WithFrameInterval(0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l, routes, strip
}

func newTestServer(t *testing.T, mutate func(*Options)) (humatest.TestAPI, *led.MemoryStrip) {
	t.Helper()
	l, routes, strip := startLoop(t)
	opts := &Options{
		Routes:    routes,
		Loop:      l,
		Network:   fakeNetwork(true),
		Transport: "coprocessor",
		FeedNames: []string{"upstairs", "downstairs", "basement"},
	}
	if mutate != nil {
		mutate(opts)
	}
	srv := NewServer(opts)
	return humatest.Wrap(t, srv.GetAPI()), strip
}

func getState(t *testing.T, api humatest.TestAPI) led.Snapshot {
	t.Helper()
	resp := api.Get(RouteState)
	if resp.Code != http.StatusOK {
		t.Fatalf("GET %s = %d: %s", RouteState, resp.Code, resp.Body.String())
	}
	var snap led.Snapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestDefaultRoutesCoverEveryEffect(t *testing.T) {
	palette := led.NewPalette(led.Blue, rand.New(rand.NewPCG(1, 1)))
	routes := DefaultRoutes(palette)

	want := []string{RouteLEDOn, RouteLEDOff, RouteColor, RouteState,
		"/solid", "/blink", "/chase", "/comet", "/pulse", "/colorcycle",
		"/rainbow", "/rainbowchase", "/rainbowcomet", "/rainbowsparkle"}
	for _, path := range want {
		if _, ok := routes[path]; !ok {
			t.Errorf("missing route %s", path)
		}
	}
	if len(routes) != len(want) {
		t.Errorf("len(routes) = %d, want %d", len(routes), len(want))
	}
	if routes[RouteColor].Method != http.MethodPost {
		t.Errorf("color route method = %s", routes[RouteColor].Method)
	}
}

func TestEffectRoutes(t *testing.T) {
	api, _ := newTestServer(t, nil)

	for _, name := range []string{"solid", "rainbowchase", "rainbowsparkle"} {
		resp := api.Get("/" + name)
		if resp.Code != http.StatusOK {
			t.Fatalf("GET /%s = %d: %s", name, resp.Code, resp.Body.String())
		}
		if resp.Body.Len() != 0 {
			t.Errorf("GET /%s body = %q, want empty", name, resp.Body.String())
		}
		if got := getState(t, api).Active; got != name {
			t.Errorf("active after /%s = %q", name, got)
		}
	}
}

func TestColorMemoryThroughAPI(t *testing.T) {
	api, _ := newTestServer(t, nil)

	api.Get("/solid")
	if resp := api.Post(RouteColor, map[string]int{"r": 255, "g": 0, "b": 0}); resp.Code != http.StatusOK {
		t.Fatalf("POST color = %d: %s", resp.Code, resp.Body.String())
	}
	api.Get("/blink")
	api.Post(RouteColor, map[string]int{"r": 0, "g": 255, "b": 0})
	api.Get("/solid")

	snap := getState(t, api)
	if snap.Active != "solid" {
		t.Errorf("active = %q", snap.Active)
	}
	if got := snap.Colors["solid"]; got != (led.Color{R: 255}) {
		t.Errorf("solid color = %v", got)
	}
	if got := snap.Colors["blink"]; got != (led.Color{G: 255}) {
		t.Errorf("blink color = %v", got)
	}
	if got := snap.Colors["chase"]; got != led.Blue {
		t.Errorf("untouched chase color = %v", got)
	}
}

func TestColorRejectsBadInput(t *testing.T) {
	api, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"out of range", map[string]int{"r": 256, "g": 0, "b": 0}},
		{"negative", map[string]int{"r": -1, "g": 0, "b": 0}},
		{"missing channel", map[string]int{"r": 1, "g": 2}},
		{"wrong type", map[string]string{"r": "red", "g": "0", "b": "0"}},
		{"malformed", strings.NewReader(`{"r":`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.Post(RouteColor, "Content-Type: application/json", tt.body)
			if resp.Code != http.StatusBadRequest && resp.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 400 or 422: %s", resp.Code, resp.Body.String())
			}
		})
	}
	if got := getState(t, api).LastColor; got != led.Blue {
		t.Errorf("last color changed to %v by rejected requests", got)
	}
}

func TestLEDOnOff(t *testing.T) {
	api, strip := newTestServer(t, nil)

	api.Get("/pulse")
	api.Post(RouteColor, map[string]int{"r": 10, "g": 20, "b": 30})

	if resp := api.Get(RouteLEDOn); resp.Code != http.StatusOK {
		t.Fatalf("GET %s = %d", RouteLEDOn, resp.Code)
	}
	snap := getState(t, api)
	if snap.Active != "" {
		t.Errorf("active after led_on = %q", snap.Active)
	}
	// The state route is answered after the next render of the fill.
	for i, c := range strip.LastFrame() {
		if c != (led.Color{R: 10, G: 20, B: 30}) {
			t.Fatalf("pixel %d = %v after led_on", i, c)
		}
	}

	api.Get(RouteLEDOff)
	getState(t, api)
	for i, c := range strip.LastFrame() {
		if c != led.Black {
			t.Fatalf("pixel %d = %v after led_off", i, c)
		}
	}
}

func TestHealthAndVersion(t *testing.T) {
	api, _ := newTestServer(t, func(o *Options) {
		o.Network = fakeNetwork(false)
		o.Firmware = "AT version:2.2.0.0"
	})

	resp := api.Get("/api/health")
	var health models.HealthData
	if err := json.Unmarshal(resp.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "degraded" || health.Connected || health.Transport != "coprocessor" {
		t.Errorf("health = %+v", health)
	}

	resp = api.Get("/api/version")
	if !strings.Contains(resp.Body.String(), "AT version:2.2.0.0") {
		t.Errorf("version = %s", resp.Body.String())
	}
}

func TestTimeRoute(t *testing.T) {
	clock := timesync.NewSoftClock()
	src := &fakeTime{sample: timesync.TimeSample{Year: 2024, Month: 3, Day: 5, Hour: 14, Minute: 22, Second: 7, YearDay: 64, Weekday: 2}}
	api, _ := newTestServer(t, func(o *Options) {
		o.Time = src
		o.Clock = clock
	})

	resp := api.Get("/api/time?location=Europe/Oslo")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var data models.TimeData
	if err := json.Unmarshal(resp.Body.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if data.Local != "2024-03-05 14:22:07" || data.Sample.YearDay != 64 {
		t.Errorf("time = %+v", data)
	}
	if src.gotLoc != "Europe/Oslo" {
		t.Errorf("location = %q", src.gotLoc)
	}
	if !clock.IsSet() {
		t.Error("clock not seeded")
	}
}

func TestCloudErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", faults.Configuration("fetch time", "missing aio_key"), http.StatusServiceUnavailable},
		{"connectivity", faults.Connectivity("fetch time", errors.New("down")), http.StatusServiceUnavailable},
		{"service", faults.Service("fetch time", "HTTP 500", nil), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api, _ := newTestServer(t, func(o *Options) {
				o.Time = &fakeTime{err: tt.err}
				o.Feeds = &fakeFeeds{err: tt.err}
			})
			if resp := api.Get("/api/time"); resp.Code != tt.want {
				t.Errorf("time status = %d, want %d", resp.Code, tt.want)
			}
			if resp := api.Get("/api/weather"); resp.Code != tt.want {
				t.Errorf("weather status = %d, want %d", resp.Code, tt.want)
			}
		})
	}
}

func TestTemperaturesRoute(t *testing.T) {
	up, base := 21.5, 17.0
	api, _ := newTestServer(t, func(o *Options) {
		o.Feeds = &fakeFeeds{values: map[string]*float64{"upstairs": &up, "basement": &base}, weather: "26 F"}
	})

	resp := api.Get("/api/temperatures")
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.Code, resp.Body.String())
	}
	var data models.TemperaturesData
	if err := json.Unmarshal(resp.Body.Bytes(), &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Feeds) != 3 || data.Feeds["downstairs"] != nil || *data.Feeds["upstairs"] != 21.5 {
		t.Errorf("feeds = %+v", data.Feeds)
	}
	if len(data.Missing) != 1 || data.Missing[0] != "downstairs" {
		t.Errorf("missing = %v", data.Missing)
	}

	resp = api.Get("/api/weather")
	if !strings.Contains(resp.Body.String(), `"26 F"`) {
		t.Errorf("weather = %s", resp.Body.String())
	}
}

func TestCloudRoutesUnavailable(t *testing.T) {
	api, _ := newTestServer(t, nil)
	for _, path := range []string{"/api/time", "/api/temperatures", "/api/weather"} {
		if resp := api.Get(path); resp.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, resp.Code)
		}
	}
}

func TestBasicAuthGuardsCloudRoutesOnly(t *testing.T) {
	api, _ := newTestServer(t, func(o *Options) {
		o.AuthUsername = "admin"
		o.AuthPassword = "secret"
		o.Feeds = &fakeFeeds{weather: "40 F"}
	})

	if resp := api.Get("/api/weather"); resp.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated weather = %d, want 401", resp.Code)
	}
	auth := "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	if resp := api.Get("/api/weather", auth); resp.Code != http.StatusOK {
		t.Errorf("authenticated weather = %d", resp.Code)
	}
	if resp := api.Get("/rainbow"); resp.Code != http.StatusOK {
		t.Errorf("command route required auth: %d", resp.Code)
	}
}

func TestStaticDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<title>lednode</title>"), 0o644); err != nil {
		t.Fatal(err)
	}
	api, _ := newTestServer(t, func(o *Options) { o.StaticDir = dir })

	if resp := api.Get("/"); resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "lednode") {
		t.Errorf("GET / = %d %q", resp.Code, resp.Body.String())
	}
	if resp := api.Get("/api/nothing"); resp.Code != http.StatusNotFound {
		t.Errorf("GET /api/nothing = %d, want 404", resp.Code)
	}
}

func TestEventBusOptional(t *testing.T) {
	api, _ := newTestServer(t, func(o *Options) { o.EventBus = events.New() })
	resp := api.Get("/openapi.json")
	if !strings.Contains(resp.Body.String(), "events-stream") {
		t.Error("events stream not registered")
	}
}

func TestStopBeforeStart(t *testing.T) {
	srv := NewServer(&Options{})
	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Start("127.0.0.1:0") }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start after Stop = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start kept serving after Stop")
	}
}

func TestStopWhileServing(t *testing.T) {
	l, routes, _ := startLoop(t)
	srv := NewServer(&Options{Routes: routes, Loop: l, Network: fakeNetwork(true)})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /api/health = %d", resp.StatusCode)
	}

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}
}
