package transport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/smazurov/lednode/internal/config"
	"github.com/smazurov/lednode/internal/faults"
)

func TestFrequencyToChannel(t *testing.T) {
	tests := []struct {
		mhz  uint32
		want int
	}{
		{2412, 1},
		{2437, 6},
		{2462, 11},
		{2484, 14},
		{5180, 36},
		{5745, 149},
		{5955, 1},
		{900, 0},
	}
	for _, tt := range tests {
		if got := frequencyToChannel(tt.mhz); got != tt.want {
			t.Errorf("frequencyToChannel(%d) = %d, want %d", tt.mhz, got, tt.want)
		}
	}
}

func TestStrengthToRSSI(t *testing.T) {
	tests := []struct {
		strength uint32
		want     int
	}{
		{100, -50},
		{70, -65},
		{0, -100},
		{250, -50},
	}
	for _, tt := range tests {
		if got := strengthToRSSI(tt.strength); got != tt.want {
			t.Errorf("strengthToRSSI(%d) = %d, want %d", tt.strength, got, tt.want)
		}
	}
}

func TestConnectionSettings(t *testing.T) {
	s := connectionSettings(config.Credentials{SSID: "home", Password: "secret"})

	if got := s["connection"]["type"].Value(); got != "802-11-wireless" {
		t.Errorf("connection.type = %v", got)
	}
	if got, _ := s["802-11-wireless"]["ssid"].Value().([]byte); string(got) != "home" {
		t.Errorf("ssid = %q", got)
	}
	if got := s["802-11-wireless-security"]["psk"].Value(); got != "secret" {
		t.Errorf("psk = %v", got)
	}

	open := connectionSettings(config.Credentials{SSID: "cafe"})
	if _, ok := open["802-11-wireless-security"]; ok {
		t.Error("open network should not carry a security section")
	}
}

// fakeNM scripts NetworkManager replies. activeStates is consumed one value
// per ActiveState call and the last value repeats.
type fakeNM struct {
	mu           sync.Mutex
	deviceState  uint32
	deviceErr    error
	accessPoint  dbus.ObjectPath
	profiles     map[string]dbus.ObjectPath
	activeStates []uint32
	activeErr    error

	activated []dbus.ObjectPath
	added     []map[string]dbus.Variant
	queried   []dbus.ObjectPath
}

func (f *fakeNM) DeviceState(context.Context) (uint32, error) { return f.deviceState, f.deviceErr }

func (f *fakeNM) ActiveAccessPoint(context.Context) (dbus.ObjectPath, error) {
	return f.accessPoint, nil
}

func (f *fakeNM) FindProfile(_ context.Context, ssid string) (dbus.ObjectPath, error) {
	return f.profiles[ssid], nil
}

func (f *fakeNM) Activate(_ context.Context, profile dbus.ObjectPath) (dbus.ObjectPath, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, profile)
	return "/org/freedesktop/NetworkManager/ActiveConnection/7", nil
}

func (f *fakeNM) AddAndActivate(_ context.Context, _ map[string]map[string]dbus.Variant, options map[string]dbus.Variant) (dbus.ObjectPath, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, options)
	return "/org/freedesktop/NetworkManager/ActiveConnection/8", nil
}

func (f *fakeNM) ActiveState(_ context.Context, active dbus.ObjectPath) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, active)
	if f.activeErr != nil {
		return 0, f.activeErr
	}
	state := f.activeStates[0]
	if len(f.activeStates) > 1 {
		f.activeStates = f.activeStates[1:]
	}
	return state, nil
}

func newTestRadio(nm networkManager) *Radio {
	return &Radio{
		nm:     nm,
		device: "/org/freedesktop/NetworkManager/Devices/3",
		iface:  "wlan0",
		poll:   time.Millisecond,
		logger: slog.New(slog.DiscardHandler),
	}
}

var homeCreds = config.Credentials{SSID: "home", Password: "hunter22"}

func TestRadioConnectReusesSavedProfile(t *testing.T) {
	nm := &fakeNM{
		profiles:     map[string]dbus.ObjectPath{"home": "/org/freedesktop/NetworkManager/Settings/4"},
		activeStates: []uint32{1, 1, nmActiveStateActivated},
	}
	r := newTestRadio(nm)

	for i := 0; i < 3; i++ {
		if err := r.Connect(context.Background(), homeCreds); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if len(nm.added) != 0 {
		t.Errorf("added %d profiles, want none while a saved one exists", len(nm.added))
	}
	if len(nm.activated) != 3 || nm.activated[0] != "/org/freedesktop/NetworkManager/Settings/4" {
		t.Errorf("activated = %v", nm.activated)
	}
}

func TestRadioConnectAddsVolatileProfile(t *testing.T) {
	nm := &fakeNM{activeStates: []uint32{nmActiveStateDeactivated}}
	r := newTestRadio(nm)

	for i := 0; i < 3; i++ {
		err := r.Connect(context.Background(), homeCreds)
		if !faults.IsConnectivity(err) {
			t.Fatalf("attempt %d: err = %v, want connectivity fault", i, err)
		}
	}
	if len(nm.added) != 3 {
		t.Fatalf("added %d times, want 3", len(nm.added))
	}
	for i, opts := range nm.added {
		if persist, _ := opts["persist"].Value().(string); persist != "volatile" {
			t.Errorf("attempt %d persist = %q, want volatile", i, persist)
		}
	}
}

func TestRadioConnectIgnoresStaleDeviceFailure(t *testing.T) {
	nm := &fakeNM{
		deviceState:  120,
		activeStates: []uint32{1, 1, 1, nmActiveStateActivated},
	}
	r := newTestRadio(nm)

	if err := r.Connect(context.Background(), homeCreds); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	for _, path := range nm.queried {
		if path != "/org/freedesktop/NetworkManager/ActiveConnection/8" {
			t.Errorf("polled %s, want the new active connection", path)
		}
	}
	if len(nm.queried) != 4 {
		t.Errorf("polled %d times, want 4", len(nm.queried))
	}
}

func TestRadioConnectFailures(t *testing.T) {
	tests := []struct {
		name  string
		creds config.Credentials
		nm    *fakeNM
		check func(error) bool
	}{
		{"missing ssid", config.Credentials{}, &fakeNM{}, faults.IsConfiguration},
		{"activation gone", homeCreds, &fakeNM{activeErr: errors.New("UnknownObject")}, faults.IsConnectivity},
		{"deactivated", homeCreds, &fakeNM{activeStates: []uint32{1, nmActiveStateDeactivated}}, faults.IsConnectivity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestRadio(tt.nm).Connect(context.Background(), tt.creds)
			if err == nil || !tt.check(err) {
				t.Errorf("Connect() = %v", err)
			}
		})
	}
}

func TestRadioConnectHonoursContext(t *testing.T) {
	nm := &fakeNM{activeStates: []uint32{1}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := newTestRadio(nm).Connect(ctx, homeCreds)
	if !faults.IsConnectivity(err) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() = %v, want deadline connectivity fault", err)
	}
}

func TestRadioIsConnected(t *testing.T) {
	tests := []struct {
		name string
		nm   *fakeNM
		want bool
	}{
		{"activated on ap", &fakeNM{deviceState: nmDeviceStateActivated, accessPoint: "/org/freedesktop/NetworkManager/AccessPoint/2"}, true},
		{"activated without ap", &fakeNM{deviceState: nmDeviceStateActivated, accessPoint: "/"}, false},
		{"disconnected", &fakeNM{deviceState: 30, accessPoint: "/"}, false},
		{"failed", &fakeNM{deviceState: 120}, false},
		{"bus error", &fakeNM{deviceErr: errors.New("no reply")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newTestRadio(tt.nm).IsConnected(context.Background()); got != tt.want {
				t.Errorf("IsConnected() = %v, want %v", got, tt.want)
			}
		})
	}
}
