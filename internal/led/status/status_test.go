package status

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/lednode/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func fakeLED(t *testing.T, name string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"trigger", "brightness"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSysfsSet(t *testing.T) {
	tests := []struct {
		pattern        string
		wantTrigger    string
		wantBrightness string
	}{
		{PatternSolid, "none", "1"},
		{PatternHeartbeat, "heartbeat", "1"},
		{PatternOff, "none", "0"},
	}

	root := fakeLED(t, "ACT")
	ctrl := newSysfs(root, "ACT")

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			if err := ctrl.Set(tt.pattern); err != nil {
				t.Fatalf("Set(%q) error: %v", tt.pattern, err)
			}
			if got := readFile(t, filepath.Join(root, "ACT", "trigger")); got != tt.wantTrigger {
				t.Errorf("trigger = %q, want %q", got, tt.wantTrigger)
			}
			if got := readFile(t, filepath.Join(root, "ACT", "brightness")); got != tt.wantBrightness {
				t.Errorf("brightness = %q, want %q", got, tt.wantBrightness)
			}
		})
	}
}

func TestSysfsSetErrors(t *testing.T) {
	root := fakeLED(t, "ACT")

	if err := newSysfs(root, "ACT").Set("strobe"); err == nil {
		t.Error("unknown pattern should fail")
	}
	if err := newSysfs(root, "missing").Set(PatternSolid); err == nil {
		t.Error("missing LED should fail")
	}
}

func TestNewController(t *testing.T) {
	root := fakeLED(t, "ACT")

	tests := []struct {
		name     string
		board    string
		led      string
		wantName string
	}{
		{"board default", "Raspberry Pi 4 Model B Rev 1.4", "", "ACT"},
		{"explicit name", "unknown", "ACT", "ACT"},
		{"unknown board", "unknown", "", ""},
		{"led absent", "NanoPC-T6", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newController(root, tt.board, tt.led, testLogger())
			if ctrl.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", ctrl.Name(), tt.wantName)
			}
		})
	}
}

func TestDetectBoard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model")
	if err := os.WriteFile(path, []byte("Raspberry Pi Zero 2 W\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := detectBoard(path); got != "Raspberry Pi Zero 2 W" {
		t.Errorf("detectBoard() = %q", got)
	}
	if got := detectBoard(filepath.Join(t.TempDir(), "none")); got != "unknown" {
		t.Errorf("detectBoard(missing) = %q, want unknown", got)
	}
}

type mockController struct {
	mu    sync.Mutex
	calls []string
}

func (m *mockController) Set(pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, pattern)
	return nil
}

func (m *mockController) Name() string { return "mock" }

func (m *mockController) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1]
}

func waitPattern(t *testing.T, ctrl *mockController, want string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ctrl.last() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("pattern = %q, want %q", ctrl.last(), want)
}

func TestManagerFollowsConnectivity(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()

	mgr := NewManager(ctrl, bus, testLogger())
	mgr.Start()

	if got := ctrl.last(); got != PatternHeartbeat {
		t.Fatalf("initial pattern = %q, want heartbeat", got)
	}

	bus.Publish(events.ConnectivityChangedEvent{Connected: true})
	waitPattern(t, ctrl, PatternSolid)

	bus.Publish(events.ConnectivityChangedEvent{Connected: false, Attempt: 1})
	waitPattern(t, ctrl, PatternHeartbeat)

	mgr.Stop()
	if got := ctrl.last(); got != PatternOff {
		t.Errorf("pattern after Stop = %q, want off", got)
	}
}

func TestManagerSkipsRepeatedPattern(t *testing.T) {
	ctrl := &mockController{}
	mgr := NewManager(ctrl, events.New(), testLogger())

	mgr.apply(PatternSolid)
	mgr.apply(PatternSolid)

	if len(ctrl.calls) != 1 {
		t.Errorf("Set called %d times, want 1", len(ctrl.calls))
	}
	if mgr.Pattern() != PatternSolid {
		t.Errorf("Pattern() = %q", mgr.Pattern())
	}
}
