package status

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller using the Linux sysfs LED interface.
type sysfs struct {
	root string
	name string
}

func newSysfs(root, name string) *sysfs {
	return &sysfs{root: root, name: name}
}

// Set writes the trigger and brightness for pattern.
func (s *sysfs) Set(pattern string) error {
	ledPath := filepath.Join(s.root, s.name)
	if _, err := os.Stat(ledPath); os.IsNotExist(err) {
		return fmt.Errorf("LED %q not found at %s", s.name, ledPath)
	}

	var trigger, brightness string
	switch pattern {
	case PatternSolid:
		trigger, brightness = "none", "1"
	case PatternHeartbeat:
		trigger, brightness = "heartbeat", "1"
	case PatternOff:
		trigger, brightness = "none", "0"
	default:
		return fmt.Errorf("unsupported LED pattern %q", pattern)
	}

	if err := os.WriteFile(filepath.Join(ledPath, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("failed to set LED trigger: %w", err)
	}
	if err := os.WriteFile(filepath.Join(ledPath, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Name() string { return s.name }
