package status

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps device tree model fragments to the sysfs LED used as the
// status indicator.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"Raspberry Pi", "ACT"},
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "green_led"},
	{"Radxa", "user-led"},
}

// New returns a controller for name, or for the board's known indicator when
// name is empty. It falls back to a no-op controller when no LED is present.
func New(name string, logger *slog.Logger) Controller {
	return newController(sysfsLEDPath, detectBoard(deviceTreeModelPath), name, logger)
}

func newController(root, boardModel, name string, logger *slog.Logger) Controller {
	if name == "" {
		for _, b := range boardLEDs {
			if strings.Contains(boardModel, b.model) {
				name = b.led
				break
			}
		}
	}

	if name == "" {
		logger.Info("No status LED for board, using no-op controller", "board_model", boardModel)
		return newNoop(logger)
	}

	if _, err := os.Stat(filepath.Join(root, name)); err != nil {
		logger.Info("Status LED not present, using no-op controller", "led", name, "board_model", boardModel)
		return newNoop(logger)
	}

	logger.Info("Using sysfs status LED", "led", name, "board_model", boardModel)
	return newSysfs(root, name)
}

// detectBoard reads the device tree model to identify the board.
func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
