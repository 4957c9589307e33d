// Package systemd reports service state to systemd through sd_notify.
package systemd

import (
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/smazurov/lednode/internal/logging"
)

// Notifier sends READY, STATUS and watchdog notifications. Every method is a
// no-op when the process was not started by systemd.
type Notifier struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	notify   func(state string) (bool, error)
	now      func() time.Time
	logger   *slog.Logger
}

// NewNotifier reads the watchdog interval from the environment.
func NewNotifier() *Notifier {
	n := &Notifier{
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		now:    time.Now,
		logger: logging.GetLogger("systemd"),
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		n.logger.Warn("Invalid watchdog configuration", "error", err)
	}
	n.interval = interval
	if interval > 0 {
		n.logger.Info("Systemd watchdog enabled", "interval", interval)
	}
	return n
}

// Ready tells systemd that startup finished.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping tells systemd that shutdown began.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) {
	n.send("STATUS=" + msg)
}

// Watchdog pings the watchdog at most twice per interval, so it can be
// called from every loop iteration.
func (n *Notifier) Watchdog() {
	if n.interval <= 0 {
		return
	}
	n.mu.Lock()
	now := n.now()
	due := now.Sub(n.last) >= n.interval/2
	if due {
		n.last = now
	}
	n.mu.Unlock()
	if due {
		n.send(daemon.SdNotifyWatchdog)
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("Notified systemd", "state", state)
	}
}
