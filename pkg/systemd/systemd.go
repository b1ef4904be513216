// Package systemd reports service state to the systemd manager. Every call
// is a no-op when the process does not run under a notify-type unit.
package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready signals that startup finished. It reports whether the notification
// was delivered.
func Ready() (bool, error) { return notify(daemon.SdNotifyReady) }

// Stopping signals the beginning of a graceful shutdown.
func Stopping() (bool, error) { return notify(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func Status(text string) (bool, error) { return notify("STATUS=" + text) }

// Watchdog sends a keep-alive ping.
func Watchdog() (bool, error) { return notify(daemon.SdNotifyWatchdog) }

// WatchdogInterval returns half the configured WatchdogSec, the usual ping
// period, or 0 when the watchdog is disabled.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

func notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}
