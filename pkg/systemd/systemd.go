// Package systemd reports service state to systemd through sd_notify.
// Every call is a no-op when NOTIFY_SOCKET is unset.
package systemd

import "github.com/coreos/go-systemd/v22/daemon"

// Notifier sends one sd_notify state string.
type Notifier func(state string) (bool, error)

// Default talks to the real notify socket.
var Default Notifier = func(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

func Ready(n Notifier) (bool, error) {
	if n == nil {
		n = Default
	}
	return n(daemon.SdNotifyReady)
}

func Stopping(n Notifier) (bool, error) {
	if n == nil {
		n = Default
	}
	return n(daemon.SdNotifyStopping)
}

// Status sets the free-form STATUS= line shown by systemctl status.
func Status(n Notifier, msg string) (bool, error) {
	if n == nil {
		n = Default
	}
	return n("STATUS=" + msg)
}
