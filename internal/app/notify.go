package app

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "resumeassist/pkg/logx"
)

// sdNotify is swapped in tests.
var sdNotify = daemon.SdNotify

func notifySystemd(log logx.Logger, state string) {
	sent, err := sdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify sent", logx.String("state", state))
	}
}

// watchdog pings systemd at half the configured interval until ctx ends.
// It returns at once when the unit has no watchdog.
func watchdog(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			notifySystemd(log, daemon.SdNotifyWatchdog)
		}
	}
}
