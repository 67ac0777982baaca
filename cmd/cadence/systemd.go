package main

import (
	"github.com/ahmed-com/cadence/ticker"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// notify sends a state to the service manager. It is a no-op outside systemd.
func notify(log *zerolog.Logger, state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		log.Debug().Err(err).Str("state", state).Msg("sd_notify failed")
	}
}

// startWatchdog pets the systemd watchdog at half its timeout. It returns nil
// when no watchdog is configured for the unit.
func startWatchdog(log *zerolog.Logger, base ticker.TickerConfig) (*ticker.PeriodicTicker, error) {
	timeout, err := daemon.SdWatchdogEnabled(false)
	if err != nil || timeout <= 0 {
		return nil, err
	}

	base.Name = "watchdog"
	base.Logger = log
	pet, err := ticker.NewPeriodicTicker(timeout/2, base)
	if err != nil {
		return nil, err
	}
	pet.Subscribe(func(ticker.Tick) { notify(log, daemon.SdNotifyWatchdog) })
	if err := pet.Start(); err != nil {
		pet.Close()
		return nil, err
	}
	log.Info().Dur("timeout", timeout).Msg("systemd watchdog enabled")
	return pet, nil
}
