package clock

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/beevik/ntp"
)

// DefaultProbeTimeout bounds the total time spent measuring the clock
// offset at open. Opening a store must not hang on an unreachable time
// source.
const DefaultProbeTimeout = 2 * time.Second

// Probe measures the local clock's offset against the first reachable of
// the given NTP servers and returns a corrected, monotone clock.
//
// Each server gets an equal share of timeout. If every server fails, Probe
// logs a warning and falls back to a zero-offset clock; it never returns an
// error and never blocks past the timeout.
func Probe(servers []string, timeout time.Duration) Clock {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if len(servers) == 0 {
		return NewMonotone(System{})
	}

	per := timeout / time.Duration(len(servers))
	for _, server := range servers {
		offset, err := queryOffset(server, per)
		if err != nil {
			slog.Warn("time source unreachable", "server", server, "error", err)
			continue
		}
		slog.Debug("clock offset measured", "server", server, "offset", offset)
		return NewMonotone(Corrected{Offset: offset})
	}

	slog.Warn("all time sources failed; timestamps use the uncorrected system clock",
		"servers", servers)
	return NewMonotone(System{})
}

func queryOffset(server string, timeout time.Duration) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return 0, fmt.Errorf("validate %s response: %w", server, err)
	}
	return resp.ClockOffset, nil
}
