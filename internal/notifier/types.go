package notifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config controls outbound delivery.
//
// RatePerSec bounds how fast messages leave the process (Telegram dislikes
// bursts). QuietHours parks notifications instead of sending them; parked
// items are flushed on the first Flush() outside the window.
type Config struct {
	RatePerSec int
	QuietHours QuietHours
}

type QuietHours struct {
	Enabled  bool
	Start    string // "HH:MM"
	End      string // "HH:MM"
	Timezone string // IANA name; empty means local time
}

// DeliveryError means the messaging client accepted the request but the
// send itself failed.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notifier: send failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// window is the parsed quiet-hours interval in minutes-of-day.
// start == end disables the window; start > end crosses midnight.
type window struct {
	enabled    bool
	start, end int
	loc        *time.Location
}

func parseWindow(qh QuietHours) (window, error) {
	if !qh.Enabled {
		return window{}, nil
	}
	start, err := parseHHMM(qh.Start)
	if err != nil {
		return window{}, fmt.Errorf("quiet_hours.start: %w", err)
	}
	end, err := parseHHMM(qh.End)
	if err != nil {
		return window{}, fmt.Errorf("quiet_hours.end: %w", err)
	}
	loc := time.Local
	if tz := strings.TrimSpace(qh.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return window{}, fmt.Errorf("quiet_hours.timezone: invalid %q: %w", tz, err)
		}
	}
	return window{enabled: true, start: start, end: end, loc: loc}, nil
}

// contains reports whether now falls inside the quiet window.
func (w window) contains(now time.Time) bool {
	if !w.enabled || w.start == w.end {
		return false
	}
	if w.loc != nil {
		now = now.In(w.loc)
	}
	m := now.Hour()*60 + now.Minute()
	if w.start < w.end {
		return m >= w.start && m < w.end
	}
	// Crosses midnight.
	return m >= w.start || m < w.end
}

func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q (use HH:MM)", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", s)
	}
	return hh*60 + mm, nil
}
