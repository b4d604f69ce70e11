package poller

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		kind    SpecKind
		every   time.Duration
		source  string
		wantErr bool
	}{
		{in: "600s", kind: SpecInterval, every: 600 * time.Second, source: "duration"},
		{in: "10m", kind: SpecInterval, every: 10 * time.Minute, source: "duration"},
		{in: "2h30m", kind: SpecInterval, every: 150 * time.Minute, source: "duration"},
		{in: "600", kind: SpecInterval, every: 600 * time.Second, source: "seconds"},
		{in: "00:10", kind: SpecInterval, every: 10 * time.Minute, source: "hhmm"},
		{in: "02:30", kind: SpecInterval, every: 150 * time.Minute, source: "hhmm"},
		{in: "@every 10m", kind: SpecCron, source: "cron"},
		{in: "@hourly", kind: SpecCron, source: "cron"},
		{in: "*/10 * * * *", kind: SpecCron, source: "cron"},
		{in: "", wantErr: true},
		{in: "0", wantErr: true},
		// Digit strings past int64 or past the largest representable
		// duration must be rejected, not wrapped into a bogus interval.
		{in: "99999999999999999999999", wantErr: true},
		{in: "9223372036854775807", wantErr: true},
		{in: "02:75", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "* * *", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseSchedule(%q): expected error, got %+v", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSchedule(%q): %v", tc.in, err)
			}
			if got.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tc.kind)
			}
			if got.Source != tc.source {
				t.Fatalf("source = %q, want %q", got.Source, tc.source)
			}
			if tc.kind == SpecInterval && got.Every != tc.every {
				t.Fatalf("every = %v, want %v", got.Every, tc.every)
			}
		})
	}
}

func TestWaitCronAdvances(t *testing.T) {
	t.Parallel()

	spec, err := ParseSchedule("*/10 * * * *")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	now := time.Date(2025, 3, 1, 12, 3, 0, 0, time.UTC)
	wait := spec.Wait(now)
	if wait != 7*time.Minute {
		t.Fatalf("wait = %v, want 7m", wait)
	}
}

func TestWaitInterval(t *testing.T) {
	t.Parallel()

	spec, err := ParseSchedule("600s")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if w := spec.Wait(time.Now()); w != 600*time.Second {
		t.Fatalf("wait = %v, want 600s", w)
	}
}
