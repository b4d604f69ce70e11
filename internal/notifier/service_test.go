package notifier

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	fail  error
	chats []int64
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return kit.MessageRef{}, f.fail
	}
	f.sent = append(f.sent, text)
	f.chats = append(f.chats, to.ChatID)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) failWith(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestService(t *testing.T, fa *fakeAdapter, cfg Config) *Service {
	t.Helper()
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = 100
	}
	s, err := New(cfg, fa, kit.ChatTarget{ChatID: 42}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return s
}

func TestNotifyDedupIsIdempotent(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	s := newTestService(t, fa, Config{})
	ctx := context.Background()

	if err := s.Notify(ctx, "hello"); err != nil {
		t.Fatalf("first Notify error: %v", err)
	}
	if err := s.Notify(ctx, "hello"); err != nil {
		t.Fatalf("second Notify error: %v", err)
	}

	if got := fa.sentTexts(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("sent = %v, want exactly one %q", got, "hello")
	}
	if s.LastSent() != "hello" {
		t.Fatalf("LastSent = %q, want %q", s.LastSent(), "hello")
	}
}

func TestNotifyNewTextAfterDuplicateGoesOut(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	s := newTestService(t, fa, Config{})
	ctx := context.Background()

	for _, text := range []string{"a", "a", "b", "b", "a"} {
		if err := s.Notify(ctx, text); err != nil {
			t.Fatalf("Notify(%q) error: %v", text, err)
		}
	}
	want := []string{"a", "b", "a"}
	got := fa.sentTexts()
	if len(got) != len(want) {
		t.Fatalf("sent = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent = %v, want %v", got, want)
		}
	}
}

func TestNotifyDeliveryError(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{fail: errors.New("boom")}
	s := newTestService(t, fa, Config{})

	err := s.Notify(context.Background(), "hello")
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("Notify error = %v, want *DeliveryError", err)
	}
	// A failed send must not update the dedup value.
	if s.LastSent() != "" {
		t.Fatalf("LastSent = %q, want empty after failed send", s.LastSent())
	}
}

func TestQuietHoursParkAndFlush(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	// Window covering the whole day: everything gets parked.
	s := newTestService(t, fa, Config{QuietHours: QuietHours{Enabled: true, Start: "00:00", End: "23:59"}})
	ctx := context.Background()

	if err := s.Notify(ctx, "parked one"); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if err := s.Notify(ctx, "parked two"); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if got := fa.sentTexts(); len(got) != 0 {
		t.Fatalf("sent during quiet hours = %v, want none", got)
	}
	if n := s.PendingCount(ctx); n != 2 {
		t.Fatalf("PendingCount = %d, want 2", n)
	}

	// Disable the window and flush.
	if err := s.Apply(Config{RatePerSec: 100}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	sent, err := s.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	if sent != 2 {
		t.Fatalf("Flush sent = %d, want 2", sent)
	}
	got := fa.sentTexts()
	if len(got) != 2 || got[0] != "parked one" || got[1] != "parked two" {
		t.Fatalf("sent = %v, want parked messages oldest-first", got)
	}
}

func TestFlushFailureKeepsRemainingParked(t *testing.T) {
	t.Parallel()

	fa := &fakeAdapter{}
	s := newTestService(t, fa, Config{QuietHours: QuietHours{Enabled: true, Start: "00:00", End: "23:59"}})
	ctx := context.Background()

	parked := []string{"one", "two", "three"}
	for _, text := range parked {
		if err := s.Notify(ctx, text); err != nil {
			t.Fatalf("Notify(%q) error: %v", text, err)
		}
	}

	if err := s.Apply(Config{RatePerSec: 100}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	// The very first delivery attempt fails: nothing may be dropped.
	fa.failWith(errors.New("boom"))
	sent, err := s.Flush(ctx)
	if err == nil {
		t.Fatal("Flush with failing adapter should return an error")
	}
	if sent != 0 {
		t.Fatalf("Flush sent = %d, want 0", sent)
	}
	if n := s.PendingCount(ctx); n != len(parked) {
		t.Fatalf("PendingCount after failed flush = %d, want %d", n, len(parked))
	}
	if s.LastSent() != "" {
		t.Fatalf("LastSent = %q, want empty after failed flush", s.LastSent())
	}

	// Once delivery recovers, everything goes out oldest-first.
	fa.failWith(nil)
	sent, err = s.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush after recovery error: %v", err)
	}
	if sent != len(parked) {
		t.Fatalf("Flush after recovery sent = %d, want %d", sent, len(parked))
	}
	got := fa.sentTexts()
	for i := range parked {
		if got[i] != parked[i] {
			t.Fatalf("sent = %v, want %v", got, parked)
		}
	}
}

func TestFlushFailureReparksIntoStore(t *testing.T) {
	t.Parallel()

	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open error: %v", err)
	}
	defer st.Close()

	fa := &fakeAdapter{}
	quiet := Config{RatePerSec: 100, QuietHours: QuietHours{Enabled: true, Start: "00:00", End: "23:59"}}
	s, err := New(quiet, fa, kit.ChatTarget{ChatID: 42}, st, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	ctx := context.Background()
	parked := []string{"one", "two", "three"}
	for _, text := range parked {
		if err := s.Notify(ctx, text); err != nil {
			t.Fatalf("Notify(%q) error: %v", text, err)
		}
	}

	if err := s.Apply(Config{RatePerSec: 100}); err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	fa.failWith(errors.New("boom"))
	if _, err := s.Flush(ctx); err == nil {
		t.Fatal("Flush with failing adapter should return an error")
	}

	// The queue must be back in the store, not just this instance's
	// memory: a fresh service over the same store sees and delivers it.
	fa2 := &fakeAdapter{}
	s2, err := New(Config{RatePerSec: 100}, fa2, kit.ChatTarget{ChatID: 42}, st, logx.Nop())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if n := s2.PendingCount(ctx); n != len(parked) {
		t.Fatalf("PendingCount from store = %d, want %d", n, len(parked))
	}
	sent, err := s2.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush error: %v", err)
	}
	if sent != len(parked) {
		t.Fatalf("Flush sent = %d, want %d", sent, len(parked))
	}
	got := fa2.sentTexts()
	for i := range parked {
		if got[i] != parked[i] {
			t.Fatalf("sent = %v, want %v", got, parked)
		}
	}
}

func TestQuietWindowContains(t *testing.T) {
	t.Parallel()

	w, err := parseWindow(QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("parseWindow error: %v", err)
	}

	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC)
	}
	tests := []struct {
		name string
		at   time.Time
		in   bool
	}{
		{name: "before window", at: at(21, 59), in: false},
		{name: "window start", at: at(22, 0), in: true},
		{name: "past midnight", at: at(2, 30), in: true},
		{name: "window end", at: at(7, 0), in: false},
		{name: "midday", at: at(12, 0), in: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := w.contains(tt.at); got != tt.in {
				t.Fatalf("contains(%v) = %v, want %v", tt.at, got, tt.in)
			}
		})
	}
}

func TestParseWindowInvalid(t *testing.T) {
	t.Parallel()

	if _, err := parseWindow(QuietHours{Enabled: true, Start: "25:00", End: "07:00"}); err == nil {
		t.Fatal("expected error for invalid hour")
	}
	if _, err := parseWindow(QuietHours{Enabled: true, Start: "22:00", End: "07:61"}); err == nil {
		t.Fatal("expected error for invalid minutes")
	}
	if _, err := parseWindow(QuietHours{Enabled: true, Start: "22:00", End: "07:00", Timezone: "Mars/Olympus"}); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
	// Disabled window parses regardless of fields.
	if _, err := parseWindow(QuietHours{}); err != nil {
		t.Fatalf("disabled window should parse, got %v", err)
	}
}
