package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"hwbot/internal/notifier"
	"hwbot/internal/practicum"
	kit "hwbot/internal/transport"
	"hwbot/pkg/logx"
)

type scriptedFetcher struct {
	mu      sync.Mutex
	replies []fetchReply
	cursors []int64
}

type fetchReply struct {
	body any
	err  error
}

func (f *scriptedFetcher) Fetch(_ context.Context, cursor int64) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursors = append(f.cursors, cursor)
	if len(f.replies) == 0 {
		return map[string]any{"homeworks": []any{}, "current_date": float64(cursor)}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.body, r.err
}

type chatRecorder struct {
	mu   sync.Mutex
	sent []string
}

func (c *chatRecorder) Start(context.Context, chan<- kit.Update) error { return nil }
func (c *chatRecorder) Stop(context.Context) error                     { return nil }

func (c *chatRecorder) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return kit.MessageRef{MessageID: len(c.sent)}, nil
}

func (c *chatRecorder) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func newTestLoop(t *testing.T, fetch *scriptedFetcher) (*Service, *chatRecorder) {
	t.Helper()
	chat := &chatRecorder{}
	notif, err := notifier.New(notifier.Config{RatePerSec: 100}, chat, kit.ChatTarget{ChatID: 42}, nil, logx.Nop())
	if err != nil {
		t.Fatalf("notifier.New: %v", err)
	}
	spec, err := ParseSchedule("600s")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	svc := New(Config{Schedule: spec, Strict: true}, fetch, notif, logx.Nop())
	return svc, chat
}

func statusBody(name, status string, current float64) map[string]any {
	return map[string]any{
		"homeworks": []any{
			map[string]any{"homework_name": name, "status": status},
		},
		"current_date": current,
	}
}

func TestCycleDeliversApprovedStatus(t *testing.T) {
	t.Parallel()

	fetch := &scriptedFetcher{replies: []fetchReply{
		{body: statusBody("hw05.zip", "approved", 1000)},
	}}
	svc, chat := newTestLoop(t, fetch)

	svc.Cycle(context.Background())

	want := `Изменился статус проверки работы "hw05.zip". Работа проверена: ревьюеру всё понравилось. Ура!`
	got := chat.messages()
	if len(got) != 1 || got[0] != want {
		t.Fatalf("messages = %q, want [%q]", got, want)
	}
	if snap := svc.Snapshot(); snap.Cursor != 1000 {
		t.Fatalf("cursor = %d, want 1000", snap.Cursor)
	}
}

func TestCycleEmptyFeedStaysQuiet(t *testing.T) {
	t.Parallel()

	fetch := &scriptedFetcher{replies: []fetchReply{
		{body: map[string]any{"homeworks": []any{}, "current_date": float64(1000)}},
	}}
	svc, chat := newTestLoop(t, fetch)

	svc.Cycle(context.Background())

	if got := chat.messages(); len(got) != 0 {
		t.Fatalf("unexpected messages: %q", got)
	}
	snap := svc.Snapshot()
	if snap.Cursor != 1000 {
		t.Fatalf("cursor = %d, want 1000", snap.Cursor)
	}
	if snap.LastError != "" {
		t.Fatalf("last error = %q, want empty", snap.LastError)
	}
}

func TestCycleRepeatedConnectionFailureReportedOnce(t *testing.T) {
	t.Parallel()

	terr := &practicum.TransportError{Err: errors.New("dial tcp: connection refused")}
	fetch := &scriptedFetcher{replies: []fetchReply{
		{err: terr},
		{err: terr},
	}}
	svc, chat := newTestLoop(t, fetch)

	svc.Cycle(context.Background())
	svc.Cycle(context.Background())

	got := chat.messages()
	if len(got) != 1 {
		t.Fatalf("got %d messages, want 1 (dedup): %q", len(got), got)
	}
	if want := "Ошибка соединения: "; !strings.HasPrefix(got[0], want) {
		t.Fatalf("message %q does not start with %q", got[0], want)
	}
	snap := svc.Snapshot()
	if snap.Errors != 2 {
		t.Fatalf("errors = %d, want 2", snap.Errors)
	}
}

func TestCycleUnknownStatusKeepsLoopAlive(t *testing.T) {
	t.Parallel()

	fetch := &scriptedFetcher{replies: []fetchReply{
		{body: statusBody("hw05.zip", "in_review", 1000)},
		{body: statusBody("hw05.zip", "approved", 2000)},
	}}
	svc, chat := newTestLoop(t, fetch)

	svc.Cycle(context.Background())
	svc.Cycle(context.Background())

	got := chat.messages()
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2: %q", len(got), got)
	}
	if want := "Сбой в работе программы: "; !strings.HasPrefix(got[0], want) {
		t.Fatalf("first message %q does not start with %q", got[0], want)
	}
	if want := `Изменился статус проверки работы "hw05.zip". Работа проверена: ревьюеру всё понравилось. Ура!`; got[1] != want {
		t.Fatalf("second message = %q, want %q", got[1], want)
	}
	if snap := svc.Snapshot(); snap.Cursor != 2000 {
		t.Fatalf("cursor = %d, want 2000", snap.Cursor)
	}
}

func TestCycleShapeErrorDoesNotAdvanceCursor(t *testing.T) {
	t.Parallel()

	fetch := &scriptedFetcher{replies: []fetchReply{
		{body: map[string]any{"current_date": float64(9999)}},
	}}
	svc, chat := newTestLoop(t, fetch)
	before := svc.Snapshot().Cursor

	svc.Cycle(context.Background())

	if got := chat.messages(); len(got) != 1 {
		t.Fatalf("got %d messages, want 1: %q", len(got), got)
	}
	if after := svc.Snapshot().Cursor; after != before {
		t.Fatalf("cursor moved %d -> %d on invalid response", before, after)
	}
}

func TestCycleLenientModeAcceptsMissingCurrentDate(t *testing.T) {
	t.Parallel()

	fetch := &scriptedFetcher{replies: []fetchReply{
		{body: map[string]any{"homeworks": []any{}}},
	}}
	svc, chat := newTestLoop(t, fetch)
	spec, _ := ParseSchedule("600s")
	svc.Apply(Config{Schedule: spec, Strict: false})
	before := svc.Snapshot().Cursor

	svc.Cycle(context.Background())

	if got := chat.messages(); len(got) != 0 {
		t.Fatalf("unexpected messages: %q", got)
	}
	if after := svc.Snapshot().Cursor; after != before {
		t.Fatalf("cursor moved %d -> %d without current_date", before, after)
	}
}

func TestRunHonorsManualCheck(t *testing.T) {
	t.Parallel()

	fetch := &scriptedFetcher{}
	svc, _ := newTestLoop(t, fetch)
	spec, _ := ParseSchedule("1h")
	svc.Apply(Config{Schedule: spec, Strict: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()

	waitFor(t, func() bool { return svc.Snapshot().Cycles >= 1 })
	if !svc.TriggerCheck() {
		t.Fatal("TriggerCheck returned false on empty queue")
	}
	waitFor(t, func() bool { return svc.Snapshot().Cycles >= 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
