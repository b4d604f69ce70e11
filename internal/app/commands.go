package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"hwbot/internal/notifier"
	"hwbot/internal/poller"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

const helpText = `Commands:
/status - poll loop state (cursor, cycles, last error)
/check  - run a poll cycle now
/recent [n] - last delivered notifications (default 10)
/help   - this text`

// Dispatcher routes chat commands from the update stream. Only the
// configured chat is listened to; if owner ids are set, only those users
// may issue commands.
type Dispatcher struct {
	log     logx.Logger
	adapter kit.Adapter
	notif   *notifier.Service
	poll    *poller.Service

	startedAt time.Time

	mu     sync.RWMutex
	chatID int64
	owners []int64
}

func NewDispatcher(log logx.Logger, adapter kit.Adapter, notif *notifier.Service, poll *poller.Service, chatID int64, owners []int64) *Dispatcher {
	return &Dispatcher{
		log:       log,
		adapter:   adapter,
		notif:     notif,
		poll:      poll,
		startedAt: time.Now(),
		chatID:    chatID,
		owners:    append([]int64(nil), owners...),
	}
}

// SetAccess updates the allowed chat and owner list. Safe during hot reload.
func (d *Dispatcher) SetAccess(chatID int64, owners []int64) {
	cp := append([]int64(nil), owners...)
	d.mu.Lock()
	d.chatID = chatID
	d.owners = cp
	d.mu.Unlock()
}

// Loop consumes updates until ctx is done.
func (d *Dispatcher) Loop(ctx context.Context, updates <-chan kit.Update) error {
	d.log.Info("command dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Message == nil {
				continue
			}
			d.handle(ctx, *up.Message)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg kit.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in command handler",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	if !d.allowed(msg) {
		d.log.Debug("command from unauthorized source dropped",
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
		)
		return
	}

	parts := strings.Fields(text)
	cmd := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	args := parts[1:]

	var reply string
	switch cmd {
	case "status":
		reply = d.statusText(ctx)
	case "check":
		if d.poll.TriggerCheck() {
			reply = "Running a check now."
		} else {
			reply = "A check is already queued."
		}
	case "recent":
		reply = d.recentText(ctx, args)
	case "help", "start":
		reply = helpText
	default:
		reply = "Unknown command. Try /help"
	}

	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if _, err := d.adapter.SendText(ctx, to, reply, nil); err != nil {
		d.log.Warn("command reply failed", logx.String("cmd", cmd), logx.Err(err))
	}
}

func (d *Dispatcher) allowed(msg kit.Message) bool {
	d.mu.RLock()
	chatID := d.chatID
	owners := d.owners
	d.mu.RUnlock()

	if msg.ChatID != chatID {
		return false
	}
	if len(owners) == 0 {
		return true
	}
	for _, id := range owners {
		if id == msg.FromID {
			return true
		}
	}
	return false
}

func (d *Dispatcher) statusText(ctx context.Context) string {
	snap := d.poll.Snapshot()
	var b strings.Builder
	fmt.Fprintf(&b, "Uptime: %s\n", time.Since(d.startedAt).Round(time.Second))
	fmt.Fprintf(&b, "Cycles: %d (errors: %d)\n", snap.Cycles, snap.Errors)
	fmt.Fprintf(&b, "Cursor: %d\n", snap.Cursor)
	if !snap.LastCycleAt.IsZero() {
		fmt.Fprintf(&b, "Last cycle: %s\n", snap.LastCycleAt.Format(time.RFC3339))
	}
	if !snap.NextAt.IsZero() {
		fmt.Fprintf(&b, "Next cycle: %s\n", snap.NextAt.Format(time.RFC3339))
	}
	if snap.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", snap.LastError)
	}
	if n := d.notif.PendingCount(ctx); n > 0 {
		fmt.Fprintf(&b, "Parked notifications: %d\n", n)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) recentText(ctx context.Context, args []string) string {
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	entries, err := d.notif.Recent(ctx, limit)
	if err != nil {
		return "History unavailable: " + err.Error()
	}
	if len(entries) == 0 {
		return "No notifications delivered yet."
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s  %s\n", e.At.Format("2006-01-02 15:04"), e.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
