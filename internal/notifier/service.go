package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hwbot/internal/storage"
	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

const memHistoryCap = 300

// Service delivers operator-facing text to one chat.
//
// It owns the single piece of dedup state the bot has: the last text that
// actually went out. A message equal to that value is dropped, which also
// collapses a persistent outage into exactly one notification. Normal and
// error texts share the one value.
type Service struct {
	adapter kit.Adapter
	target  kit.ChatTarget
	store   storage.Store
	log     logx.Logger

	mu       sync.Mutex
	cfg      Config
	limiter  *rate.Limiter
	quiet    window
	lastSent string

	// In-memory fallbacks when storage is disabled.
	memPending []storage.Entry
	memHistory []storage.Entry
}

func New(cfg Config, adapter kit.Adapter, target kit.ChatTarget, store storage.Store, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, target: target, store: store, log: log}
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply swaps delivery knobs at runtime. Safe to call concurrently.
func (s *Service) Apply(cfg Config) error {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	quiet, err := parseWindow(cfg.QuietHours)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.quiet = quiet
	s.mu.Unlock()
	return nil
}

// Notify delivers text to the chat, unless it equals the last sent text.
// Inside quiet hours the text is parked instead; Flush drains the park.
func (s *Service) Notify(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	if text == s.lastSent {
		s.mu.Unlock()
		s.log.Debug("duplicate message suppressed")
		return nil
	}
	quietNow := s.quiet.contains(time.Now())
	s.mu.Unlock()

	if quietNow {
		return s.park(ctx, text)
	}
	return s.send(ctx, text)
}

// Flush drains parked notifications once the quiet window is over.
// It returns the number of messages actually sent.
func (s *Service) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	quietNow := s.quiet.contains(time.Now())
	s.mu.Unlock()
	if quietNow {
		return 0, nil
	}

	entries, err := s.takePending(ctx)
	if err != nil {
		// A store error can still leave drained memory entries in hand.
		s.repark(ctx, entries)
		return 0, err
	}
	sent := 0
	for i, e := range entries {
		s.mu.Lock()
		dup := e.Text == s.lastSent
		s.mu.Unlock()
		if dup {
			continue
		}
		if err := s.send(ctx, e.Text); err != nil {
			// Put the failed message and everything not yet attempted
			// back so nothing is lost.
			s.repark(ctx, entries[i:])
			return sent, err
		}
		sent++
	}
	if sent > 0 {
		s.log.Info("flushed parked notifications", logx.Int("sent", sent))
	}
	return sent, nil
}

func (s *Service) send(ctx context.Context, text string) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
	}

	if _, err := s.adapter.SendText(ctx, s.target, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		s.log.Error("message send failed", logx.Err(err))
		return &DeliveryError{Err: err}
	}

	s.mu.Lock()
	s.lastSent = text
	s.mu.Unlock()

	s.log.Debug("message sent", logx.Int("len", len(text)))
	s.recordHistory(ctx, storage.Entry{At: time.Now(), Text: text})
	return nil
}

func (s *Service) park(ctx context.Context, text string) error {
	e := storage.Entry{At: time.Now(), Text: text}

	if s.store != nil {
		if err := s.store.EnqueuePending(ctx, e); err != nil {
			s.log.Warn("failed to park notification; keeping in memory", logx.Err(err))
		} else {
			s.log.Debug("notification parked (quiet hours)")
			return nil
		}
	}

	s.mu.Lock()
	// Avoid stacking the same text over and over during a long outage.
	if n := len(s.memPending); n == 0 || s.memPending[n-1].Text != text {
		s.memPending = append(s.memPending, e)
	}
	s.mu.Unlock()
	s.log.Debug("notification parked (quiet hours)")
	return nil
}

// repark returns drained-but-undelivered entries to the pending queue in
// order. Entries go back into the store when one is configured, so they
// survive a restart; the queue is empty at this point, so appending keeps
// the original order.
func (s *Service) repark(ctx context.Context, entries []storage.Entry) {
	rest := entries
	if s.store != nil {
		for len(rest) > 0 {
			if err := s.store.EnqueuePending(ctx, rest[0]); err != nil {
				s.log.Warn("failed to re-park notification; keeping in memory", logx.Err(err))
				break
			}
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		keep := append([]storage.Entry(nil), rest...)
		s.mu.Lock()
		s.memPending = append(keep, s.memPending...)
		s.mu.Unlock()
	}
}

func (s *Service) takePending(ctx context.Context) ([]storage.Entry, error) {
	var out []storage.Entry

	s.mu.Lock()
	if len(s.memPending) > 0 {
		out = s.memPending
		s.memPending = nil
	}
	s.mu.Unlock()

	if s.store != nil {
		stored, err := s.store.TakePending(ctx, 0)
		if err != nil {
			return out, err
		}
		out = append(out, stored...)
	}
	return out, nil
}

func (s *Service) recordHistory(ctx context.Context, e storage.Entry) {
	if s.store != nil {
		if err := s.store.AppendHistory(ctx, e); err != nil {
			s.log.Warn("failed to record notification history", logx.Err(err))
		}
		return
	}
	s.mu.Lock()
	s.memHistory = append(s.memHistory, e)
	if len(s.memHistory) > memHistoryCap {
		s.memHistory = s.memHistory[len(s.memHistory)-memHistoryCap:]
	}
	s.mu.Unlock()
}

// Recent returns the last limit delivered notifications, oldest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]storage.Entry, error) {
	if s.store != nil {
		return s.store.RecentHistory(ctx, limit)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.memHistory
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]storage.Entry(nil), h...), nil
}

// PendingCount reports how many notifications are parked.
func (s *Service) PendingCount(ctx context.Context) int {
	n := 0
	if s.store != nil {
		if c, err := s.store.PendingCount(ctx); err == nil {
			n += c
		}
	}
	s.mu.Lock()
	n += len(s.memPending)
	s.mu.Unlock()
	return n
}

// LastSent returns the current dedup value (empty before the first send).
func (s *Service) LastSent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSent
}
