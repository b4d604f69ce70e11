// Package poller runs the homework status poll loop: fetch the review feed,
// turn new records into chat messages, and keep going no matter what a
// single cycle throws at it.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hwbot/internal/practicum"
	"hwbot/pkg/logx"
)

// Fetcher is the slice of the Practicum client the loop needs.
type Fetcher interface {
	Fetch(ctx context.Context, cursor int64) (any, error)
}

// Notifier delivers operator-facing messages and drains parked ones.
type Notifier interface {
	Notify(ctx context.Context, text string) error
	Flush(ctx context.Context) (int, error)
}

// Config is the hot-reloadable part of the loop.
type Config struct {
	Schedule ParsedSpec
	Strict   bool
}

// Snapshot is a point-in-time view of the loop state, used by /status.
type Snapshot struct {
	Cursor      int64
	Cycles      uint64
	Errors      uint64
	LastCycleAt time.Time
	LastError   string
	NextAt      time.Time
}

// Service owns the poll cursor and the fixed-cadence loop.
type Service struct {
	client Fetcher
	notif  Notifier
	log    logx.Logger

	checkNow chan struct{}

	mu     sync.Mutex
	cfg    Config
	cursor int64
	stats  Snapshot
}

// New builds a loop service. The cursor starts at the current wall clock so
// the first cycle only sees reviews that change after startup.
func New(cfg Config, client Fetcher, notif Notifier, log logx.Logger) *Service {
	s := &Service{
		client:   client,
		notif:    notif,
		log:      log,
		checkNow: make(chan struct{}, 1),
		cfg:      cfg,
		cursor:   time.Now().Unix(),
	}
	return s
}

// Apply swaps the schedule and strictness. Takes effect at the next sleep.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// TriggerCheck requests an immediate out-of-band cycle (the /check command).
// It does not disturb the regular cadence. Returns false if a manual check
// is already queued.
func (s *Service) TriggerCheck() bool {
	select {
	case s.checkNow <- struct{}{}:
		return true
	default:
		return false
	}
}

// Snapshot returns the current loop counters.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.stats
	snap.Cursor = s.cursor
	return snap
}

// Run blocks until ctx is cancelled. One cycle runs immediately, then the
// loop sleeps the configured schedule between cycles; the sleep happens
// unconditionally, including after failed cycles.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	sched := s.cfg.Schedule
	s.mu.Unlock()
	s.log.Info("poll loop started",
		logx.String("schedule", sched.Source),
		logx.Int64("cursor", s.cursor),
	)

	for {
		s.Cycle(ctx)

		s.mu.Lock()
		wait := s.cfg.Schedule.Wait(time.Now())
		s.stats.NextAt = time.Now().Add(wait)
		s.mu.Unlock()

		timer := time.NewTimer(wait)
	sleeping:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-s.checkNow:
				// Manual check: run a cycle, keep the timer running.
				s.Cycle(ctx)
			case <-timer.C:
				break sleeping
			}
		}
	}
}

// Cycle runs a single fetch-validate-notify pass. It never returns an error:
// every failure is converted into an operator notification and a log line.
func (s *Service) Cycle(ctx context.Context) {
	s.mu.Lock()
	cursor := s.cursor
	strict := s.cfg.Strict
	s.mu.Unlock()

	if n, err := s.notif.Flush(ctx); err != nil {
		s.log.Warn("flush pending notifications", logx.Err(err))
	} else if n > 0 {
		s.log.Info("flushed pending notifications", logx.Int("count", n))
	}

	s.bumpCycle()

	body, err := s.client.Fetch(ctx, cursor)
	if err != nil {
		s.report(ctx, err)
		return
	}

	records, err := practicum.ValidateResponse(body, strict)
	if err != nil {
		s.report(ctx, err)
		return
	}

	// Advance the cursor to the server-reported time so reviews landing
	// between cycles are not skipped.
	if cur, ok := practicum.CurrentDate(body); ok {
		s.mu.Lock()
		s.cursor = cur
		s.mu.Unlock()
	}

	if len(records) == 0 {
		s.log.Debug("no new homework updates", logx.Int64("cursor", cursor))
		s.clearError()
		return
	}

	msg, err := practicum.ParseStatus(records[0])
	if err != nil {
		s.report(ctx, err)
		return
	}

	if err := s.notif.Notify(ctx, msg); err != nil {
		s.log.Error("deliver status message", logx.Err(err))
		s.noteError(err)
		return
	}
	s.log.Info("homework status delivered", logx.Int64("cursor", cursor))
	s.clearError()
}

// report turns a cycle error into an operator notification. The notifier's
// dedup keeps a persistent failure from flooding the chat.
func (s *Service) report(ctx context.Context, err error) {
	s.noteError(err)
	text := renderOperatorError(err)
	s.log.Error("poll cycle failed", logx.Err(err))
	if nerr := s.notif.Notify(ctx, text); nerr != nil {
		s.log.Error("deliver error notification", logx.Err(nerr))
	}
}

func renderOperatorError(err error) string {
	var terr *practicum.TransportError
	if errors.As(err, &terr) {
		return fmt.Sprintf("Ошибка соединения: %v", err)
	}
	return fmt.Sprintf("Сбой в работе программы: %v", err)
}

func (s *Service) bumpCycle() {
	s.mu.Lock()
	s.stats.Cycles++
	s.stats.LastCycleAt = time.Now()
	s.mu.Unlock()
}

func (s *Service) noteError(err error) {
	s.mu.Lock()
	s.stats.Errors++
	s.stats.LastError = err.Error()
	s.mu.Unlock()
}

func (s *Service) clearError() {
	s.mu.Lock()
	s.stats.LastError = ""
	s.mu.Unlock()
}
