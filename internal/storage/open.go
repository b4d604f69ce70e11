package storage

import (
	"context"
	"errors"
	"strings"

	logx "hwbot/pkg/logx"
)

// Store is the minimal persistence API used by the notifier and commands.
type Store interface {
	AppendHistory(ctx context.Context, e Entry) error
	RecentHistory(ctx context.Context, limit int) ([]Entry, error)

	EnqueuePending(ctx context.Context, e Entry) error
	// TakePending removes and returns up to limit pending entries, oldest
	// first. A limit <= 0 takes the whole queue.
	TakePending(ctx context.Context, limit int) ([]Entry, error)
	PendingCount(ctx context.Context) (int, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
