//go:build sqlite

package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	logx "hwbot/pkg/logx"
)

func TestSQLiteStorePendingRoundTrip(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "store.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for _, text := range []string{"a", "b", "c"} {
		if err := st.EnqueuePending(ctx, Entry{At: time.Now(), Text: text}); err != nil {
			t.Fatalf("EnqueuePending error: %v", err)
		}
	}

	taken, err := st.TakePending(ctx, 2)
	if err != nil {
		t.Fatalf("TakePending error: %v", err)
	}
	if len(taken) != 2 || taken[0].Text != "a" || taken[1].Text != "b" {
		t.Fatalf("TakePending = %+v, want [a b]", taken)
	}
	if n, _ := st.PendingCount(ctx); n != 1 {
		t.Fatalf("PendingCount after take = %d, want 1", n)
	}
}

func TestSQLiteStoreTakePendingZeroTakesAll(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "store.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	const total = 150
	for i := 0; i < total; i++ {
		if err := st.EnqueuePending(ctx, Entry{At: time.Now(), Text: fmt.Sprintf("msg %d", i)}); err != nil {
			t.Fatalf("EnqueuePending error: %v", err)
		}
	}

	taken, err := st.TakePending(ctx, 0)
	if err != nil {
		t.Fatalf("TakePending error: %v", err)
	}
	if len(taken) != total {
		t.Fatalf("TakePending(0) returned %d entries, want %d", len(taken), total)
	}
	if taken[0].Text != "msg 0" || taken[total-1].Text != fmt.Sprintf("msg %d", total-1) {
		t.Fatalf("TakePending(0) not oldest-first: first %q, last %q", taken[0].Text, taken[total-1].Text)
	}
	if n, _ := st.PendingCount(ctx); n != 0 {
		t.Fatalf("PendingCount after full drain = %d, want 0", n)
	}
}
