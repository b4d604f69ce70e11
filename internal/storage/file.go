package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "hwbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.history.jsonl (append-only JSON Lines)
//   - <prefix>.pending.jsonl (append-only journal, rewritten on take)
//
// Pending entries are also held in memory; the journal exists so parked
// notifications survive a restart that happens inside quiet hours.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	historyPath string
	historyFile *os.File

	pendingPath string
	pendingFile *os.File
	pending     []Entry
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	historyPath := prefix + ".history.jsonl"
	pendingPath := prefix + ".pending.jsonl"

	hf, err := os.OpenFile(historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	pending, _ := readEntries(pendingPath)

	pf, err := os.OpenFile(pendingPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = hf.Close()
		return nil, err
	}

	return &fileStore{
		log:         log,
		historyPath: historyPath,
		historyFile: hf,
		pendingPath: pendingPath,
		pendingFile: pf,
		pending:     pending,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.historyFile != nil {
		err1 = s.historyFile.Close()
		s.historyFile = nil
	}
	if s.pendingFile != nil {
		err2 = s.pendingFile.Close()
		s.pendingFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendHistory(ctx context.Context, e Entry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return errors.New("history file closed")
	}
	return json.NewEncoder(s.historyFile).Encode(e)
}

func (s *fileStore) RecentHistory(ctx context.Context, limit int) ([]Entry, error) {
	_ = ctx
	s.mu.Lock()
	path := s.historyPath
	s.mu.Unlock()

	all, err := readEntries(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *fileStore) EnqueuePending(ctx context.Context, e Entry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingFile == nil {
		return errors.New("pending journal closed")
	}
	if err := json.NewEncoder(s.pendingFile).Encode(e); err != nil {
		return err
	}
	s.pending = append(s.pending, e)
	return nil
}

func (s *fileStore) TakePending(ctx context.Context, limit int) ([]Entry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	n := len(s.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	taken := append([]Entry(nil), s.pending[:n]...)
	s.pending = append([]Entry(nil), s.pending[n:]...)

	if err := s.rewritePendingLocked(); err != nil {
		return taken, err
	}
	return taken, nil
}

func (s *fileStore) PendingCount(ctx context.Context) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending), nil
}

func (s *fileStore) rewritePendingLocked() error {
	if s.pendingFile != nil {
		_ = s.pendingFile.Close()
		s.pendingFile = nil
	}

	tmp := s.pendingPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, e := range s.pending {
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.pendingPath); err != nil {
		return err
	}

	pf, err := os.OpenFile(s.pendingPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.pendingFile = pf
	return nil
}

func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.Text == "" {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
