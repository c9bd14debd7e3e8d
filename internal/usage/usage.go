// Package usage tracks the per-visitor generation allowance. Counts are
// keyed by the browser-generated visitor ID and survive restarts in a JSON
// ledger file.
package usage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/snipforge/schema"
)

// Ledger tracks consumed generation uses per visitor.
type Ledger struct {
	path      string
	allowance int
	mu        sync.Mutex
	used      map[schema.VisitorID]int
	log       pslog.Logger
}

// NewLedger loads or creates the ledger. allowance is the number of
// generations each visitor may run; values below one fall back to the
// default.
func NewLedger(path string, allowance int, logger pslog.Logger) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if allowance <= 0 {
		allowance = schema.DefaultQuotaUses
	}
	if logger != nil {
		logger = logger.With("ledger_file", path)
	}
	ledger := &Ledger{
		path:      path,
		allowance: allowance,
		used:      make(map[schema.VisitorID]int),
		log:       logger,
	}
	if err := ledger.load(); err != nil {
		return nil, err
	}
	return ledger, nil
}

// Allowance returns the configured per-visitor allowance.
func (l *Ledger) Allowance() int {
	return l.allowance
}

// Remaining returns how many uses the visitor has left.
func (l *Ledger) Remaining(visitor schema.VisitorID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remainingLocked(visitor)
}

func (l *Ledger) remainingLocked(visitor schema.VisitorID) int {
	remaining := l.allowance - l.used[visitor]
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Consume spends one use and returns the count left afterwards. An
// exhausted visitor gets schema.ErrQuotaExhausted and no state change.
func (l *Ledger) Consume(visitor schema.VisitorID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remainingLocked(visitor) <= 0 {
		return 0, schema.ErrQuotaExhausted
	}
	l.used[visitor]++
	if err := l.saveLocked(); err != nil {
		l.used[visitor]--
		if l.log != nil {
			l.log.Warn("usage save failed", "visitor", visitor, "err", err)
		}
		return 0, err
	}
	remaining := l.remainingLocked(visitor)
	if l.log != nil {
		l.log.Debug("usage consumed", "visitor", visitor, "remaining", remaining)
	}
	return remaining, nil
}

// Reset clears a visitor's consumption, restoring the full allowance.
func (l *Ledger) Reset(visitor schema.VisitorID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.used[visitor]; !ok {
		return nil
	}
	prev := l.used[visitor]
	delete(l.used, visitor)
	if err := l.saveLocked(); err != nil {
		l.used[visitor] = prev
		if l.log != nil {
			l.log.Warn("usage reset failed", "visitor", visitor, "err", err)
		}
		return err
	}
	if l.log != nil {
		l.log.Info("usage reset", "visitor", visitor)
	}
	return nil
}

// Visitors returns how many visitors have consumed at least one use.
func (l *Ledger) Visitors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.used)
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		if l.log != nil {
			l.log.Warn("usage load failed", "err", err)
		}
		return err
	}
	used := make(map[schema.VisitorID]int)
	if err := json.Unmarshal(data, &used); err != nil {
		if l.log != nil {
			l.log.Warn("usage load failed", "err", err)
		}
		return err
	}
	l.mu.Lock()
	l.used = used
	l.mu.Unlock()
	if l.log != nil {
		l.log.Debug("usage load ok", "visitors", len(used))
	}
	return nil
}

func (l *Ledger) saveLocked() error {
	data, err := json.MarshalIndent(l.used, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), "usage-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return err
	}
	return nil
}
