package usage

import (
	"errors"
	"path/filepath"
	"testing"

	"pkt.systems/snipforge/schema"
)

func TestConsumeCountsDown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	ledger, err := NewLedger(path, 3, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	visitor := schema.VisitorID("v1")
	if got := ledger.Remaining(visitor); got != 3 {
		t.Fatalf("fresh visitor must have full allowance, got %d", got)
	}
	for want := 2; want >= 0; want-- {
		remaining, err := ledger.Consume(visitor)
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if remaining != want {
			t.Fatalf("expected %d remaining, got %d", want, remaining)
		}
	}
	if _, err := ledger.Consume(visitor); !errors.Is(err, schema.ErrQuotaExhausted) {
		t.Fatalf("expected quota exhausted, got %v", err)
	}
	if got := ledger.Remaining(visitor); got != 0 {
		t.Fatalf("exhausted visitor must report zero, got %d", got)
	}
}

func TestVisitorsIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	ledger, err := NewLedger(path, 2, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if _, err := ledger.Consume("a"); err != nil {
		t.Fatalf("consume a: %v", err)
	}
	if got := ledger.Remaining("b"); got != 2 {
		t.Fatalf("other visitors must be unaffected, got %d", got)
	}
	if got := ledger.Visitors(); got != 1 {
		t.Fatalf("expected 1 tracked visitor, got %d", got)
	}
}

func TestLedgerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	ledger, err := NewLedger(path, 5, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if _, err := ledger.Consume("v1"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := ledger.Consume("v1"); err != nil {
		t.Fatalf("consume: %v", err)
	}

	reopened, err := NewLedger(path, 5, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := reopened.Remaining("v1"); got != 3 {
		t.Fatalf("expected 3 remaining after reopen, got %d", got)
	}
}

func TestReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	ledger, err := NewLedger(path, 1, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if _, err := ledger.Consume("v1"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := ledger.Reset("v1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := ledger.Remaining("v1"); got != 1 {
		t.Fatalf("reset must restore the allowance, got %d", got)
	}
	// Resetting an untracked visitor is a no-op.
	if err := ledger.Reset("ghost"); err != nil {
		t.Fatalf("reset untracked: %v", err)
	}
}

func TestDefaultAllowance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	ledger, err := NewLedger(path, 0, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if ledger.Allowance() != schema.DefaultQuotaUses {
		t.Fatalf("zero allowance must fall back to default, got %d", ledger.Allowance())
	}
}
