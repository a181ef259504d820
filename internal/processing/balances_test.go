package processing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bmorton/finledger/internal/models"
)

func TestCalculateBalancesWalk(t *testing.T) {
	cfg := testConfig()
	account := cfg.Accounts["chase"]
	account.OpeningBalance = decimal.RequireFromString("1000.00")
	cfg.Accounts["chase"] = account

	a := testTxn("2024-03-15", "DEPOSIT", "500.00")
	b := testTxn("2024-03-16", "GROCERIES", "-75.50")

	NewBalanceCalculator(cfg, testLogger()).CalculateBalances([]*models.Transaction{b, a})

	if a.RunningBalance == nil || !a.RunningBalance.Equal(decimal.RequireFromString("1500.00")) {
		t.Errorf("first balance = %v, want 1500.00", a.RunningBalance)
	}
	if b.RunningBalance == nil || !b.RunningBalance.Equal(decimal.RequireFromString("1424.50")) {
		t.Errorf("second balance = %v, want 1424.50", b.RunningBalance)
	}
}

func TestCalculateBalancesPreCutoffIsUnknown(t *testing.T) {
	cfg := testConfig()
	cutoff := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	account := cfg.Accounts["chase"]
	account.OpeningBalance = decimal.RequireFromString("100.00")
	account.OpeningBalanceDate = &cutoff
	cfg.Accounts["chase"] = account

	old := testTxn("2024-02-15", "OLD CHARGE", "-50.00")
	recent := testTxn("2024-03-15", "NEW CHARGE", "-25.00")

	NewBalanceCalculator(cfg, testLogger()).CalculateBalances([]*models.Transaction{old, recent})

	if old.RunningBalance != nil {
		t.Errorf("pre-cutoff balance = %v, want nil (unknown, not zero)", old.RunningBalance)
	}
	// Pre-cutoff amounts must not leak into the accumulator.
	if recent.RunningBalance == nil || !recent.RunningBalance.Equal(decimal.RequireFromString("75.00")) {
		t.Errorf("post-cutoff balance = %v, want 75.00", recent.RunningBalance)
	}
}

func TestCalculateBalancesUnknownAccountStartsAtZero(t *testing.T) {
	cfg := testConfig()
	txn := testTxn("2024-03-15", "CHARGE", "-10.00")
	txn.AccountID = "unmapped"

	NewBalanceCalculator(cfg, testLogger()).CalculateBalances([]*models.Transaction{txn})
	if txn.RunningBalance == nil || !txn.RunningBalance.Equal(decimal.RequireFromString("-10.00")) {
		t.Errorf("balance = %v, want -10.00", txn.RunningBalance)
	}
}

func TestAccountSummaries(t *testing.T) {
	cfg := testConfig()
	account := cfg.Accounts["chase"]
	account.OpeningBalance = decimal.RequireFromString("1000.00")
	cfg.Accounts["chase"] = account

	a := testTxn("2024-03-15", "DEPOSIT", "500.00")
	b := testTxn("2024-03-16", "GROCERIES", "-75.50")
	txns := []*models.Transaction{a, b}

	calc := NewBalanceCalculator(cfg, testLogger())
	calc.CalculateBalances(txns)
	summaries := calc.AccountSummaries(txns)

	summary, ok := summaries["chase"]
	if !ok {
		t.Fatal("missing summary for chase")
	}
	if !summary.OpeningBalance.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("opening = %v", summary.OpeningBalance)
	}
	if !summary.TotalCredits.Equal(decimal.RequireFromString("500.00")) {
		t.Errorf("credits = %v", summary.TotalCredits)
	}
	if !summary.TotalDebits.Equal(decimal.RequireFromString("-75.50")) {
		t.Errorf("debits = %v", summary.TotalDebits)
	}
	if !summary.ClosingBalance.Equal(decimal.RequireFromString("1424.50")) {
		t.Errorf("closing = %v", summary.ClosingBalance)
	}
}

func TestAccountSummariesClosingWithoutRunningBalances(t *testing.T) {
	cfg := testConfig()
	account := cfg.Accounts["chase"]
	account.OpeningBalance = decimal.RequireFromString("200.00")
	cfg.Accounts["chase"] = account

	// No balance walk ran: closing falls back to opening + credits + debits.
	a := testTxn("2024-03-15", "DEPOSIT", "50.00")
	b := testTxn("2024-03-16", "CHARGE", "-30.00")

	summaries := NewBalanceCalculator(cfg, testLogger()).AccountSummaries([]*models.Transaction{a, b})
	if got := summaries["chase"].ClosingBalance; !got.Equal(decimal.RequireFromString("220.00")) {
		t.Errorf("closing = %v, want 220.00", got)
	}
}
