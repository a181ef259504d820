package processing

import (
	"github.com/shopspring/decimal"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// BalanceCalculator computes per-account running balances from each
// account's opening balance, walking transactions in canonical order.
type BalanceCalculator struct {
	cfg    *common.Config
	logger *common.Logger
}

// NewBalanceCalculator creates a balance calculator.
func NewBalanceCalculator(cfg *common.Config, logger *common.Logger) *BalanceCalculator {
	return &BalanceCalculator{cfg: cfg, logger: logger}
}

// CalculateBalances sets running balances in place and returns the same
// slice. Transactions dated before an account's opening-balance cutoff get
// an explicitly unknown (nil) balance and are excluded from the
// accumulator.
func (b *BalanceCalculator) CalculateBalances(txns []*models.Transaction) []*models.Transaction {
	byAccount := groupByAccount(txns)
	for _, accountID := range sortedAccountIDs(byAccount) {
		b.walkAccount(accountID, byAccount[accountID])
	}
	return txns
}

func (b *BalanceCalculator) walkAccount(accountID string, txns []*models.Transaction) {
	opening := decimal.Zero
	account, hasAccount := b.cfg.Accounts[accountID]
	if hasAccount {
		opening = account.OpeningBalance
	}

	sorted := sortCanonical(txns)

	running := opening
	for _, txn := range sorted {
		if hasAccount && account.OpeningBalanceDate != nil && txn.Date.Before(*account.OpeningBalanceDate) {
			// Predates the opening balance: explicitly unknown, not zero.
			txn.RunningBalance = nil
			continue
		}
		running = running.Add(txn.Amount)
		balance := running
		txn.RunningBalance = &balance
	}

	b.logger.Debug().
		Str("account", accountID).
		Int("transactions", len(txns)).
		Str("opening", opening.String()).
		Str("closing", running.String()).
		Msg("Calculated running balances")
}

// AccountSummaries aggregates opening balance, credit and debit totals and
// the closing balance per account. The closing balance comes from the last
// qualifying transaction's running balance, or is derived algebraically
// when no transaction qualifies.
func (b *BalanceCalculator) AccountSummaries(txns []*models.Transaction) map[string]models.AccountSummary {
	byAccount := groupByAccount(txns)
	summaries := make(map[string]models.AccountSummary, len(byAccount))

	for accountID, accountTxns := range byAccount {
		opening := decimal.Zero
		if account, ok := b.cfg.Accounts[accountID]; ok {
			opening = account.OpeningBalance
		}

		credits, debits := decimal.Zero, decimal.Zero
		for _, txn := range accountTxns {
			if txn.Amount.IsPositive() {
				credits = credits.Add(txn.Amount)
			} else if txn.Amount.IsNegative() {
				debits = debits.Add(txn.Amount)
			}
		}

		closing := opening.Add(credits).Add(debits)
		sorted := sortCanonical(accountTxns)
		for i := len(sorted) - 1; i >= 0; i-- {
			if sorted[i].RunningBalance != nil {
				closing = *sorted[i].RunningBalance
				break
			}
		}

		summaries[accountID] = models.AccountSummary{
			OpeningBalance: opening,
			TotalCredits:   credits,
			TotalDebits:    debits,
			ClosingBalance: closing,
		}
	}

	return summaries
}
