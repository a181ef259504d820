// Package processing implements the transaction pipeline: normalization,
// categorization, duplicate detection, running balances and anomaly
// detection. Stages are synchronous, single-threaded and mutate the
// caller-owned transaction slice in place.
package processing

import (
	"github.com/google/uuid"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// Normalizer converts raw parsed records into canonical Transaction
// records: it associates them with an account, applies the optional
// date-range filter, derives the transaction type from the amount sign and
// assigns fresh per-run IDs.
type Normalizer struct {
	cfg    *common.Config
	logger *common.Logger
}

// NewNormalizer creates a normalizer.
func NewNormalizer(cfg *common.Config, logger *common.Logger) *Normalizer {
	return &Normalizer{cfg: cfg, logger: logger}
}

// Normalize converts raw transactions for a single account.
func (n *Normalizer) Normalize(raws []models.RawTransaction, account models.Account) []*models.Transaction {
	transactions := make([]*models.Transaction, 0, len(raws))
	for i := range raws {
		txn := n.normalizeOne(&raws[i], account)
		if txn != nil {
			transactions = append(transactions, txn)
		}
	}

	n.logger.Info().
		Int("normalized", len(transactions)).
		Int("raw", len(raws)).
		Str("account", account.Name).
		Msg("Normalized transactions")

	return transactions
}

// NormalizeAll converts raw transactions from multiple files, resolving the
// account per file. Files with no account mapping are skipped with a
// warning.
func (n *Normalizer) NormalizeAll(byFile map[string][]models.RawTransaction) []*models.Transaction {
	var all []*models.Transaction

	for filename, raws := range byFile {
		account, ok := n.cfg.AccountForFile(filename)
		if !ok {
			n.logger.Warn().Str("file", filename).Msg("No account mapping for file, skipping")
			continue
		}
		all = append(all, n.Normalize(raws, account)...)
	}

	n.logger.Info().Int("total", len(all)).Msg("Total normalized transactions")
	return all
}

func (n *Normalizer) normalizeOne(raw *models.RawTransaction, account models.Account) *models.Transaction {
	if n.cfg.StartDate != nil && raw.Date.Before(*n.cfg.StartDate) {
		return nil
	}
	if n.cfg.EndDate != nil && raw.Date.After(*n.cfg.EndDate) {
		return nil
	}
	if !raw.HasAmount {
		n.logger.Warn().Str("description", raw.Description).Msg("Transaction has no amount, skipping")
		return nil
	}

	txType := raw.Type
	if txType == "" {
		txType = models.TypeFromAmount(raw.Amount)
	}

	return &models.Transaction{
		ID:              uuid.NewString(),
		Date:            raw.Date,
		Description:     raw.Description,
		Amount:          raw.Amount,
		Type:            txType,
		AccountID:       account.ID,
		AccountName:     account.Name,
		SourceFile:      raw.SourceFile,
		SourceLine:      raw.SourceLine,
		IsUncategorized: true,
		CategorySource:  models.SourceDefault,
		RunningBalance:  raw.Balance, // may be replaced by the balance walk
		Raw:             raw,
	}
}
