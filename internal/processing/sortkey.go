package processing

import (
	"sort"

	"github.com/bmorton/finledger/internal/models"
)

// canonicalLess orders transactions by the deterministic tuple
// (date, description, amount, source file, source line). Run-varying
// identifiers are deliberately excluded so duplicate flags, running
// balances and date gaps reproduce bit-for-bit across runs.
func canonicalLess(a, b *models.Transaction) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if a.Description != b.Description {
		return a.Description < b.Description
	}
	if cmp := a.Amount.Cmp(b.Amount); cmp != 0 {
		return cmp < 0
	}
	if a.SourceFile != b.SourceFile {
		return a.SourceFile < b.SourceFile
	}
	return a.SourceLine < b.SourceLine
}

// sortCanonical returns a new slice sorted by the canonical key, leaving
// the caller's ordering untouched.
func sortCanonical(txns []*models.Transaction) []*models.Transaction {
	sorted := make([]*models.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return canonicalLess(sorted[i], sorted[j])
	})
	return sorted
}

// groupByAccount buckets transactions by account id.
func groupByAccount(txns []*models.Transaction) map[string][]*models.Transaction {
	byAccount := make(map[string][]*models.Transaction)
	for _, txn := range txns {
		byAccount[txn.AccountID] = append(byAccount[txn.AccountID], txn)
	}
	return byAccount
}

// sortedAccountIDs returns the bucket keys in lexical order so per-account
// walks emit results in a stable order.
func sortedAccountIDs(byAccount map[string][]*models.Transaction) []string {
	ids := make([]string, 0, len(byAccount))
	for id := range byAccount {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
