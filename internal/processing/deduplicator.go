package processing

import (
	"sort"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// Same-day pairs need a stricter similarity bar: legitimate same-day
// recurring charges are common and the general bar produces false
// positives there.
const sameDaySimilarityThreshold = 0.95

// Deduplicator flags likely duplicate transactions. Candidates are
// partitioned by exact (account, signed amount) and compared pairwise on
// date proximity and description similarity. Duplicates are flagged, never
// removed, and the flagging is deterministic regardless of input order.
type Deduplicator struct {
	logger *common.Logger

	// SimilarityThreshold is the description similarity required for pairs
	// on different days (default 0.90).
	SimilarityThreshold float64

	// DateToleranceDays is the maximum date difference for a pair to be
	// considered (default 1).
	DateToleranceDays int
}

// NewDeduplicator creates a deduplicator with default thresholds.
func NewDeduplicator(logger *common.Logger) *Deduplicator {
	return &Deduplicator{
		logger:              logger,
		SimilarityThreshold: 0.90,
		DateToleranceDays:   1,
	}
}

// FindDuplicates flags duplicates in place and returns the same slice.
// Within each (account, amount) partition, transactions are compared in
// canonical order; on a match the later transaction is flagged as a
// duplicate of the earlier. An already-flagged transaction still serves as
// a comparison source (so full groups surface for review) but is never
// re-flagged.
func (d *Deduplicator) FindDuplicates(txns []*models.Transaction) []*models.Transaction {
	if len(txns) == 0 {
		return txns
	}

	duplicates := 0
	for _, group := range d.partition(txns) {
		if len(group) < 2 {
			continue
		}
		sorted := sortCanonical(group)

		for i, earlier := range sorted {
			if earlier.IsDuplicate {
				continue
			}
			for _, later := range sorted[i+1:] {
				if d.areDuplicates(earlier, later) && !later.IsDuplicate {
					later.FlagDuplicate(earlier.ID)
					duplicates++
				}
			}
		}
	}

	d.logger.Info().Int("duplicates", duplicates).Msg("Duplicate detection complete")
	return txns
}

// DuplicateGroups returns, per (account, amount) partition, the set of
// transactions participating in at least one qualifying pair. Grouping is
// pair-based, not a transitive closure: members connect through shared
// partitions and direct pairs only.
func (d *Deduplicator) DuplicateGroups(txns []*models.Transaction) [][]*models.Transaction {
	var groups [][]*models.Transaction

	partitions := d.partition(txns)
	for _, key := range sortedPartitionKeys(partitions) {
		group := partitions[key]
		if len(group) < 2 {
			continue
		}
		sorted := sortCanonical(group)

		inPair := make(map[*models.Transaction]bool)
		for i, a := range sorted {
			for _, b := range sorted[i+1:] {
				if d.areDuplicates(a, b) {
					inPair[a] = true
					inPair[b] = true
				}
			}
		}
		if len(inPair) == 0 {
			continue
		}

		members := make([]*models.Transaction, 0, len(inPair))
		for _, txn := range sorted {
			if inPair[txn] {
				members = append(members, txn)
			}
		}
		groups = append(groups, members)
	}

	return groups
}

// partition buckets transactions by exact (account id, signed amount).
// No amount tolerance: a penny difference is a different partition.
func (d *Deduplicator) partition(txns []*models.Transaction) map[string][]*models.Transaction {
	byKey := make(map[string][]*models.Transaction)
	for _, txn := range txns {
		key := txn.AccountID + "|" + txn.Amount.String()
		byKey[key] = append(byKey[key], txn)
	}
	return byKey
}

// areDuplicates reports whether two same-partition transactions are likely
// duplicates.
func (d *Deduplicator) areDuplicates(a, b *models.Transaction) bool {
	// Differing check numbers veto the pair: recurring legitimate payments
	// often differ only by check number.
	checkA, checkB := a.CheckNumber(), b.CheckNumber()
	if checkA != "" && checkB != "" && checkA != checkB {
		return false
	}

	dateDiff := models.DaysBetween(a.Date, b.Date)
	if dateDiff < 0 {
		dateDiff = -dateDiff
	}
	if dateDiff > d.DateToleranceDays {
		return false
	}

	similarity := descriptionSimilarity(a.Description, b.Description)
	if dateDiff == 0 {
		if similarity < sameDaySimilarityThreshold {
			return false
		}
	} else if similarity < d.SimilarityThreshold {
		return false
	}

	if a.SourceFile != b.SourceFile {
		d.logger.Debug().
			Str("description", a.Description).
			Str("file_a", a.SourceFile).
			Str("file_b", b.SourceFile).
			Msg("Cross-file duplicate")
	}

	return true
}

func sortedPartitionKeys(partitions map[string][]*models.Transaction) []string {
	keys := make([]string, 0, len(partitions))
	for key := range partitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
