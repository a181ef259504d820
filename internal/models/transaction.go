package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType categorizes the direction of a transaction.
type TransactionType string

const (
	TxCredit TransactionType = "credit" // money in (positive amount)
	TxDebit  TransactionType = "debit"  // money out (negative amount)
)

// TypeFromAmount derives the transaction type from the amount sign.
// Zero amounts are treated as credits.
func TypeFromAmount(amount decimal.Decimal) TransactionType {
	if amount.IsNegative() {
		return TxDebit
	}
	return TxCredit
}

// CategorySource identifies how a transaction's category was assigned.
type CategorySource string

const (
	SourceRule         CategorySource = "rule"
	SourceManual       CategorySource = "manual"
	SourceCorrection   CategorySource = "correction"
	SourceAI           CategorySource = "ai"
	SourceAICorrection CategorySource = "ai_correction"
	SourceDefault      CategorySource = "default"
)

// RawTransaction is parsed transaction data before normalization.
// It captures what a parser extracts from a source file, ready to be
// normalized into a Transaction.
type RawTransaction struct {
	Date             time.Time
	Description      string
	Amount           decimal.Decimal
	HasAmount        bool
	Type             TransactionType // empty when the parser could not tell
	Balance          *decimal.Decimal
	SourceFile       string
	SourceLine       int
	CheckNumber      string
	Memo             string
	OriginalCategory string
}

// Transaction is a normalized transaction record. It is created by the
// normalizer in an uncategorized state and mutated in place by each
// pipeline stage; duplicates are flagged, never removed.
type Transaction struct {
	ID          string
	Date        time.Time
	Description string
	Amount      decimal.Decimal // signed: positive=credit, negative=debit
	Type        TransactionType
	AccountID   string
	AccountName string
	SourceFile  string
	SourceLine  int

	// Categorization
	Category          string
	Subcategory       string
	IsUncategorized   bool
	CategorySource    CategorySource
	CategoryRuleID    string
	Confidence        float64
	ConfidenceFactors []string
	MatchedPattern    string

	// Computed
	RunningBalance *decimal.Decimal // nil when unknown or excluded by cutoff

	// Flags
	IsDuplicate    bool
	DuplicateOf    string
	IsAnomaly      bool
	AnomalyReasons []string

	// Audit trail
	Raw *RawTransaction
}

// ISODate formats a date as YYYY-MM-DD.
func ISODate(t time.Time) string {
	return t.Format("2006-01-02")
}

// DaysBetween returns the number of raw calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

// Fingerprint returns a deterministic 16-character lowercase hex identifier
// derived from date, normalized description, amount and account. Identical
// values produce identical fingerprints across runs; indistinguishable
// transactions intentionally collide so an imported correction applies to
// all of them.
func (t *Transaction) Fingerprint() string {
	desc := strings.ToLower(strings.TrimSpace(t.Description))
	payload := fmt.Sprintf("%s|%s|%s|%s",
		ISODate(t.Date), desc, t.Amount.StringFixed(2), t.AccountID)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:8])
}

// AssignCategory sets the categorization fields on the transaction.
func (t *Transaction) AssignCategory(categoryID string, source CategorySource, opts CategoryAssignment) {
	t.Category = categoryID
	t.Subcategory = opts.SubcategoryID
	t.CategorySource = source
	t.CategoryRuleID = opts.RuleID
	t.Confidence = opts.Confidence
	t.ConfidenceFactors = opts.ConfidenceFactors
	t.MatchedPattern = opts.MatchedPattern
	t.IsUncategorized = false
}

// CategoryAssignment carries the optional fields of a category assignment.
type CategoryAssignment struct {
	SubcategoryID     string
	RuleID            string
	Confidence        float64
	ConfidenceFactors []string
	MatchedPattern    string
}

// FlagDuplicate marks this transaction as a duplicate of another.
func (t *Transaction) FlagDuplicate(originalID string) {
	t.IsDuplicate = true
	t.DuplicateOf = originalID
}

// AddAnomaly records an anomaly reason, ignoring exact repeats.
func (t *Transaction) AddAnomaly(reason string) {
	t.IsAnomaly = true
	for _, r := range t.AnomalyReasons {
		if r == reason {
			return
		}
	}
	t.AnomalyReasons = append(t.AnomalyReasons, reason)
}

// CheckNumber returns the check/reference number captured by the parser,
// or empty when none was present.
func (t *Transaction) CheckNumber() string {
	if t.Raw == nil {
		return ""
	}
	return t.Raw.CheckNumber
}

func (t *Transaction) String() string {
	desc := t.Description
	if len(desc) > 30 {
		desc = desc[:30] + "..."
	}
	return fmt.Sprintf("Transaction(%s %q %s %s)", ISODate(t.Date), desc, t.Amount, t.AccountName)
}
