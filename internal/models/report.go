package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// GapSeverity grades a date gap. A gap gets exactly one severity.
type GapSeverity string

const (
	GapWarning GapSeverity = "warning"
	GapAlert   GapSeverity = "alert"
)

// DateGap is a span between chronologically consecutive transactions of one
// account that exceeds a configured threshold.
type DateGap struct {
	AccountID string
	StartDate time.Time
	EndDate   time.Time
	GapDays   int
	Severity  GapSeverity
}

// AccountSummary aggregates the balance walk for one account.
type AccountSummary struct {
	OpeningBalance decimal.Decimal
	TotalCredits   decimal.Decimal
	TotalDebits    decimal.Decimal
	ClosingBalance decimal.Decimal
}

// ImportResult reports the outcome of a corrections import.
type ImportResult struct {
	Imported       int
	Skipped        int
	SkippedReasons []string
	Corrections    map[string]CategoryCorrection
}
