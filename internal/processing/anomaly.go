package processing

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// Point-of-sale prefixes that are never fees regardless of wording.
var merchantPrefixes = []string{"TST*", "SQ *", "SQU*", "TOAST*"}

// Strong fee keywords flag even when a transfer service appears in the
// description; configured keywords only flag without a transfer indicator.
var (
	strongFeeKeywords  = []string{"FEE", "PENALTY", "OVERDRAFT", "NSF", "LATE FEE", "ANNUAL FEE", "MONTHLY FEE"}
	transferIndicators = []string{"TRANSFER", "VENMO", "ZELLE", "PAYPAL", "ACH", "WIRE"}
)

// largePeerPaymentThreshold triggers the distinct large Venmo/Zelle check.
var largePeerPaymentThreshold = decimal.NewFromInt(500)

// AnomalyDetector flags individual transactions (large amounts, fees, cash
// advances, custom patterns) and reports per-account date gaps.
type AnomalyDetector struct {
	cfg      *common.Config
	logger   *common.Logger
	compiled []compiledCustomPattern
}

type compiledCustomPattern struct {
	re     *regexp.Regexp
	reason string
}

// NewAnomalyDetector creates a detector, validating custom patterns once
// through the same guard as categorization rules. Empty or unsafe patterns
// are skipped with a warning.
func NewAnomalyDetector(cfg *common.Config, logger *common.Logger) *AnomalyDetector {
	d := &AnomalyDetector{cfg: cfg, logger: logger}

	for _, custom := range cfg.Anomaly.CustomPatterns {
		if strings.TrimSpace(custom.Pattern) == "" {
			logger.Warn().Msg("Skipping empty custom anomaly pattern")
			continue
		}
		re, reason := models.CompileGuarded(custom.Pattern)
		if re == nil {
			logger.Warn().Str("pattern", custom.Pattern).Str("reason", reason).
				Msg("Skipping unsafe custom anomaly pattern")
			continue
		}
		description := custom.Reason
		if description == "" {
			description = "Custom pattern match"
		}
		d.compiled = append(d.compiled, compiledCustomPattern{re: re, reason: description})
	}

	return d
}

// DetectAnomalies flags anomalies in place and returns the same slice.
// Each check is independent; a transaction collects every applicable
// reason.
func (d *AnomalyDetector) DetectAnomalies(txns []*models.Transaction) []*models.Transaction {
	flagged := 0
	for _, txn := range txns {
		reasons := d.checkTransaction(txn)
		for _, reason := range reasons {
			txn.AddAnomaly(reason)
			flagged++
		}
	}

	gaps := d.DateGaps(txns)

	d.logger.Info().
		Int("anomalies", flagged).
		Int("date_gaps", len(gaps)).
		Msg("Anomaly detection complete")

	return txns
}

func (d *AnomalyDetector) checkTransaction(txn *models.Transaction) []string {
	var reasons []string

	if txn.Amount.Abs().GreaterThanOrEqual(d.cfg.Anomaly.LargeTransactionThreshold) {
		reasons = append(reasons, fmt.Sprintf("Large transaction: $%s", txn.Amount.Abs().StringFixed(2)))
	}
	if d.isFee(txn.Description) {
		reasons = append(reasons, "Fee or charge detected")
	}
	if d.isCashAdvance(txn.Description) {
		reasons = append(reasons, "Cash advance detected")
	}
	if reason := d.checkCustomPatterns(txn); reason != "" {
		reasons = append(reasons, reason)
	}

	return reasons
}

// isFee applies the layered fee heuristic: POS prefixes are never fees,
// strong keywords always are, transfer indicators short-circuit to
// non-fee, and the configured keywords only count in their absence.
func (d *AnomalyDetector) isFee(description string) bool {
	upper := strings.ToUpper(description)

	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			return false
		}
	}

	for _, keyword := range strongFeeKeywords {
		if matchWholeWord(upper, keyword) {
			return true
		}
	}

	for _, indicator := range transferIndicators {
		if strings.Contains(upper, indicator) {
			return false
		}
	}

	for _, keyword := range d.cfg.Anomaly.FeeKeywords {
		if matchWholeWord(upper, strings.ToUpper(keyword)) {
			return true
		}
	}

	return false
}

func matchWholeWord(text, word string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}

func (d *AnomalyDetector) isCashAdvance(description string) bool {
	upper := strings.ToUpper(description)
	for _, keyword := range d.cfg.Anomaly.CashAdvanceKeywords {
		if strings.Contains(upper, strings.ToUpper(keyword)) {
			return true
		}
	}
	return false
}

// checkCustomPatterns evaluates user patterns, then the built-in large
// peer-payment heuristic, which is reported distinctly from the generic
// large-transaction flag.
func (d *AnomalyDetector) checkCustomPatterns(txn *models.Transaction) string {
	for _, custom := range d.compiled {
		if custom.re.MatchString(txn.Description) {
			return custom.reason
		}
	}

	if txn.Amount.Abs().GreaterThanOrEqual(largePeerPaymentThreshold) {
		upper := strings.ToUpper(txn.Description)
		if strings.Contains(upper, "VENMO") {
			return "Large Venmo transfer ($500+)"
		}
		if strings.Contains(upper, "ZELLE") {
			return "Large Zelle transfer ($500+)"
		}
	}

	return ""
}

// DateGaps reports spans between chronologically consecutive transactions
// of an account exceeding the configured thresholds. A gap gets exactly one
// severity: alert above the alert threshold, otherwise warning above the
// warning threshold. Gap days count raw calendar days between the dates.
func (d *AnomalyDetector) DateGaps(txns []*models.Transaction) []models.DateGap {
	byAccount := groupByAccount(txns)

	var gaps []models.DateGap
	for _, accountID := range sortedAccountIDs(byAccount) {
		accountTxns := byAccount[accountID]
		if len(accountTxns) < 2 {
			continue
		}

		sorted := make([]*models.Transaction, len(accountTxns))
		copy(sorted, accountTxns)
		sort.SliceStable(sorted, func(i, j int) bool {
			a, b := sorted[i], sorted[j]
			if !a.Date.Equal(b.Date) {
				return a.Date.Before(b.Date)
			}
			if a.Description != b.Description {
				return a.Description < b.Description
			}
			return a.Fingerprint() < b.Fingerprint()
		})

		for i := 1; i < len(sorted); i++ {
			prev, curr := sorted[i-1], sorted[i]
			gapDays := models.DaysBetween(prev.Date, curr.Date)

			switch {
			case gapDays > d.cfg.Anomaly.DateGapAlertDays:
				gaps = append(gaps, models.DateGap{
					AccountID: accountID,
					StartDate: prev.Date,
					EndDate:   curr.Date,
					GapDays:   gapDays,
					Severity:  models.GapAlert,
				})
			case gapDays > d.cfg.Anomaly.DateGapWarningDays:
				gaps = append(gaps, models.DateGap{
					AccountID: accountID,
					StartDate: prev.Date,
					EndDate:   curr.Date,
					GapDays:   gapDays,
					Severity:  models.GapWarning,
				})
			}
		}
	}

	return gaps
}

// AnomalySummary groups flagged transactions by anomaly reason.
func (d *AnomalyDetector) AnomalySummary(txns []*models.Transaction) map[string][]*models.Transaction {
	summary := make(map[string][]*models.Transaction)
	for _, txn := range txns {
		if !txn.IsAnomaly {
			continue
		}
		for _, reason := range txn.AnomalyReasons {
			summary[reason] = append(summary[reason], txn)
		}
	}
	return summary
}
