package processing

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

func hasReason(txn *models.Transaction, substr string) bool {
	for _, reason := range txn.AnomalyReasons {
		if strings.Contains(reason, substr) {
			return true
		}
	}
	return false
}

func TestDetectLargeTransaction(t *testing.T) {
	cfg := testConfig()
	cfg.Anomaly.LargeTransactionThreshold = decimal.RequireFromString("5000.00")

	large := testTxn("2024-03-15", "WIRE OUT", "-9000.00")
	atThreshold := testTxn("2024-03-15", "TUITION", "-5000.00")
	small := testTxn("2024-03-15", "LUNCH", "-12.00")

	NewAnomalyDetector(cfg, testLogger()).DetectAnomalies([]*models.Transaction{large, atThreshold, small})

	if !hasReason(large, "Large transaction: $9000.00") {
		t.Errorf("large reasons = %v", large.AnomalyReasons)
	}
	// Threshold is inclusive.
	if !hasReason(atThreshold, "Large transaction: $5000.00") {
		t.Errorf("at-threshold reasons = %v", atThreshold.AnomalyReasons)
	}
	if small.IsAnomaly {
		t.Errorf("small transaction flagged: %v", small.AnomalyReasons)
	}
}

func TestFeeHeuristic(t *testing.T) {
	cfg := testConfig()
	cfg.Anomaly.FeeKeywords = []string{"CHARGE", "SERVICE"}
	d := NewAnomalyDetector(cfg, testLogger())

	tests := []struct {
		description string
		want        bool
	}{
		{"MONTHLY FEE", true},
		{"OVERDRAFT PROTECTION", true},
		{"NSF RETURNED ITEM", true},
		{"SERVICE CHARGE", true},
		// Strong keywords flag even next to a transfer indicator.
		{"WIRE TRANSFER FEE", true},
		// Transfer indicators suppress the configured keywords.
		{"ZELLE SERVICE PAYMENT", false},
		{"VENMO CHARGE", false},
		// POS prefixes are never fees.
		{"TST* COFFEE FEE HOUSE", false},
		{"SQ *LATE FEE BAKERY", false},
		// Whole-word matching: no match inside longer words.
		{"COFFEE HOUSE", false},
		{"FREE CHARGER", false},
		{"GROCERY STORE", false},
	}
	for _, tt := range tests {
		if got := d.isFee(tt.description); got != tt.want {
			t.Errorf("isFee(%q) = %v, want %v", tt.description, got, tt.want)
		}
	}
}

func TestDetectCashAdvance(t *testing.T) {
	cfg := testConfig()
	cfg.Anomaly.CashAdvanceKeywords = []string{"CASH ADVANCE", "CASINO"}

	hit := testTxn("2024-03-15", "atm cash advance", "-200.00")
	miss := testTxn("2024-03-15", "GROCERY", "-20.00")

	NewAnomalyDetector(cfg, testLogger()).DetectAnomalies([]*models.Transaction{hit, miss})

	if !hasReason(hit, "Cash advance detected") {
		t.Errorf("reasons = %v", hit.AnomalyReasons)
	}
	if miss.IsAnomaly {
		t.Error("non-matching transaction flagged")
	}
}

func TestCustomPatterns(t *testing.T) {
	cfg := testConfig()
	cfg.Anomaly.CustomPatterns = []common.CustomPattern{
		{Pattern: `^CRYPTO`, Reason: "Crypto exchange activity"},
		{Pattern: `GAMBLING`}, // default reason
		{Pattern: ``},         // skipped
		{Pattern: `(\w+)+`, Reason: "unsafe"}, // rejected by the guard
	}
	d := NewAnomalyDetector(cfg, testLogger())

	crypto := testTxn("2024-03-15", "CRYPTO EXCHANGE BUY", "-100.00")
	gambling := testTxn("2024-03-15", "ONLINE GAMBLING SITE", "-50.00")
	d.DetectAnomalies([]*models.Transaction{crypto, gambling})

	if !hasReason(crypto, "Crypto exchange activity") {
		t.Errorf("crypto reasons = %v", crypto.AnomalyReasons)
	}
	if !hasReason(gambling, "Custom pattern match") {
		t.Errorf("gambling reasons = %v", gambling.AnomalyReasons)
	}
}

func TestLargePeerPayment(t *testing.T) {
	cfg := testConfig()
	d := NewAnomalyDetector(cfg, testLogger())

	venmo := testTxn("2024-03-15", "VENMO PAYMENT JOHN", "-600.00")
	zelle := testTxn("2024-03-15", "ZELLE TO JANE", "-500.00")
	smallVenmo := testTxn("2024-03-15", "VENMO PAYMENT JOHN", "-100.00")

	d.DetectAnomalies([]*models.Transaction{venmo, zelle, smallVenmo})

	if !hasReason(venmo, "Large Venmo transfer ($500+)") {
		t.Errorf("venmo reasons = %v", venmo.AnomalyReasons)
	}
	if !hasReason(zelle, "Large Zelle transfer ($500+)") {
		t.Errorf("zelle reasons = %v", zelle.AnomalyReasons)
	}
	if smallVenmo.IsAnomaly {
		t.Errorf("small venmo flagged: %v", smallVenmo.AnomalyReasons)
	}
}

func TestDateGaps(t *testing.T) {
	cfg := testConfig()
	cfg.Anomaly.DateGapWarningDays = 7
	cfg.Anomaly.DateGapAlertDays = 30

	txns := []*models.Transaction{
		testTxn("2024-01-01", "A", "-1.00"),
		testTxn("2024-01-05", "B", "-1.00"), // 4 days: no gap
		testTxn("2024-01-15", "C", "-1.00"), // 10 days: warning
		testTxn("2024-03-01", "D", "-1.00"), // 46 days: alert
	}

	gaps := NewAnomalyDetector(cfg, testLogger()).DateGaps(txns)
	if len(gaps) != 2 {
		t.Fatalf("got %d gaps, want 2: %+v", len(gaps), gaps)
	}

	if gaps[0].GapDays != 10 || gaps[0].Severity != models.GapWarning {
		t.Errorf("first gap = %d days %q, want 10 warning", gaps[0].GapDays, gaps[0].Severity)
	}
	if gaps[1].GapDays != 46 || gaps[1].Severity != models.GapAlert {
		t.Errorf("second gap = %d days %q, want 46 alert", gaps[1].GapDays, gaps[1].Severity)
	}
}

func TestDateGapsThresholdBoundaries(t *testing.T) {
	cfg := testConfig()
	cfg.Anomaly.DateGapWarningDays = 7
	cfg.Anomaly.DateGapAlertDays = 30

	// Exactly 7 days is not a gap; exactly 30 days is a warning, not alert.
	txns := []*models.Transaction{
		testTxn("2024-01-01", "A", "-1.00"),
		testTxn("2024-01-08", "B", "-1.00"),
		testTxn("2024-02-07", "C", "-1.00"),
	}

	gaps := NewAnomalyDetector(cfg, testLogger()).DateGaps(txns)
	if len(gaps) != 1 {
		t.Fatalf("got %d gaps, want 1: %+v", len(gaps), gaps)
	}
	if gaps[0].GapDays != 30 || gaps[0].Severity != models.GapWarning {
		t.Errorf("gap = %d days %q, want 30 warning", gaps[0].GapDays, gaps[0].Severity)
	}
}

func TestDateGapsPerAccount(t *testing.T) {
	cfg := testConfig()
	a := testTxn("2024-01-01", "A", "-1.00")
	b := testTxn("2024-02-01", "B", "-1.00")
	b.AccountID = "amex"

	// One transaction per account: no consecutive pairs, no gaps.
	gaps := NewAnomalyDetector(cfg, testLogger()).DateGaps([]*models.Transaction{a, b})
	if len(gaps) != 0 {
		t.Errorf("got %d gaps across accounts, want 0", len(gaps))
	}
}

func TestAnomalySummary(t *testing.T) {
	cfg := testConfig()
	d := NewAnomalyDetector(cfg, testLogger())

	fee := testTxn("2024-03-15", "ANNUAL FEE", "-95.00")
	other := testTxn("2024-03-15", "LUNCH", "-12.00")
	d.DetectAnomalies([]*models.Transaction{fee, other})

	summary := d.AnomalySummary([]*models.Transaction{fee, other})
	if len(summary["Fee or charge detected"]) != 1 {
		t.Errorf("summary = %v", summary)
	}
}
