package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
	"github.com/bmorton/finledger/internal/processing"
)

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}

func testConfig() *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Categories = map[string]models.Category{
		"dining": {ID: "dining", Name: "Dining", Type: models.CategoryExpense},
		"income": {ID: "income", Name: "Income", Type: models.CategoryIncome},
	}
	cfg.Accounts = map[string]models.Account{
		"chase": {ID: "chase", Name: "Chase Checking", Type: models.AccountChecking, IsActive: true},
	}
	return cfg
}

func testTxn(date, description, amount string) *models.Transaction {
	d, _ := time.Parse("2006-01-02", date)
	value := decimal.RequireFromString(amount)
	return &models.Transaction{
		ID:              "id-" + description,
		Date:            d,
		Description:     description,
		Amount:          value,
		Type:            models.TypeFromAmount(value),
		AccountID:       "chase",
		AccountName:     "Chase Checking",
		SourceFile:      "chase.csv",
		IsUncategorized: true,
		CategorySource:  models.SourceDefault,
	}
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestSanitizeForCSV(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SAFE TEXT", "SAFE TEXT"},
		{"=SUM(A1:A9)", "'=SUM(A1:A9)"},
		{"+1234", "'+1234"},
		{"-CHARGE", "'-CHARGE"},
		{"@cmd", "'@cmd"},
		{"|pipe", "'|pipe"},
		{"", ""},
		{"AMOUNT = 5", "AMOUNT = 5"}, // only leading characters trigger
	}
	for _, tt := range tests {
		if got := sanitizeForCSV(tt.in); got != tt.want {
			t.Errorf("sanitizeForCSV(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeMerchant(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"STARBUCKS #1234", "STARBUCKS"},
		{"STARBUCKS 567", "STARBUCKS"},
		{"ACME CORP", "ACME"},
		{"WIDGETS LLC.", "WIDGETS"},
		{"PLAIN MERCHANT", "PLAIN MERCHANT"},
		{"  SPACED   OUT  ", "SPACED OUT"},
		{"12345", "12345"}, // normalizing to nothing keeps the original
	}
	for _, tt := range tests {
		if got := normalizeMerchant(tt.in); got != tt.want {
			t.Errorf("normalizeMerchant(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"chase_checking", "chase_checking"},
		{"my account/2024", "my_account_2024"},
		{`a<b>c:d"e`, "a_b_c_d_e"},
		{"///", "unknown"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExportAllTransactions(t *testing.T) {
	cfg := testConfig()
	outDir := t.TempDir()

	categorized := testTxn("2024-03-15", "STARBUCKS #1234", "-5.75")
	categorized.AssignCategory("dining", models.SourceRule, models.CategoryAssignment{
		Confidence:        0.85,
		ConfidenceFactors: []string{"Regex match (base 0.85)"},
		MatchedPattern:    "STARBUCKS",
	})
	balance := decimal.RequireFromString("994.25")
	categorized.RunningBalance = &balance

	uncategorized := testTxn("2024-03-16", "MYSTERY", "-10.00")
	injection := testTxn("2024-03-17", "=HYPERLINK(evil)", "-1.00")

	exporter := NewCSVExporter(cfg, testLogger())
	paths, err := exporter.Export(outDir, []*models.Transaction{uncategorized, categorized, injection}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no files created")
	}

	rows := readCSVFile(t, filepath.Join(outDir, "all_transactions.csv"))
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}

	header := rows[0]
	if header[0] != "Date" || header[14] != "Fingerprint" {
		t.Errorf("header = %v", header)
	}

	// Sorted by date: categorized first.
	first := rows[1]
	if first[2] != "STARBUCKS #1234" || first[3] != "Dining" {
		t.Errorf("first row = %v", first)
	}
	if first[5] != "-5.75" || first[6] != "994.25" {
		t.Errorf("amount/balance = %q/%q", first[5], first[6])
	}
	if first[10] != "0.85" || first[12] != "rule" {
		t.Errorf("confidence/source = %q/%q", first[10], first[12])
	}
	if first[14] != categorized.Fingerprint() {
		t.Errorf("fingerprint = %q", first[14])
	}

	second := rows[2]
	if second[9] != "Yes" {
		t.Errorf("uncategorized flag = %q", second[9])
	}
	if second[10] != "" {
		t.Errorf("uncategorized confidence = %q, want blank", second[10])
	}
	// Unknown balances stay blank, never zero.
	if second[6] != "" {
		t.Errorf("unknown balance = %q, want blank", second[6])
	}

	if rows[3][2] != "'=HYPERLINK(evil)" {
		t.Errorf("formula injection not sanitized: %q", rows[3][2])
	}
}

func TestExportRoundTripsToCorrectionsImporter(t *testing.T) {
	cfg := testConfig()
	outDir := t.TempDir()

	txn := testTxn("2024-03-15", "STARBUCKS #1234", "-5.75")
	txn.AssignCategory("dining", models.SourceRule, models.CategoryAssignment{Confidence: 0.85})

	if _, err := NewCSVExporter(cfg, testLogger()).Export(outDir, []*models.Transaction{txn}, nil, nil); err != nil {
		t.Fatal(err)
	}

	// The exported master CSV feeds straight back into the importer.
	importer := processing.NewCorrectionImporter(cfg, testLogger())
	result, err := importer.ImportFile(filepath.Join(outDir, "all_transactions.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 1 {
		t.Fatalf("imported = %d skipped = %v", result.Imported, result.SkippedReasons)
	}

	corr, ok := result.Corrections[txn.Fingerprint()]
	if !ok {
		t.Fatal("fingerprint not round-tripped")
	}
	if corr.CategoryID != "dining" {
		t.Errorf("category = %q", corr.CategoryID)
	}
	if corr.OriginalSource != "rule" {
		t.Errorf("original source = %q", corr.OriginalSource)
	}
}

func TestExportAnomaliesAndGaps(t *testing.T) {
	cfg := testConfig()
	outDir := t.TempDir()

	txn := testTxn("2024-03-15", "WIRE OUT", "-9000.00")
	txn.AddAnomaly("Large transaction: $9000.00")
	gaps := []models.DateGap{{
		AccountID: "chase",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC),
		GapDays:   45,
		Severity:  models.GapAlert,
	}}

	if _, err := NewCSVExporter(cfg, testLogger()).Export(outDir, []*models.Transaction{txn}, gaps, nil); err != nil {
		t.Fatal(err)
	}

	rows := readCSVFile(t, filepath.Join(outDir, "anomalies.csv"))
	if rows[0][0] != "Transaction Anomalies" {
		t.Errorf("first section = %v", rows[0])
	}
	if rows[2][4] != "Large transaction: $9000.00" {
		t.Errorf("anomaly row = %v", rows[2])
	}

	var gapHeader int
	for i, row := range rows {
		if len(row) > 0 && row[0] == "Date Gap Anomalies" {
			gapHeader = i
			break
		}
	}
	if gapHeader == 0 {
		t.Fatal("missing date gap section")
	}
	gapRow := rows[gapHeader+2]
	if gapRow[3] != "45" || gapRow[4] != "alert" {
		t.Errorf("gap row = %v", gapRow)
	}
}

func TestExportCategoryAnalysis(t *testing.T) {
	cfg := testConfig()
	outDir := t.TempDir()

	mar := testTxn("2024-03-15", "LUNCH", "-20.00")
	mar.AssignCategory("dining", models.SourceRule, models.CategoryAssignment{})
	apr := testTxn("2024-04-02", "DINNER", "-30.00")
	apr.AssignCategory("dining", models.SourceRule, models.CategoryAssignment{})

	if _, err := NewCSVExporter(cfg, testLogger()).Export(outDir, []*models.Transaction{apr, mar}, nil, nil); err != nil {
		t.Fatal(err)
	}

	rows := readCSVFile(t, filepath.Join(outDir, "category_analysis.csv"))
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	// Header: Category, 2024-03, 2024-04, Total.
	if rows[0][1] != "2024-03" || rows[0][2] != "2024-04" {
		t.Errorf("months = %v", rows[0])
	}
	// Expense values report as absolutes.
	if rows[1][1] != "20.00" || rows[1][2] != "30.00" || rows[1][3] != "50.00" {
		t.Errorf("dining row = %v", rows[1])
	}
}

func TestExportUncategorizedForReview(t *testing.T) {
	cfg := testConfig()
	outDir := t.TempDir()

	a := testTxn("2024-03-15", "NEWSHOP #12", "-5.00")
	b := testTxn("2024-03-16", "NEWSHOP #34", "-7.00")
	c := testTxn("2024-03-17", "ONEOFF VENDOR", "-3.00")

	if _, err := NewCSVExporter(cfg, testLogger()).Export(outDir, []*models.Transaction{c, a, b}, nil, nil); err != nil {
		t.Fatal(err)
	}

	rows := readCSVFile(t, filepath.Join(outDir, "uncategorized_for_review.csv"))
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	// Most frequent merchant pattern first.
	if rows[1][0] != "NEWSHOP" || rows[1][1] != "2" {
		t.Errorf("first pattern = %v", rows[1])
	}
	if rows[1][2] != "-12.00" || rows[1][3] != "-6.00" {
		t.Errorf("totals = %v", rows[1])
	}
}

func TestExportAccountSummaries(t *testing.T) {
	cfg := testConfig()
	outDir := t.TempDir()

	summaries := map[string]models.AccountSummary{
		"chase": {
			OpeningBalance: decimal.RequireFromString("1000.00"),
			TotalCredits:   decimal.RequireFromString("500.00"),
			TotalDebits:    decimal.RequireFromString("-75.50"),
			ClosingBalance: decimal.RequireFromString("1424.50"),
		},
	}

	if _, err := NewCSVExporter(cfg, testLogger()).Export(outDir, nil, nil, summaries); err != nil {
		t.Fatal(err)
	}

	rows := readCSVFile(t, filepath.Join(outDir, "account_summaries.csv"))
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	want := []string{"Chase Checking", "1000.00", "500.00", "-75.50", "1424.50"}
	for i, w := range want {
		if rows[1][i] != w {
			t.Errorf("summary[%d] = %q, want %q", i, rows[1][i], w)
		}
	}
}
