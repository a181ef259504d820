// Package output writes processed transactions to review-friendly CSV
// files and charts. The exported transaction CSV round-trips: its
// Fingerprint and Category columns feed the corrections importer after
// human review.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// Spreadsheet formula triggers; cells starting with one get a quote prefix.
var formulaChars = []string{"=", "+", "-", "@", "\t", "\r", "\n", "|"}

var unsafeFilenamePattern = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\s]+`)

// CSVExporter writes the processed data set to CSV files in one output
// directory.
type CSVExporter struct {
	cfg    *common.Config
	logger *common.Logger
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(cfg *common.Config, logger *common.Logger) *CSVExporter {
	return &CSVExporter{cfg: cfg, logger: logger}
}

// Export writes all output files and returns their paths.
func (e *CSVExporter) Export(outDir string, txns []*models.Transaction, gaps []models.DateGap, summaries map[string]models.AccountSummary) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var created []string
	steps := []func(string, []*models.Transaction) (string, error){
		e.exportAllTransactions,
		e.exportCategoryAnalysis,
		e.exportUncategorizedForReview,
	}
	for _, step := range steps {
		path, err := step(outDir, txns)
		if err != nil {
			return created, err
		}
		created = append(created, path)
	}

	path, err := e.exportAnomalies(outDir, txns, gaps)
	if err != nil {
		return created, err
	}
	created = append(created, path)

	path, err = e.exportAccountSummaries(outDir, summaries)
	if err != nil {
		return created, err
	}
	created = append(created, path)

	accountFiles, err := e.exportAccountSheets(outDir, txns)
	if err != nil {
		return created, err
	}
	created = append(created, accountFiles...)

	e.logger.Info().Int("files", len(created)).Str("dir", outDir).Msg("Exported CSV files")
	return created, nil
}

// exportAllTransactions writes the master list, including the fingerprint
// and confidence columns the review workflow depends on.
func (e *CSVExporter) exportAllTransactions(outDir string, txns []*models.Transaction) (string, error) {
	path := filepath.Join(outDir, "all_transactions.csv")

	if err := writeCSV(path, transactionRows(e.cfg, txns)); err != nil {
		return "", err
	}
	e.logger.Info().Int("transactions", len(txns)).Str("file", path).Msg("Exported transactions")
	return path, nil
}

func (e *CSVExporter) exportAnomalies(outDir string, txns []*models.Transaction, gaps []models.DateGap) (string, error) {
	path := filepath.Join(outDir, "anomalies.csv")

	if err := writeCSV(path, anomalyRows(txns, gaps)); err != nil {
		return "", err
	}
	return path, nil
}

// exportCategoryAnalysis writes a category-by-month matrix. Expense
// categories report absolute values.
func (e *CSVExporter) exportCategoryAnalysis(outDir string, txns []*models.Transaction) (string, error) {
	path := filepath.Join(outDir, "category_analysis.csv")

	byCategory := make(map[string]map[string]decimal.Decimal)
	monthSet := make(map[string]bool)

	for _, txn := range txns {
		if txn.Category == "" {
			continue
		}
		cat, ok := e.cfg.Categories[txn.Category]
		if !ok {
			continue
		}

		amount := txn.Amount
		if cat.Type == models.CategoryExpense {
			amount = amount.Abs()
		}

		month := txn.Date.Format("2006-01")
		monthSet[month] = true
		if byCategory[cat.Name] == nil {
			byCategory[cat.Name] = make(map[string]decimal.Decimal)
		}
		byCategory[cat.Name][month] = byCategory[cat.Name][month].Add(amount)
	}

	months := make([]string, 0, len(monthSet))
	for m := range monthSet {
		months = append(months, m)
	}
	sort.Strings(months)

	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := [][]string{append(append([]string{"Category"}, months...), "Total")}
	for _, name := range names {
		row := []string{sanitizeForCSV(name)}
		total := decimal.Zero
		for _, month := range months {
			amount := byCategory[name][month]
			total = total.Add(amount)
			if amount.IsZero() {
				row = append(row, "")
			} else {
				row = append(row, amount.StringFixed(2))
			}
		}
		row = append(row, total.StringFixed(2))
		rows = append(rows, row)
	}

	if err := writeCSV(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

// exportUncategorizedForReview groups uncategorized transactions by
// normalized merchant, most frequent first.
func (e *CSVExporter) exportUncategorizedForReview(outDir string, txns []*models.Transaction) (string, error) {
	path := filepath.Join(outDir, "uncategorized_for_review.csv")

	byMerchant := make(map[string][]*models.Transaction)
	for _, txn := range txns {
		if !txn.IsUncategorized {
			continue
		}
		key := normalizeMerchant(txn.Description)
		byMerchant[key] = append(byMerchant[key], txn)
	}

	patterns := make([]string, 0, len(byMerchant))
	for pattern := range byMerchant {
		patterns = append(patterns, pattern)
	}
	sort.Slice(patterns, func(i, j int) bool {
		a, b := byMerchant[patterns[i]], byMerchant[patterns[j]]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return patterns[i] < patterns[j]
	})

	rows := [][]string{{"Merchant Pattern", "Frequency", "Total Amount", "Avg Amount", "Example Description"}}
	for _, pattern := range patterns {
		group := byMerchant[pattern]
		total := decimal.Zero
		for _, txn := range group {
			total = total.Add(txn.Amount)
		}
		avg := total.Div(decimal.NewFromInt(int64(len(group))))
		rows = append(rows, []string{
			sanitizeForCSV(pattern),
			fmt.Sprintf("%d", len(group)),
			total.StringFixed(2),
			avg.StringFixed(2),
			sanitizeForCSV(group[0].Description),
		})
	}

	if err := writeCSV(path, rows); err != nil {
		return "", err
	}
	e.logger.Info().Int("patterns", len(byMerchant)).Str("file", path).Msg("Exported uncategorized review file")
	return path, nil
}

func (e *CSVExporter) exportAccountSummaries(outDir string, summaries map[string]models.AccountSummary) (string, error) {
	path := filepath.Join(outDir, "account_summaries.csv")

	if err := writeCSV(path, accountSummaryRows(e.cfg, summaries)); err != nil {
		return "", err
	}
	return path, nil
}

func (e *CSVExporter) exportAccountSheets(outDir string, txns []*models.Transaction) ([]string, error) {
	byAccount := make(map[string][]*models.Transaction)
	for _, txn := range txns {
		byAccount[txn.AccountID] = append(byAccount[txn.AccountID], txn)
	}

	ids := make([]string, 0, len(byAccount))
	for id := range byAccount {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var created []string
	for _, id := range ids {
		path := filepath.Join(outDir, fmt.Sprintf("account_%s.csv", sanitizeFilename(id)))

		rows := [][]string{{"Date", "Description", "Category", "Amount", "Balance"}}
		for _, txn := range sortForExport(byAccount[id]) {
			rows = append(rows, []string{
				models.ISODate(txn.Date),
				sanitizeForCSV(txn.Description),
				sanitizeForCSV(categoryName(e.cfg, txn.Category)),
				txn.Amount.StringFixed(2),
				formatBalance(txn.RunningBalance),
			})
		}

		if err := writeCSV(path, rows); err != nil {
			return created, err
		}
		created = append(created, path)
	}

	return created, nil
}

// transactionRows builds the master transaction listing, including the
// fingerprint and confidence columns the review workflow depends on. The
// CSV and Excel writers emit identical content.
func transactionRows(cfg *common.Config, txns []*models.Transaction) [][]string {
	rows := [][]string{{
		"Date", "Account", "Description", "Category", "Sub-Category",
		"Amount", "Running Balance", "Source File", "Duplicate Flag", "Uncategorized Flag",
		"Confidence", "Matched Pattern", "Category Source", "Confidence Factors",
		"Fingerprint",
	}}

	for _, txn := range sortForExport(txns) {
		confidence := ""
		if !txn.IsUncategorized {
			confidence = fmt.Sprintf("%.2f", txn.Confidence)
		}
		rows = append(rows, []string{
			models.ISODate(txn.Date),
			sanitizeForCSV(txn.AccountName),
			sanitizeForCSV(txn.Description),
			sanitizeForCSV(categoryName(cfg, txn.Category)),
			sanitizeForCSV(categoryName(cfg, txn.Subcategory)),
			txn.Amount.StringFixed(2),
			formatBalance(txn.RunningBalance),
			sanitizeForCSV(txn.SourceFile),
			yesOrEmpty(txn.IsDuplicate),
			yesOrEmpty(txn.IsUncategorized),
			confidence,
			sanitizeForCSV(txn.MatchedPattern),
			string(txn.CategorySource),
			sanitizeForCSV(strings.Join(txn.ConfidenceFactors, "; ")),
			txn.Fingerprint(),
		})
	}
	return rows
}

// anomalyRows builds the two-section anomaly listing: flagged transactions
// followed by date gaps.
func anomalyRows(txns []*models.Transaction, gaps []models.DateGap) [][]string {
	rows := [][]string{
		{"Transaction Anomalies"},
		{"Date", "Account", "Description", "Amount", "Reason"},
	}

	var anomalous []*models.Transaction
	for _, txn := range txns {
		if txn.IsAnomaly {
			anomalous = append(anomalous, txn)
		}
	}
	for _, txn := range sortForExport(anomalous) {
		rows = append(rows, []string{
			models.ISODate(txn.Date),
			sanitizeForCSV(txn.AccountName),
			sanitizeForCSV(txn.Description),
			txn.Amount.StringFixed(2),
			sanitizeForCSV(strings.Join(txn.AnomalyReasons, "; ")),
		})
	}

	rows = append(rows, []string{})
	rows = append(rows, []string{"Date Gap Anomalies"})
	rows = append(rows, []string{"Account", "Start Date", "End Date", "Gap (Days)", "Severity"})
	for _, gap := range gaps {
		rows = append(rows, []string{
			gap.AccountID,
			models.ISODate(gap.StartDate),
			models.ISODate(gap.EndDate),
			fmt.Sprintf("%d", gap.GapDays),
			string(gap.Severity),
		})
	}
	return rows
}

func accountSummaryRows(cfg *common.Config, summaries map[string]models.AccountSummary) [][]string {
	ids := make([]string, 0, len(summaries))
	for id := range summaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := [][]string{{"Account", "Opening Balance", "Total Credits", "Total Debits", "Closing Balance"}}
	for _, id := range ids {
		s := summaries[id]
		name := id
		if account, ok := cfg.Accounts[id]; ok {
			name = account.Name
		}
		rows = append(rows, []string{
			sanitizeForCSV(name),
			s.OpeningBalance.StringFixed(2),
			s.TotalCredits.StringFixed(2),
			s.TotalDebits.StringFixed(2),
			s.ClosingBalance.StringFixed(2),
		})
	}
	return rows
}

func categoryName(cfg *common.Config, categoryID string) string {
	if categoryID == "" {
		return ""
	}
	if cat, ok := cfg.Categories[categoryID]; ok {
		return cat.Name
	}
	return categoryID
}

// sortForExport orders transactions by date, account name, description.
func sortForExport(txns []*models.Transaction) []*models.Transaction {
	sorted := make([]*models.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.AccountName != b.AccountName {
			return a.AccountName < b.AccountName
		}
		return a.Description < b.Description
	})
	return sorted
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// sanitizeForCSV blocks spreadsheet formula injection by prefixing
// formula-triggering leading characters with a quote.
func sanitizeForCSV(value string) string {
	if value == "" {
		return value
	}
	for _, c := range formulaChars {
		if strings.HasPrefix(value, c) {
			return "'" + value
		}
	}
	return value
}

func sanitizeFilename(name string) string {
	safe := unsafeFilenamePattern.ReplaceAllString(name, "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "unknown"
	}
	return safe
}

func yesOrEmpty(b bool) string {
	if b {
		return "Yes"
	}
	return ""
}

// formatBalance renders a running balance, leaving unknown balances blank.
func formatBalance(balance *decimal.Decimal) string {
	if balance == nil {
		return ""
	}
	return balance.StringFixed(2)
}

// normalizeMerchant strips trailing store numbers and corporate suffixes so
// repeat merchants group together.
var (
	trailingNumberPattern = regexp.MustCompile(`\s*#?\d+$`)
	corpSuffixPattern     = regexp.MustCompile(`(?i)\s*(INC|LLC|CORP|CO)\.?$`)
	whitespacePattern     = regexp.MustCompile(`\s+`)
)

func normalizeMerchant(description string) string {
	normalized := trailingNumberPattern.ReplaceAllString(description, "")
	normalized = corpSuffixPattern.ReplaceAllString(normalized, "")
	normalized = strings.TrimSpace(whitespacePattern.ReplaceAllString(normalized, " "))
	if normalized == "" {
		return description
	}
	return normalized
}
