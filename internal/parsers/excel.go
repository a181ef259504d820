package parsers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// maxExcelFileSize caps input files at 50 MB.
const maxExcelFileSize = 50 * 1024 * 1024

// ExcelParser parses .xlsx statement exports. Each worksheet is reduced to
// string records and run through the same header detection and column
// mapping as CSV files.
type ExcelParser struct {
	logger *common.Logger
}

// NewExcelParser creates an Excel parser.
func NewExcelParser(logger *common.Logger) *ExcelParser {
	return &ExcelParser{logger: logger}
}

func (p *ExcelParser) Name() string { return "excel" }

func (p *ExcelParser) SupportedExtensions() []string {
	return []string{".xlsx", ".xlsm"}
}

func (p *ExcelParser) CanParse(path string) bool {
	if !hasExtension(path, p.SupportedExtensions()) {
		return false
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Parse reads every worksheet into raw transactions. Sheets without a
// recognizable header row are skipped with warnings.
func (p *ExcelParser) Parse(path string) ([]models.RawTransaction, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot stat file", Err: err}
	}
	if info.Size() > maxExcelFileSize {
		return nil, &ParseError{Path: path, Msg: fmt.Sprintf("file too large (%d bytes, max %d)", info.Size(), maxExcelFileSize)}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Msg: "cannot open workbook", Err: err}
	}
	defer f.Close()

	sourceFile := filepath.Base(path)
	var transactions []models.RawTransaction

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			p.logger.Warn().Str("file", sourceFile).Str("sheet", sheet).Err(err).Msg("Cannot read worksheet, skipping")
			continue
		}
		transactions = append(transactions, p.parseSheet(rows, sourceFile, sheet)...)
	}

	p.logger.Info().
		Str("file", sourceFile).
		Int("transactions", len(transactions)).
		Msg("Parsed Excel file")

	return transactions, nil
}

func (p *ExcelParser) parseSheet(rows [][]string, sourceFile, sheet string) []models.RawTransaction {
	headerIdx := findHeaderRow(rows)
	if headerIdx < 0 {
		p.logger.Warn().Str("file", sourceFile).Str("sheet", sheet).Msg("No header row found in worksheet")
		return nil
	}

	cols := make(map[string]int, len(rows[headerIdx]))
	for i, h := range rows[headerIdx] {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, exists := cols[key]; key != "" && !exists {
			cols[key] = i
		}
	}

	mapping, ok := autoDetectColumns(cols)
	if !ok {
		p.logger.Warn().Str("file", sourceFile).Str("sheet", sheet).Msg("Could not detect column mapping in worksheet")
		return nil
	}
	// Auto-detection treats "memo" as a description keyword; when a sheet
	// carries both, the exact header wins.
	if idx, found := cols["description"]; found {
		mapping.description = idx
	}
	// Statement exports sometimes carry their own category and memo columns.
	if idx, found := cols["category"]; found {
		mapping.category = idx
	}
	if idx, found := cols["memo"]; found && idx != mapping.description {
		mapping.memo = idx
	}

	var transactions []models.RawTransaction
	skipped := 0
	for i := headerIdx + 1; i < len(rows); i++ {
		if isBlankRecord(rows[i]) {
			continue
		}
		txn, ok := parseStatementRecord(p.logger, rows[i], mapping, sourceFile, i+1)
		if !ok {
			skipped++
			continue
		}
		transactions = append(transactions, txn)
	}

	if skipped > 0 {
		p.logger.Debug().Str("sheet", sheet).Int("skipped", skipped).Msg("Skipped unparseable worksheet rows")
	}
	return transactions
}

// findHeaderRow locates the header within the first rows of a worksheet: the
// first row where at least two cells carry header keywords.
func findHeaderRow(rows [][]string) int {
	limit := len(rows)
	if limit > 20 {
		limit = 20
	}
	for i := 0; i < limit; i++ {
		matches := 0
		for _, value := range rows[i] {
			lower := strings.ToLower(value)
			for _, kw := range headerKeywords {
				if strings.Contains(lower, kw) {
					matches++
					break
				}
			}
		}
		if matches >= 2 {
			return i
		}
	}
	return -1
}
