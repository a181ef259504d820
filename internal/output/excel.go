package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

// ExcelWorkbookName is the single workbook the Excel writer produces.
const ExcelWorkbookName = "finledger_report.xlsx"

// ExcelWriter collects the transaction listing, anomalies and account
// summaries into one workbook for reviewers who work in a spreadsheet. The
// sheet content mirrors the CSV exports cell for cell.
type ExcelWriter struct {
	cfg    *common.Config
	logger *common.Logger
}

// NewExcelWriter creates an Excel report writer.
func NewExcelWriter(cfg *common.Config, logger *common.Logger) *ExcelWriter {
	return &ExcelWriter{cfg: cfg, logger: logger}
}

// Write builds the workbook and returns its path.
func (w *ExcelWriter) Write(outDir string, txns []*models.Transaction, gaps []models.DateGap, summaries map[string]models.AccountSummary) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheets := []struct {
		name string
		rows [][]string
	}{
		{"All Transactions", transactionRows(w.cfg, txns)},
		{"Anomalies", anomalyRows(txns, gaps)},
		{"Account Summaries", accountSummaryRows(w.cfg, summaries)},
	}

	if err := f.SetSheetName("Sheet1", sheets[0].name); err != nil {
		return "", fmt.Errorf("failed to name sheet: %w", err)
	}
	for _, sheet := range sheets[1:] {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return "", fmt.Errorf("failed to add sheet %s: %w", sheet.name, err)
		}
	}
	for _, sheet := range sheets {
		if err := writeSheet(f, sheet.name, sheet.rows); err != nil {
			return "", err
		}
	}

	if idx, err := f.GetSheetIndex(sheets[0].name); err == nil {
		f.SetActiveSheet(idx)
	}

	path := filepath.Join(outDir, ExcelWorkbookName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	w.logger.Info().
		Int("transactions", len(txns)).
		Int("sheets", len(sheets)).
		Str("file", path).
		Msg("Exported Excel workbook")

	return path, nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]string) error {
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("failed to address cell in %s: %w", sheet, err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("failed to write cell %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}
