package processing

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmorton/finledger/internal/common"
	"github.com/bmorton/finledger/internal/models"
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-fA-F]{16}$`)

// CorrectionImporter reads human-reviewed output CSVs back into category
// corrections. A reviewed row binds a transaction fingerprint to the
// category the reviewer settled on; on the next run those corrections
// outrank rules and overrides.
type CorrectionImporter struct {
	cfg    *common.Config
	logger *common.Logger
}

// NewCorrectionImporter creates a correction importer.
func NewCorrectionImporter(cfg *common.Config, logger *common.Logger) *CorrectionImporter {
	return &CorrectionImporter{cfg: cfg, logger: logger}
}

// ImportFile reads corrections from one reviewed CSV file.
func (ci *CorrectionImporter) ImportFile(path string) (*models.ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corrections file: %w", err)
	}
	defer f.Close()

	result, err := ci.importReader(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	ci.logger.Info().
		Str("file", path).
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Msg("Corrections imported")

	return result, nil
}

// MergeInto adds imported corrections to the config's correction map. On a
// fingerprint collision the newer import wins.
func (ci *CorrectionImporter) MergeInto(cfg *common.Config, result *models.ImportResult) {
	for fingerprint, corr := range result.Corrections {
		if _, exists := cfg.Corrections[fingerprint]; exists {
			ci.logger.Debug().
				Str("fingerprint", fingerprint).
				Msg("Replacing existing correction")
		}
		cfg.Corrections[fingerprint] = corr
	}
}

func (ci *CorrectionImporter) importReader(r io.Reader, sourceFile string) (*models.ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("corrections file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read corrections header: %w", err)
	}

	columns := indexColumns(header)
	fingerprintCol, ok := columns["fingerprint"]
	if !ok {
		return nil, fmt.Errorf("corrections file missing required Fingerprint column")
	}
	categoryCol, ok := columns["category"]
	if !ok {
		return nil, fmt.Errorf("corrections file missing required Category column")
	}
	subcategoryCol, hasSubcategory := columns["sub-category"]
	sourceCol, hasSource := columns["category source"]

	result := &models.ImportResult{
		Corrections: make(map[string]models.CategoryCorrection),
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			ci.skip(result, fmt.Sprintf("line %d: malformed row: %v", line, err))
			continue
		}

		fingerprint := strings.TrimSpace(field(record, fingerprintCol))
		if fingerprint == "" {
			ci.skip(result, fmt.Sprintf("line %d: empty fingerprint", line))
			continue
		}
		if !fingerprintPattern.MatchString(fingerprint) {
			ci.skip(result, fmt.Sprintf("line %d: invalid fingerprint %q", line, fingerprint))
			continue
		}
		fingerprint = strings.ToLower(fingerprint)

		categoryName := strings.TrimSpace(field(record, categoryCol))
		if categoryName == "" {
			ci.skip(result, fmt.Sprintf("line %d: empty category", line))
			continue
		}
		categoryID := ci.cfg.CategoryIDByName(categoryName)
		if categoryID == "" {
			ci.skip(result, fmt.Sprintf("line %d: unknown category %q", line, categoryName))
			continue
		}

		correction := models.CategoryCorrection{
			Fingerprint: fingerprint,
			CategoryID:  categoryID,
			SourceFile:  sourceFile,
		}
		if hasSubcategory {
			if name := strings.TrimSpace(field(record, subcategoryCol)); name != "" {
				if subID := ci.cfg.CategoryIDByName(name); subID != "" {
					correction.SubcategoryID = subID
				} else {
					ci.logger.Warn().
						Int("line", line).
						Str("subcategory", name).
						Msg("Unknown subcategory in correction, importing without it")
				}
			}
		}
		if hasSource {
			correction.OriginalSource = strings.TrimSpace(field(record, sourceCol))
		}

		result.Corrections[fingerprint] = correction
		result.Imported++
	}

	return result, nil
}

func (ci *CorrectionImporter) skip(result *models.ImportResult, reason string) {
	result.Skipped++
	result.SkippedReasons = append(result.SkippedReasons, reason)
	ci.logger.Warn().Str("reason", reason).Msg("Skipping correction row")
}

// indexColumns maps lowercased, trimmed header names to column positions.
// The first occurrence of a duplicated header wins.
func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, exists := columns[key]; !exists {
			columns[key] = i
		}
	}
	return columns
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}
